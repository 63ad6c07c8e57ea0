package importer

import (
	"io"
	"strings"
)

// TemplateFilename is the suggested download name for WriteTemplate output.
const TemplateFilename = "HelloClass_Soru_Sablonu.csv"

var templateRows = [][]string{
	{"Soru Metni", "A Seçeneği", "B Seçeneği", "C Seçeneği", "D Seçeneği", "Doğru Cevap (1-4)", "Görsel URL (Opsiyonel)", "Açıklama"},
	{"Türkiye'nin başkenti neresidir?", "İstanbul", "Ankara", "İzmir", "Bursa", "2", "", "Başkent Ankara'dır."},
	{"Suyun formülü nedir?", "CO2", "H2O", "NaCl", "O2", "2", "", "İki Hidrojen bir Oksijen."},
}

// WriteTemplate writes a UTF-8 (BOM-prefixed) ';' separated sample sheet that
// spreadsheet apps open with the right encoding.
func WriteTemplate(w io.Writer) error {
	lines := make([]string, len(templateRows))
	for i, row := range templateRows {
		cells := make([]string, len(row))
		for j, c := range row {
			cells[j] = escapeCell(c)
		}
		lines[i] = strings.Join(cells, ";")
	}
	_, err := io.WriteString(w, "\ufeff"+strings.Join(lines, "\n"))
	return err
}

func escapeCell(s string) string {
	if strings.ContainsAny(s, ";\"\n") {
		return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
	}
	return s
}
