// Package importer turns pasted spreadsheet rows into exam questions.
//
// Expected columns, tab or semicolon separated:
//
//	1 question text
//	2-5 options A-D
//	6 correct answer, 1-based (1..4)
//	7 image URL (optional)
//	8 explanation (optional)
//
// Rows that do not fit are counted and skipped; the rest of the batch is kept.
package importer

import (
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/helloclass/helloclass-lms/internal/exam"
)

const (
	minColumns      = 6
	colAnswer       = 5
	colImage        = 6
	colExplanation  = 7
	FallbackSubject = "Genel"
)

type Outcome int

const (
	OutcomeNothingValid Outcome = iota
	OutcomeAll
	OutcomePartial
)

type Report struct {
	Imported []exam.Question `json:"imported"`
	Skipped  int             `json:"skipped"`
}

func (r Report) Outcome() Outcome {
	switch {
	case len(r.Imported) == 0:
		return OutcomeNothingValid
	case r.Skipped > 0:
		return OutcomePartial
	default:
		return OutcomeAll
	}
}

// Message is the summary shown to the teacher after an import.
func (r Report) Message() string {
	switch r.Outcome() {
	case OutcomeNothingValid:
		return "Geçerli veri bulunamadı. Lütfen formatı kontrol edin."
	case OutcomePartial:
		return fmt.Sprintf("%d soru eklendi. %d satır format hatası nedeniyle atlandı.", len(r.Imported), r.Skipped)
	default:
		return fmt.Sprintf("%d soru başarıyla içe aktarıldı.", len(r.Imported))
	}
}

// ImportRows parses raw into questions tagged with subject. Blank lines are
// ignored; any other line that cannot be turned into a question is skipped and
// counted.
func ImportRows(raw, subject string) Report {
	if strings.TrimSpace(subject) == "" {
		subject = FallbackSubject
	}
	raw = strings.TrimPrefix(raw, "\ufeff")

	rep := Report{Imported: []exam.Question{}}
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		q, ok := parseRow(splitRow(line))
		if !ok {
			rep.Skipped++
			continue
		}
		q.Subject = subject
		rep.Imported = append(rep.Imported, q)
	}
	return rep
}

func splitRow(line string) []string {
	cols := strings.Split(line, "\t")
	if len(cols) < 2 && strings.Contains(line, ";") {
		cols = splitSemicolon(line)
	}
	return cols
}

// splitSemicolon tokenizes a ';' separated line where "..." groups a field and
// "" inside quotes is a literal quote. Empty fields are kept in place.
func splitSemicolon(line string) []string {
	r := csv.NewReader(strings.NewReader(line))
	r.Comma = ';'
	r.LazyQuotes = true
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	fields, err := r.Read()
	if err != nil {
		fields = strings.Split(line, ";")
		for i, f := range fields {
			fields[i] = unquote(strings.TrimSpace(f))
		}
		return fields
	}
	for i, f := range fields {
		fields[i] = strings.TrimSpace(f)
	}
	return fields
}

func unquote(f string) string {
	if len(f) >= 2 && strings.HasPrefix(f, `"`) && strings.HasSuffix(f, `"`) {
		f = strings.ReplaceAll(f[1:len(f)-1], `""`, `"`)
	}
	return strings.TrimSpace(f)
}

// leadingInt reads an optionally signed run of digits at the start of s, so
// spreadsheet exports like "2.0" or "3)" still yield an answer.
func leadingInt(s string) (int, bool) {
	end := 0
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return 0, false
	}
	n, err := strconv.Atoi(s[:end])
	return n, err == nil
}

func parseRow(cols []string) (exam.Question, bool) {
	if len(cols) < minColumns {
		return exam.Question{}, false
	}
	n, ok := leadingInt(strings.TrimSpace(cols[colAnswer]))
	if !ok {
		return exam.Question{}, false
	}
	idx := n - 1
	if idx < 0 || idx >= exam.OptionCount {
		return exam.Question{}, false
	}
	q := exam.Question{
		ID:           "bulk_" + uuid.NewString(),
		Text:         strings.TrimSpace(cols[0]),
		Options:      make([]string, exam.OptionCount),
		CorrectIndex: idx,
		Difficulty:   exam.DefaultDifficulty,
	}
	for i := range q.Options {
		q.Options[i] = strings.TrimSpace(cols[1+i])
	}
	if len(cols) > colImage {
		q.ImageURL = strings.TrimSpace(cols[colImage])
	}
	if len(cols) > colExplanation {
		q.Explanation = strings.TrimSpace(cols[colExplanation])
	}
	return q, true
}
