package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/helloclass/helloclass-lms/internal/exam"
)

// GET /exams?q=&subject=&limit=&offset=
// Students see PUBLISHED exams; creators also see their own drafts, admins see all.
func ListExamsHandler(store exam.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u := caller(r)
		list, err := store.ListExams(r.Context(), exam.ListOpts{
			Q:          strings.TrimSpace(r.URL.Query().Get("q")),
			Subject:    strings.TrimSpace(r.URL.Query().Get("subject")),
			Limit:      parseIntDefault(r.URL.Query().Get("limit"), 50),
			Offset:     parseIntDefault(r.URL.Query().Get("offset"), 0),
			ViewerID:   u.ID,
			ViewerRole: u.Role,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if v, err := strconv.Atoi(s); err == nil && v >= 0 {
		return v
	}
	return def
}
