package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/helloclass/helloclass-lms/internal/exam"
	"github.com/helloclass/helloclass-lms/internal/importer"
	"github.com/helloclass/helloclass-lms/internal/metrics"
	"github.com/helloclass/helloclass-lms/internal/rbac"
	syncx "github.com/helloclass/helloclass-lms/internal/sync"
)

const maxImportBytes = 4 << 20

// EventAppender is the event log as seen by handlers. A nil appender is fine.
type EventAppender interface {
	AppendJSON(ctx context.Context, typ, key string, data any) error
}

func appendEvent(ctx context.Context, ev EventAppender, typ, key string, data any) {
	if ev == nil {
		return
	}
	if err := ev.AppendJSON(ctx, typ, key, data); err != nil {
		logf("event %s %s: %v", typ, key, err)
	}
}

// canManage reports whether u may edit e: admins always, teachers their own.
func canManage(u exam.User, e exam.Exam) bool {
	return rbac.Default.Decide(u.Role, "exam:manage", e.CreatorID == u.ID)
}

// POST /exams  Exam JSON. Teachers submit for review; admins publish directly.
func CreateExamHandler(store exam.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var e exam.Exam
		if !decode(w, r, &e) {
			return
		}
		for _, q := range e.Questions {
			if !q.Valid() {
				writeError(w, exam.ErrInvalidQuestion)
				return
			}
		}
		u := caller(r)
		e.ID = "exam_" + uuid.NewString()
		e.CreatorID = u.ID
		e.Sales, e.Rating, e.CreatedAt = 0, 0, 0
		switch {
		case rbac.Default.Allows(u.Role, "exam:moderate"):
			e.Status = exam.StatusPublished
		case e.Status != exam.StatusDraft:
			e.Status = exam.StatusPending
		}
		for i := range e.Questions {
			if e.Questions[i].ID == "" {
				e.Questions[i].ID = "q_" + uuid.NewString()
			}
			if e.Questions[i].Subject == "" {
				e.Questions[i].Subject = e.Subject
			}
		}
		if err := store.PutExam(r.Context(), e); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"id": e.ID, "status": string(e.Status)})
	}
}

// GET /exams/{examID}. Answer keys are only included for the creator and admins.
func GetExamHandler(store exam.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "examID")
		u := caller(r)
		full, err := store.GetExamAdmin(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		if canManage(u, full) {
			writeJSON(w, http.StatusOK, full)
			return
		}
		if full.Status != exam.StatusPublished {
			writeError(w, exam.ErrNotFound)
			return
		}
		safe, err := store.GetExam(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, safe)
	}
}

// POST /exams/{examID}/import?subject=..  body: pasted rows, or multipart file=.
func ImportQuestionsHandler(store exam.Store, events EventAppender) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "examID")
		e, err := store.GetExamAdmin(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		if !canManage(caller(r), e) {
			writeErr(w, http.StatusForbidden, "FORBIDDEN", "not your exam")
			return
		}

		raw, err := readImportBody(w, r)
		if err != nil {
			writeErr(w, http.StatusBadRequest, "BAD_INPUT", err.Error())
			return
		}
		subject := strings.TrimSpace(r.URL.Query().Get("subject"))
		if subject == "" {
			subject = e.Subject
		}

		rep := importer.ImportRows(raw, subject)
		metrics.ImportRows.WithLabelValues("imported").Add(float64(len(rep.Imported)))
		metrics.ImportRows.WithLabelValues("skipped").Add(float64(rep.Skipped))

		count := len(e.Questions)
		if len(rep.Imported) > 0 {
			updated, err := store.AppendQuestions(r.Context(), id, rep.Imported)
			if err != nil {
				writeError(w, err)
				return
			}
			count = len(updated.Questions)
			appendEvent(r.Context(), events, syncx.TypeQuestionsImported, id,
				map[string]int{"imported": len(rep.Imported), "skipped": rep.Skipped})
		}

		status := http.StatusOK
		if rep.Outcome() == importer.OutcomeNothingValid {
			status = http.StatusUnprocessableEntity
		}
		writeJSON(w, status, map[string]any{
			"imported":       len(rep.Imported),
			"skipped":        rep.Skipped,
			"message":        rep.Message(),
			"question_count": count,
		})
	}
}

func readImportBody(w http.ResponseWriter, r *http.Request) (string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImportBytes)
	var src io.Reader = r.Body
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		f, _, err := r.FormFile("file")
		if err != nil {
			return "", errors.New("file required")
		}
		defer f.Close()
		src = f
	}
	b, err := io.ReadAll(src)
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	return string(b), nil
}

// GET /exams/import/template
func ImportTemplateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="`+importer.TemplateFilename+`"`)
		if err := importer.WriteTemplate(w); err != nil {
			logf("write template: %v", err)
		}
	}
}

// POST /exams/{examID}/purchase
func PurchaseExamHandler(store exam.Store, events EventAppender) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "examID")
		u := caller(r)
		e, err := store.GetExamAdmin(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		if e.Status != exam.StatusPublished {
			writeError(w, exam.ErrNotFound)
			return
		}
		if err := store.Purchase(r.Context(), u.ID, id); err != nil {
			writeError(w, err)
			return
		}
		appendEvent(r.Context(), events, syncx.TypeExamPurchased, u.ID,
			map[string]any{"exam_id": id, "price": e.Price})
		writeJSON(w, http.StatusCreated, map[string]string{"exam_id": id})
	}
}

// PUT /exams/{examID}/status  {"status": "PUBLISHED"}
func SetExamStatusHandler(store exam.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Status exam.ExamStatus `json:"status" validate:"required,oneof=DRAFT PENDING PUBLISHED ARCHIVED"`
		}
		if !decode(w, r, &req) {
			return
		}
		if err := store.SetStatus(r.Context(), chi.URLParam(r, "examID"), req.Status); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// DELETE /exams/{examID}; ownership is checked by the route guard.
func DeleteExamHandler(store exam.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := store.DeleteExam(r.Context(), chi.URLParam(r, "examID")); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// examOwner backs Guard.RequireOwned for exam routes.
func examOwner(store exam.Store) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		e, err := store.GetExamAdmin(r.Context(), chi.URLParam(r, "examID"))
		return err == nil && e.CreatorID == caller(r).ID
	}
}
