package http

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	authmw "github.com/helloclass/helloclass-lms/internal/auth/middleware"
	"github.com/helloclass/helloclass-lms/internal/exam"
)

// Explainer writes a short review note for a missed question.
type Explainer interface {
	Explain(ctx context.Context, question, correct, wrong string) (string, error)
}

func caller(r *http.Request) exam.User {
	id, role := authmw.Caller(r.Context())
	return exam.User{ID: id, Role: role}
}

// POST /sessions/ai  ExamConfig
func StartAISessionHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var cfg exam.ExamConfig
		if !decode(w, r, &cfg) {
			return
		}
		sess, err := svc.StartAI(r.Context(), caller(r), cfg)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, sess.Snapshot())
	}
}

// POST /sessions/market  {"exam_id": "..."}
func StartMarketSessionHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ExamID string `json:"exam_id" validate:"required"`
		}
		if !decode(w, r, &req) {
			return
		}
		sess, err := svc.StartMarket(r.Context(), caller(r), req.ExamID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, sess.Snapshot())
	}
}

// session resolves {id} to a session owned by the caller, or writes 404.
func session(svc *exam.Service, w http.ResponseWriter, r *http.Request) (*exam.Session, bool) {
	sess, err := svc.Get(caller(r).ID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	return sess, true
}

func GetSessionHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if sess, ok := session(svc, w, r); ok {
			writeJSON(w, http.StatusOK, sess.Snapshot())
		}
	}
}

type questionReq struct {
	QuestionIndex *int `json:"question_index" validate:"required"`
}

// POST /sessions/{id}/answers  {"question_index": 0, "option_index": 2}
func SelectAnswerHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := session(svc, w, r)
		if !ok {
			return
		}
		var req struct {
			QuestionIndex *int `json:"question_index" validate:"required"`
			OptionIndex   *int `json:"option_index" validate:"required"`
		}
		if !decode(w, r, &req) {
			return
		}
		if err := sess.SelectAnswer(*req.QuestionIndex, *req.OptionIndex); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sess.Snapshot())
	}
}

func FiftyFiftyHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := session(svc, w, r)
		if !ok {
			return
		}
		var req questionReq
		if !decode(w, r, &req) {
			return
		}
		hidden, err := sess.Apply5050Joker(r.Context(), *req.QuestionIndex)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"hidden": hidden, "session": sess.Snapshot()})
	}
}

// POST /sessions/{id}/jokers/skip. Skipping the last question finishes the session.
func SkipHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := session(svc, w, r)
		if !ok {
			return
		}
		var req questionReq
		if !decode(w, r, &req) {
			return
		}
		last, err := sess.ApplySkipJoker(r.Context(), *req.QuestionIndex)
		if err != nil {
			writeError(w, err)
			return
		}
		if last {
			if _, err := sess.FinishAfterSkip(r.Context()); err != nil {
				writeError(w, err)
				return
			}
		}
		writeJSON(w, http.StatusOK, sess.Snapshot())
	}
}

func AdvanceHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := session(svc, w, r)
		if !ok {
			return
		}
		if _, err := sess.Advance(r.Context()); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sess.Snapshot())
	}
}

func FinishHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := session(svc, w, r)
		if !ok {
			return
		}
		res, err := sess.Finish(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// DELETE /sessions/{id} discards the session without a result.
func AbandonHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.Abandon(caller(r).ID, chi.URLParam(r, "id")); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// POST /sessions/{id}/explain  {"question_index": 3}; finished sessions only.
func ExplainHandler(svc *exam.Service, ex Explainer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := session(svc, w, r)
		if !ok {
			return
		}
		var req questionReq
		if !decode(w, r, &req) {
			return
		}
		res, done := sess.Result()
		if !done {
			writeError(w, exam.ErrNotActive)
			return
		}
		i := *req.QuestionIndex
		if i < 0 || i >= len(res.Questions) {
			writeError(w, exam.ErrQuestionIndex)
			return
		}
		q := res.Questions[i]
		if ex == nil {
			writeJSON(w, http.StatusOK, map[string]string{"explanation": q.Explanation})
			return
		}
		wrong := ""
		if a := res.UserAnswers[i]; a >= 0 && a < len(q.Options) && a != q.CorrectIndex {
			wrong = q.Options[a]
		}
		text, err := ex.Explain(r.Context(), q.Text, q.Options[q.CorrectIndex], wrong)
		if err != nil {
			writeError(w, fmt.Errorf("%w: %v", exam.ErrGenerationFailed, err))
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"explanation": text})
	}
}
