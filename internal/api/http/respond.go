package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/helloclass/helloclass-lms/internal/exam"
	"github.com/helloclass/helloclass-lms/internal/inventory"
)

var validate = validator.New()

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

var errorTable = []struct {
	err    error
	status int
	code   string
}{
	{exam.ErrNoQuestions, http.StatusUnprocessableEntity, "NO_QUESTIONS"},
	{exam.ErrDailyLimitReached, http.StatusTooManyRequests, "DAILY_LIMIT_REACHED"},
	{exam.ErrGenerationFailed, http.StatusBadGateway, "GENERATION_FAILED"},
	{exam.ErrJokerUsed, http.StatusConflict, "JOKER_ALREADY_USED"},
	{exam.ErrNoJoker, http.StatusConflict, "NO_JOKER"},
	{inventory.ErrEmpty, http.StatusConflict, "NO_JOKER"},
	{exam.ErrInvalidAnswer, http.StatusBadRequest, "INVALID_ANSWER"},
	{exam.ErrQuestionIndex, http.StatusBadRequest, "INVALID_ANSWER"},
	{exam.ErrInvalidQuestion, http.StatusBadRequest, "INVALID_QUESTION"},
	{exam.ErrNotActive, http.StatusConflict, "SESSION_NOT_ACTIVE"},
	{exam.ErrAbandoned, http.StatusConflict, "SESSION_NOT_ACTIVE"},
	{exam.ErrNotOwned, http.StatusPaymentRequired, "NOT_OWNED"},
	{exam.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
	{inventory.ErrUnknownItem, http.StatusNotFound, "NOT_FOUND"},
	{inventory.ErrInsufficientFunds, http.StatusPaymentRequired, "INSUFFICIENT_FUNDS"},
	{inventory.ErrAlreadyOwned, http.StatusConflict, "ALREADY_OWNED"},
	{exam.ErrAlreadyOwned, http.StatusConflict, "ALREADY_OWNED"},
}

func logf(format string, args ...any) { log.Printf("http: "+format, args...) }

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, apiError{Code: code, Message: msg})
}

// writeError maps domain errors onto status codes; anything unknown is a 500.
func writeError(w http.ResponseWriter, err error) {
	for _, e := range errorTable {
		if errors.Is(err, e.err) {
			writeErr(w, e.status, e.code, err.Error())
			return
		}
	}
	var verr validator.ValidationErrors
	switch {
	case errors.As(err, &verr):
		writeErr(w, http.StatusBadRequest, "VALIDATION_FAILED", err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		// client is gone; the status is for the access log only
		writeErr(w, http.StatusRequestTimeout, "CANCELLED", err.Error())
	default:
		logf("%v", err)
		writeErr(w, http.StatusInternalServerError, "INTERNAL", "internal error")
	}
}

// decode reads a JSON body into v and runs struct validation on it.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeErr(w, http.StatusBadRequest, "BAD_JSON", "bad json")
		return false
	}
	if err := validate.Struct(v); err != nil {
		writeError(w, err)
		return false
	}
	return true
}
