package exam

import "errors"

var (
	ErrNoQuestions       = errors.New("no questions available")
	ErrDailyLimitReached = errors.New("daily free exam limit reached")
	ErrGenerationFailed  = errors.New("could not generate questions")
	ErrJokerUsed         = errors.New("joker already used on this question")
	ErrNoJoker           = errors.New("no joker in inventory")
	ErrInvalidAnswer     = errors.New("invalid answer")
	ErrInvalidQuestion   = errors.New("question must have 4 options and a correct index in 0..3")
	ErrQuestionIndex     = errors.New("question index out of range")
	ErrNotActive         = errors.New("session is not active")
	ErrAbandoned         = errors.New("session was abandoned")
	ErrBadTransition     = errors.New("invalid session state transition")
	ErrNotOwned          = errors.New("exam not owned")
	ErrNotFound          = errors.New("not found")
	ErrAlreadyOwned      = errors.New("exam already owned")
)
