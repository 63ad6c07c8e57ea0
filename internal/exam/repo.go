package exam

import "context"

type ListOpts struct {
	Q          string
	Subject    string
	Limit      int
	Offset     int
	ViewerID   string
	ViewerRole string // "student" | "teacher" | "admin"
}

// Store is the marketplace exam catalog.
type Store interface {
	PutExam(ctx context.Context, e Exam) error
	GetExam(ctx context.Context, id string) (Exam, error)      // student-safe (no answer keys)
	GetExamAdmin(ctx context.Context, id string) (Exam, error) // full exam, for sessions/creators
	ListExams(ctx context.Context, opts ListOpts) ([]ExamSummary, error)

	AppendQuestions(ctx context.Context, examID string, qs []Question) (Exam, error)
	SetStatus(ctx context.Context, examID string, st ExamStatus) error
	DeleteExam(ctx context.Context, examID string) error

	Purchase(ctx context.Context, userID, examID string) error
	HasPurchase(ctx context.Context, userID, examID string) (bool, error)
}
