// Package results records finished exams: points, profile history and the
// ExamCompleted event.
package results

import (
	"context"
	"database/sql"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/helloclass/helloclass-lms/internal/exam"
	"github.com/helloclass/helloclass-lms/internal/importer"
	syncx "github.com/helloclass/helloclass-lms/internal/sync"
)

const (
	PointsPerCorrect = 10
	RoutingCompleted = "exam.completed"
)

// Completed is the payload of an ExamCompleted event.
type Completed struct {
	HistoryID      string `json:"history_id"`
	UserID         string `json:"user_id"`
	Title          string `json:"title"`
	Subject        string `json:"subject"`
	Score          int    `json:"score"`
	CorrectCount   int    `json:"correct_count"`
	TotalQuestions int    `json:"total_questions"`
	PointsAwarded  int    `json:"points_awarded"`
	CompletedAt    int64  `json:"completed_at"`
}

type Sink struct {
	db     *sql.DB
	events *syncx.EventRepo
	pub    syncx.Publisher
	now    func() time.Time
}

// NewSink returns a result sink. pub may be nil.
func NewSink(db *sql.DB, events *syncx.EventRepo, pub syncx.Publisher) *Sink {
	return &Sink{db: db, events: events, pub: pub, now: time.Now}
}

// Submit implements exam.ResultSink. Errors are logged; the finished session
// never sees them.
func (s *Sink) Submit(ctx context.Context, userID string, r exam.Result) {
	c, err := s.record(ctx, userID, r)
	if err != nil {
		log.Printf("results: record %s: %v", userID, err)
		return
	}
	if s.events != nil {
		if err := s.events.AppendJSON(ctx, syncx.TypeExamCompleted, userID, c); err != nil {
			log.Printf("results: event log: %v", err)
		}
	}
	if s.pub != nil {
		if err := s.pub.Publish(ctx, RoutingCompleted, c); err != nil {
			log.Printf("results: publish: %v", err)
		}
	}
}

func (s *Sink) record(ctx context.Context, userID string, r exam.Result) (Completed, error) {
	subject := importer.FallbackSubject
	if len(r.Questions) > 0 && r.Questions[0].Subject != "" {
		subject = r.Questions[0].Subject
	}
	title := r.Title
	if title == "" {
		title = subject + " Sınavı"
	}
	c := Completed{
		HistoryID:      uuid.NewString(),
		UserID:         userID,
		Title:          title,
		Subject:        subject,
		Score:          r.Score,
		CorrectCount:   r.CorrectCount,
		TotalQuestions: r.TotalQuestions,
		PointsAwarded:  r.CorrectCount * PointsPerCorrect,
		CompletedAt:    s.now().Unix(),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return c, err
	}
	defer tx.Rollback()

	if c.PointsAwarded > 0 {
		if _, err := tx.ExecContext(ctx,
			`UPDATE users SET points=points+$1 WHERE id=$2`, c.PointsAwarded, userID); err != nil {
			return c, err
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO exam_history (id,user_id,title,subject,score,correct_count,total_questions,completed_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		c.HistoryID, userID, c.Title, c.Subject, c.Score, c.CorrectCount, c.TotalQuestions, c.CompletedAt); err != nil {
		return c, err
	}
	return c, tx.Commit()
}

// History lists a user's finished exams, newest first.
func (s *Sink) History(ctx context.Context, userID string, limit int) ([]exam.HistoryItem, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id,title,subject,score,correct_count,total_questions,completed_at
		 FROM exam_history WHERE user_id=$1
		 ORDER BY completed_at DESC, id LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []exam.HistoryItem{}
	for rows.Next() {
		var (
			h  exam.HistoryItem
			at int64
		)
		if err := rows.Scan(&h.ID, &h.Title, &h.Subject, &h.Score, &h.CorrectCount, &h.TotalQuestions, &at); err != nil {
			return nil, err
		}
		h.CompletedAt = time.Unix(at, 0).UTC()
		out = append(out, h)
	}
	return out, rows.Err()
}
