package exam

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

type SQLStore struct {
	db     *sql.DB
	driver string // "sqlite" or "postgres"
}

func NewSQLStore(db *sql.DB, driver string) *SQLStore {
	return &SQLStore{db: db, driver: driver}
}

func (s *SQLStore) PutExam(ctx context.Context, e Exam) error {
	if e.Status == "" {
		e.Status = StatusPublished
	}
	if e.CreatedAt == 0 {
		e.CreatedAt = time.Now().Unix()
	}
	if e.Questions == nil {
		e.Questions = []Question{}
	}
	qj, err := json.Marshal(e.Questions)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO market_exams
		(id,title,description,subject,topic,level,creator_id,creator_name,price,duration_minutes,status,rating,sales,is_deleted,question_count,questions_json,created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,0,$14,$15,$16)
		ON CONFLICT (id) DO UPDATE SET
		  title=EXCLUDED.title, description=EXCLUDED.description, subject=EXCLUDED.subject,
		  topic=EXCLUDED.topic, level=EXCLUDED.level, price=EXCLUDED.price,
		  duration_minutes=EXCLUDED.duration_minutes, status=EXCLUDED.status,
		  question_count=EXCLUDED.question_count, questions_json=EXCLUDED.questions_json`,
		e.ID, e.Title, e.Description, e.Subject, e.Topic, e.Level, e.CreatorID, e.CreatorName,
		e.Price, e.DurationMinutes, string(e.Status), e.Rating, e.Sales, len(e.Questions), string(qj), e.CreatedAt)
	return err
}

const examColumns = `id,title,description,subject,topic,level,creator_id,creator_name,price,duration_minutes,status,rating,sales,is_deleted,questions_json,created_at`

func scanExam(row interface{ Scan(...any) error }) (Exam, error) {
	var (
		e       Exam
		status  string
		deleted int
		qjson   string
	)
	if err := row.Scan(&e.ID, &e.Title, &e.Description, &e.Subject, &e.Topic, &e.Level,
		&e.CreatorID, &e.CreatorName, &e.Price, &e.DurationMinutes, &status, &e.Rating,
		&e.Sales, &deleted, &qjson, &e.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Exam{}, ErrNotFound
		}
		return Exam{}, err
	}
	e.Status = ExamStatus(status)
	e.Deleted = deleted != 0
	if err := json.Unmarshal([]byte(qjson), &e.Questions); err != nil {
		return Exam{}, fmt.Errorf("exam %s: decode questions: %w", e.ID, err)
	}
	return e, nil
}

func (s *SQLStore) GetExamAdmin(ctx context.Context, id string) (Exam, error) {
	e, err := scanExam(s.db.QueryRowContext(ctx,
		`SELECT `+examColumns+` FROM market_exams WHERE id=$1`, id))
	if err != nil {
		return Exam{}, err
	}
	if e.Deleted {
		return Exam{}, ErrNotFound
	}
	return e, nil
}

func (s *SQLStore) GetExam(ctx context.Context, id string) (Exam, error) {
	e, err := s.GetExamAdmin(ctx, id)
	if err != nil {
		return Exam{}, err
	}
	// Strip answer keys when serving to students
	for i := range e.Questions {
		e.Questions[i].CorrectIndex = 0
		e.Questions[i].Explanation = ""
		e.Questions[i].ExplanationImageURL = ""
	}
	return e, nil
}

func (s *SQLStore) ListExams(ctx context.Context, opts ListOpts) ([]ExamSummary, error) {
	var (
		where = []string{"is_deleted=0"}
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if opts.ViewerRole != "admin" {
		if opts.ViewerID != "" {
			where = append(where, "(status='PUBLISHED' OR creator_id="+arg(opts.ViewerID)+")")
		} else {
			where = append(where, "status='PUBLISHED'")
		}
	}
	if q := strings.TrimSpace(opts.Q); q != "" {
		p := arg("%" + strings.ToLower(q) + "%")
		where = append(where, "(LOWER(title) LIKE "+p+" OR LOWER(topic) LIKE "+p+")")
	}
	if opts.Subject != "" {
		where = append(where, "subject="+arg(opts.Subject))
	}
	limit := opts.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := `SELECT id,title,subject,topic,level,creator_id,creator_name,price,question_count,duration_minutes,status,rating,sales,created_at
		FROM market_exams WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY created_at DESC, id LIMIT ` + arg(limit) + ` OFFSET ` + arg(max(opts.Offset, 0))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []ExamSummary{}
	for rows.Next() {
		var (
			es     ExamSummary
			status string
		)
		if err := rows.Scan(&es.ID, &es.Title, &es.Subject, &es.Topic, &es.Level, &es.CreatorID,
			&es.CreatorName, &es.Price, &es.QuestionCount, &es.DurationMinutes, &status,
			&es.Rating, &es.Sales, &es.CreatedAt); err != nil {
			return nil, err
		}
		es.Status = ExamStatus(status)
		out = append(out, es)
	}
	return out, rows.Err()
}

// AppendQuestions merges qs into the exam's question list and returns the updated exam.
func (s *SQLStore) AppendQuestions(ctx context.Context, examID string, qs []Question) (Exam, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Exam{}, err
	}
	defer tx.Rollback()

	e, err := scanExam(tx.QueryRowContext(ctx,
		`SELECT `+examColumns+` FROM market_exams WHERE id=$1`, examID))
	if err != nil {
		return Exam{}, err
	}
	if e.Deleted {
		return Exam{}, ErrNotFound
	}
	e.Questions = append(e.Questions, qs...)
	buf, err := json.Marshal(e.Questions)
	if err != nil {
		return Exam{}, err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE market_exams SET questions_json=$1, question_count=$2 WHERE id=$3`,
		string(buf), len(e.Questions), examID); err != nil {
		return Exam{}, err
	}
	if err := tx.Commit(); err != nil {
		return Exam{}, err
	}
	return e, nil
}

func (s *SQLStore) SetStatus(ctx context.Context, examID string, st ExamStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE market_exams SET status=$1 WHERE id=$2 AND is_deleted=0`, string(st), examID)
	return affected(res, err)
}

// DeleteExam is a soft delete; purchases keep pointing at the row.
func (s *SQLStore) DeleteExam(ctx context.Context, examID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE market_exams SET is_deleted=1 WHERE id=$1 AND is_deleted=0`, examID)
	return affected(res, err)
}

// Purchase records that userID owns examID. Payment happens elsewhere.
func (s *SQLStore) Purchase(ctx context.Context, userID, examID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO exam_purchases (user_id, exam_id, created_at) VALUES ($1,$2,$3)
		 ON CONFLICT (user_id, exam_id) DO NOTHING`,
		userID, examID, time.Now().Unix())
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrAlreadyOwned
	}
	res, err = tx.ExecContext(ctx,
		`UPDATE market_exams SET sales=sales+1 WHERE id=$1 AND is_deleted=0`, examID)
	if err := affected(res, err); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLStore) HasPurchase(ctx context.Context, userID, examID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM exam_purchases WHERE user_id=$1 AND exam_id=$2`, userID, examID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func affected(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}
