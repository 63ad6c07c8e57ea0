// Package quota limits how many free AI exams a non-premium user starts per day.
package quota

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"time"

	"github.com/helloclass/helloclass-lms/internal/exam"
)

const DefaultDailyLimit = 1

type Daily struct {
	db    *sql.DB
	limit int
	now   func() time.Time
}

func NewDaily(db *sql.DB, limit int) *Daily {
	if limit <= 0 {
		limit = DefaultDailyLimit
	}
	return &Daily{db: db, limit: limit, now: time.Now}
}

// WithClock swaps the time source; days roll over at UTC midnight.
func (d *Daily) WithClock(now func() time.Time) *Daily {
	d.now = now
	return d
}

func (d *Daily) day() string { return d.now().UTC().Format("2006-01-02") }

// Reserve takes one of today's free slots for userID before the exam is
// generated. The check and the increment are one conditional upsert, so
// parallel starts cannot overshoot the limit. Premium users are counted but
// never refused. The returned release hands the slot back when the exam
// never started; it is safe to call more than once.
func (d *Daily) Reserve(ctx context.Context, userID string) (func(context.Context) error, error) {
	premium, err := d.premium(ctx, userID)
	if err != nil {
		return nil, err
	}
	limit := d.limit
	if premium {
		limit = math.MaxInt32
	}

	day := d.day()
	res, err := d.db.ExecContext(ctx,
		`INSERT INTO daily_quota (user_id, day, used) VALUES ($1,$2,1)
		 ON CONFLICT (user_id, day) DO UPDATE SET used=daily_quota.used+1
		 WHERE daily_quota.used < $3`,
		userID, day, limit)
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, exam.ErrDailyLimitReached
	}

	released := false
	return func(ctx context.Context) error {
		if released {
			return nil
		}
		released = true
		_, err := d.db.ExecContext(ctx,
			`UPDATE daily_quota SET used=used-1 WHERE user_id=$1 AND day=$2 AND used > 0`,
			userID, day)
		return err
	}, nil
}

func (d *Daily) premium(ctx context.Context, userID string) (bool, error) {
	var premium int
	err := d.db.QueryRowContext(ctx, `SELECT is_premium FROM users WHERE id=$1`, userID).Scan(&premium)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return premium != 0, err
}

func (d *Daily) Used(ctx context.Context, userID string) (int, error) {
	var used int
	err := d.db.QueryRowContext(ctx,
		`SELECT used FROM daily_quota WHERE user_id=$1 AND day=$2`, userID, d.day()).Scan(&used)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return used, err
}
