package inventory

import (
	"context"
	"database/sql"
	"errors"
)

var (
	ErrEmpty             = errors.New("no units left")
	ErrUnknownItem       = errors.New("unknown shop item")
	ErrAlreadyOwned      = errors.New("item already owned")
	ErrInsufficientFunds = errors.New("insufficient points")
)

type Item struct {
	ItemID string `json:"item_id"`
	Qty    int    `json:"qty"`
}

// SQLInventory keeps per-user item counts in user_items.
type SQLInventory struct{ db *sql.DB }

func NewSQLInventory(db *sql.DB) *SQLInventory { return &SQLInventory{db: db} }

func (s *SQLInventory) Count(ctx context.Context, userID, itemID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT qty FROM user_items WHERE user_id=$1 AND item_id=$2`, userID, itemID).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return n, err
}

// Consume removes one unit. The decrement is a single conditional UPDATE so
// concurrent consumers can never drive the count below zero.
func (s *SQLInventory) Consume(ctx context.Context, userID, itemID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE user_items SET qty=qty-1 WHERE user_id=$1 AND item_id=$2 AND qty>0`, userID, itemID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return ErrEmpty
	}
	return nil
}

func (s *SQLInventory) Grant(ctx context.Context, userID, itemID string, n int) error {
	return grant(ctx, s.db, userID, itemID, n)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func grant(ctx context.Context, db execer, userID, itemID string, n int) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO user_items (user_id, item_id, qty) VALUES ($1,$2,$3)
		 ON CONFLICT (user_id, item_id) DO UPDATE SET qty=user_items.qty+EXCLUDED.qty`,
		userID, itemID, n)
	return err
}

// List returns the items the user holds at least one unit of.
func (s *SQLInventory) List(ctx context.Context, userID string) ([]Item, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT item_id, qty FROM user_items WHERE user_id=$1 AND qty>0 ORDER BY item_id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Item{}
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ItemID, &it.Qty); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}
