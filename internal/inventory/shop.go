package inventory

import (
	"context"
	"log"
)

type ItemType string

const (
	TypeFrame ItemType = "FRAME"
	TypeJoker ItemType = "JOKER"
)

type ShopItem struct {
	ID          string   `json:"id"`
	Type        ItemType `json:"type"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Price       int      `json:"price"` // points
	ImageURL    string   `json:"image_url"`
}

var Catalog = []ShopItem{
	{ID: "frame_gold", Type: TypeFrame, Name: "Altın Çerçeve", Description: "Profilinde parıldayan bir altın çerçeve.", Price: 500, ImageURL: "frame-gold"},
	{ID: "frame_neon", Type: TypeFrame, Name: "Neon Cyber", Description: "Fütüristik neon ışıklar.", Price: 750, ImageURL: "frame-neon"},
	{ID: "frame_fire", Type: TypeFrame, Name: "Alev Ustası", Description: "Yanıyorsun!", Price: 1000, ImageURL: "frame-fire"},
	{ID: "joker_5050", Type: TypeJoker, Name: "%50 Joker", Description: "Sınavda iki yanlış şıkkı eler.", Price: 200, ImageURL: "🧩"},
	{ID: "joker_skip", Type: TypeJoker, Name: "Pas Geç", Description: "Soruyu doğru cevaplayıp geçer.", Price: 150, ImageURL: "⏭️"},
}

func FindItem(id string) (ShopItem, bool) {
	for _, it := range Catalog {
		if it.ID == id {
			return it, true
		}
	}
	return ShopItem{}, false
}

// Buy charges the item's price in points and adds one unit to the user's
// inventory, both in one transaction. Frames can only be owned once. It returns
// the user's remaining points.
func (s *SQLInventory) Buy(ctx context.Context, userID, itemID string) (int, error) {
	item, ok := FindItem(itemID)
	if !ok {
		return 0, ErrUnknownItem
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if item.Type == TypeFrame {
		var qty int
		err := tx.QueryRowContext(ctx,
			`SELECT qty FROM user_items WHERE user_id=$1 AND item_id=$2`, userID, itemID).Scan(&qty)
		if err == nil && qty > 0 {
			return 0, ErrAlreadyOwned
		}
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE users SET points=points-$1 WHERE id=$2 AND points>=$1`, item.Price, userID)
	if err != nil {
		return 0, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return 0, ErrInsufficientFunds
	}
	if err := grant(ctx, tx, userID, itemID, 1); err != nil {
		return 0, err
	}
	var left int
	if err := tx.QueryRowContext(ctx, `SELECT points FROM users WHERE id=$1`, userID).Scan(&left); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	log.Printf("inventory: %s bought %s for %d points", userID, itemID, item.Price)
	return left, nil
}
