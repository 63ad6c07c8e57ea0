package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/helloclass/helloclass-lms/internal/exam"
	"github.com/helloclass/helloclass-lms/internal/inventory"
	syncx "github.com/helloclass/helloclass-lms/internal/sync"
)

// HistoryLister reads the caller's finished exams.
type HistoryLister interface {
	History(ctx context.Context, userID string, limit int) ([]exam.HistoryItem, error)
}

func ListShopHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, inventory.Catalog)
	}
}

// POST /shop/{itemID}/buy
func BuyItemHandler(inv *inventory.SQLInventory, events EventAppender) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		itemID := chi.URLParam(r, "itemID")
		u := caller(r)
		left, err := inv.Buy(r.Context(), u.ID, itemID)
		if err != nil {
			writeError(w, err)
			return
		}
		appendEvent(r.Context(), events, syncx.TypeItemBought, u.ID, map[string]string{"item_id": itemID})
		writeJSON(w, http.StatusOK, map[string]any{"item_id": itemID, "points": left})
	}
}

func InventoryHandler(inv *inventory.SQLInventory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := inv.List(r.Context(), caller(r).ID)
		if err != nil {
			writeError(w, err)
			return
		}
		if items == nil {
			items = []inventory.Item{}
		}
		writeJSON(w, http.StatusOK, items)
	}
}

// GET /me/history?limit=
func HistoryHandler(h HistoryLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := h.History(r.Context(), caller(r).ID, parseIntDefault(r.URL.Query().Get("limit"), 50))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, items)
	}
}
