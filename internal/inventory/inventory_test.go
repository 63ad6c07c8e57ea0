package inventory_test

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"

	"github.com/helloclass/helloclass-lms/internal/db"
	"github.com/helloclass/helloclass-lms/internal/exam"
	"github.com/helloclass/helloclass-lms/internal/inventory"
)

func openInventory(t *testing.T) (*inventory.SQLInventory, *sql.DB) {
	t.Helper()
	conn, err := db.Open(context.Background(), db.DriverSQLite, "file:"+t.Name()+"?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return inventory.NewSQLInventory(conn), conn
}

func seedUser(t *testing.T, conn *sql.DB, id string, points int) {
	t.Helper()
	if _, err := conn.Exec(`INSERT INTO users (id, username, password_hash, role, points, created_at)
		VALUES ($1,$1,'x','student',$2,0)`, id, points); err != nil {
		t.Fatalf("seed user: %v", err)
	}
}

// compile-time check: the SQL inventory is what sessions consume jokers from
var _ exam.Inventory = (*inventory.SQLInventory)(nil)

func TestCountConsumeGrant(t *testing.T) {
	inv, _ := openInventory(t)
	ctx := context.Background()

	if n, err := inv.Count(ctx, "u1", exam.ItemJoker5050); err != nil || n != 0 {
		t.Fatalf("empty count = %d, %v", n, err)
	}
	if err := inv.Consume(ctx, "u1", exam.ItemJoker5050); !errors.Is(err, inventory.ErrEmpty) {
		t.Fatalf("consume empty: %v", err)
	}
	if err := inv.Grant(ctx, "u1", exam.ItemJoker5050, 2); err != nil {
		t.Fatal(err)
	}
	if err := inv.Grant(ctx, "u1", exam.ItemJoker5050, 1); err != nil {
		t.Fatal(err)
	}
	if n, _ := inv.Count(ctx, "u1", exam.ItemJoker5050); n != 3 {
		t.Fatalf("count = %d", n)
	}
	if err := inv.Consume(ctx, "u1", exam.ItemJoker5050); err != nil {
		t.Fatal(err)
	}
	if n, _ := inv.Count(ctx, "u1", exam.ItemJoker5050); n != 2 {
		t.Fatalf("count after consume = %d", n)
	}
}

func TestConsumeNeverNegative(t *testing.T) {
	inv, _ := openInventory(t)
	ctx := context.Background()
	if err := inv.Grant(ctx, "u1", exam.ItemJokerSkip, 3); err != nil {
		t.Fatal(err)
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if inv.Consume(ctx, "u1", exam.ItemJokerSkip) == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if ok != 3 {
		t.Fatalf("successful consumes = %d, want 3", ok)
	}
	if n, _ := inv.Count(ctx, "u1", exam.ItemJokerSkip); n != 0 {
		t.Fatalf("count = %d", n)
	}
}

func TestList(t *testing.T) {
	inv, _ := openInventory(t)
	ctx := context.Background()
	_ = inv.Grant(ctx, "u1", "joker_skip", 1)
	_ = inv.Grant(ctx, "u1", "frame_gold", 1)
	_ = inv.Grant(ctx, "u1", "joker_5050", 1)
	_ = inv.Consume(ctx, "u1", "joker_5050")

	items, err := inv.List(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 || items[0].ItemID != "frame_gold" || items[1].ItemID != "joker_skip" {
		t.Fatalf("items = %+v", items)
	}
}

func TestBuy(t *testing.T) {
	inv, conn := openInventory(t)
	ctx := context.Background()
	seedUser(t, conn, "u1", 900)

	left, err := inv.Buy(ctx, "u1", "frame_gold")
	if err != nil || left != 400 {
		t.Fatalf("buy frame: left=%d err=%v", left, err)
	}
	if _, err := inv.Buy(ctx, "u1", "frame_gold"); !errors.Is(err, inventory.ErrAlreadyOwned) {
		t.Fatalf("second frame: %v", err)
	}
	left, err = inv.Buy(ctx, "u1", "joker_5050")
	if err != nil || left != 200 {
		t.Fatalf("buy joker: left=%d err=%v", left, err)
	}
	left, err = inv.Buy(ctx, "u1", "joker_5050")
	if err != nil || left != 0 {
		t.Fatalf("buy second joker: left=%d err=%v", left, err)
	}
	if _, err := inv.Buy(ctx, "u1", "joker_skip"); !errors.Is(err, inventory.ErrInsufficientFunds) {
		t.Fatalf("broke: %v", err)
	}
	if _, err := inv.Buy(ctx, "u1", "rocket"); !errors.Is(err, inventory.ErrUnknownItem) {
		t.Fatalf("unknown: %v", err)
	}
	if n, _ := inv.Count(ctx, "u1", "joker_5050"); n != 2 {
		t.Fatalf("jokers = %d", n)
	}
	if n, _ := inv.Count(ctx, "u1", "joker_skip"); n != 0 {
		t.Fatalf("refused purchase granted item")
	}
}
