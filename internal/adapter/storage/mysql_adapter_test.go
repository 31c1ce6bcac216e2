package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/atelier-gallery/atelier/internal/core/domain"
	"github.com/atelier-gallery/atelier/internal/port"
)

// Tests assume schema.sql has been applied to the target database.

func getMySQLDB(t *testing.T) *sql.DB {
	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		dsn = "root:root@tcp(localhost:3306)/atelier?parseTime=true"
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		t.Skipf("MySQL not available: %v", err)
	}
	if err := db.Ping(); err != nil {
		t.Skipf("MySQL not available: %v", err)
	}
	return db
}

func newTestItem(t *testing.T, adapter *MySQLAdapter, status domain.ItemStatus) *domain.Item {
	t.Helper()
	ctx := context.Background()
	id := fmt.Sprintf("test-item-%d", time.Now().UnixNano())
	item := &domain.Item{
		ID:         id,
		Slug:       "slug-" + id,
		Category:   "ring",
		PriceCents: 25000,
		Status:     status,
		Size:       "18mm",
	}
	if err := adapter.CreateItem(ctx, item); err != nil {
		t.Fatalf("create item: %v", err)
	}
	t.Cleanup(func() {
		adapter.db.ExecContext(ctx, `DELETE FROM orders WHERE item_id = ?`, id)
		adapter.db.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id)
	})
	return item
}

func newTestOrder(item *domain.Item, rail domain.Rail, ref string) *domain.Order {
	return &domain.Order{
		ID:          fmt.Sprintf("test-order-%d", time.Now().UnixNano()),
		ItemID:      item.ID,
		Rail:        rail,
		ExternalRef: ref,
		AmountCents: item.PriceCents,
		BuyerEmail:  "buyer@example.com",
	}
}

func TestCreateReserved_OnlyOneWins(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db)
	item := newTestItem(t, adapter, domain.ItemAvailable)

	first := newTestOrder(item, domain.RailBank, "ref-first-"+item.ID)
	if err := adapter.CreateReserved(ctx, first); err != nil {
		t.Fatalf("first reservation failed: %v", err)
	}

	got, err := adapter.GetItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if got.Status != domain.ItemReserved {
		t.Errorf("expected item RESERVED, got %s", got.Status)
	}

	second := newTestOrder(item, domain.RailBank, "ref-second-"+item.ID)
	err = adapter.CreateReserved(ctx, second)
	var unavailable *domain.UnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected UnavailableError, got %v", err)
	}
	if unavailable.Status != domain.ItemReserved {
		t.Errorf("expected RESERVED in error, got %s", unavailable.Status)
	}
}

func TestCreatePending_LeavesItemAvailable(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db)
	item := newTestItem(t, adapter, domain.ItemAvailable)

	order := newTestOrder(item, domain.RailCard, "pi-"+item.ID)
	if err := adapter.CreatePending(ctx, order); err != nil {
		t.Fatalf("create pending failed: %v", err)
	}

	got, err := adapter.GetItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if got.Status != domain.ItemAvailable {
		t.Errorf("expected item AVAILABLE, got %s", got.Status)
	}

	stored, err := adapter.FindByExternalRef(ctx, domain.RailCard, order.ExternalRef)
	if err != nil {
		t.Fatalf("find by external ref: %v", err)
	}
	if stored.Status != domain.OrderCreated {
		t.Errorf("expected order CREATED, got %s", stored.Status)
	}
}

func TestSettle_IdempotentOnRetry(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db)
	item := newTestItem(t, adapter, domain.ItemAvailable)

	order := newTestOrder(item, domain.RailCard, "pi-settle-"+item.ID)
	if err := adapter.CreatePending(ctx, order); err != nil {
		t.Fatalf("create pending failed: %v", err)
	}

	params := port.SettleParams{
		Rail:          domain.RailCard,
		ExternalRef:   order.ExternalRef,
		From:          []domain.ItemStatus{domain.ItemAvailable, domain.ItemReserved},
		SettlementRef: "ch_test",
	}
	settled, already, err := adapter.Settle(ctx, params)
	if err != nil {
		t.Fatalf("settle failed: %v", err)
	}
	if already {
		t.Error("first settle reported already paid")
	}
	if settled.Status != domain.OrderPaid || settled.SettlementRef != "ch_test" {
		t.Errorf("unexpected settled order: %+v", settled)
	}

	got, _ := adapter.GetItem(ctx, item.ID)
	if got.Status != domain.ItemSold {
		t.Errorf("expected item SOLD, got %s", got.Status)
	}

	// Retrying the same settlement must be a no-op.
	_, already, err = adapter.Settle(ctx, params)
	if err != nil {
		t.Fatalf("retry settle failed: %v", err)
	}
	if !already {
		t.Error("retry did not report already paid")
	}
}

func TestSettle_ConflictWhenGuardLost(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db)
	item := newTestItem(t, adapter, domain.ItemAvailable)

	order := newTestOrder(item, domain.RailCard, "pi-conflict-"+item.ID)
	if err := adapter.CreatePending(ctx, order); err != nil {
		t.Fatalf("create pending failed: %v", err)
	}

	// The item is hidden between intent creation and confirmation.
	if err := adapter.SetItemStatus(ctx, item.ID, domain.ItemHidden); err != nil {
		t.Fatalf("hide item: %v", err)
	}

	_, _, err := adapter.Settle(ctx, port.SettleParams{
		Rail:        domain.RailCard,
		ExternalRef: order.ExternalRef,
		From:        []domain.ItemStatus{domain.ItemAvailable, domain.ItemReserved},
	})
	var conflict *domain.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if conflict.Status != domain.ItemHidden {
		t.Errorf("expected HIDDEN in conflict, got %s", conflict.Status)
	}
	if conflict.OrderID != order.ID {
		t.Errorf("expected order id %s, got %s", order.ID, conflict.OrderID)
	}

	// The order must not have moved.
	stored, _ := adapter.GetOrder(ctx, order.ID)
	if stored.Status != domain.OrderCreated {
		t.Errorf("expected order still CREATED, got %s", stored.Status)
	}
}

func TestUpdateItem_SoldPriceImmutable(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db)
	item := newTestItem(t, adapter, domain.ItemAvailable)

	order := newTestOrder(item, domain.RailBank, "ref-sold-"+item.ID)
	if err := adapter.CreateReserved(ctx, order); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}
	if _, _, err := adapter.Settle(ctx, port.SettleParams{
		OrderID: order.ID,
		From:    []domain.ItemStatus{domain.ItemAvailable, domain.ItemReserved},
	}); err != nil {
		t.Fatalf("settle failed: %v", err)
	}

	edited := *item
	edited.Status = domain.ItemSold
	edited.PriceCents = item.PriceCents + 1000
	if err := adapter.UpdateItem(ctx, &edited); !errors.Is(err, domain.ErrSoldPriceImmutable) {
		t.Errorf("expected ErrSoldPriceImmutable, got %v", err)
	}

	// Same price, other fields editable.
	edited.PriceCents = item.PriceCents
	edited.Finish = "patinated"
	if err := adapter.UpdateItem(ctx, &edited); err != nil {
		t.Errorf("expected edit without price change to pass, got %v", err)
	}
}

func TestSetItemStatus_Transitions(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db)
	item := newTestItem(t, adapter, domain.ItemAvailable)

	if err := adapter.SetItemStatus(ctx, item.ID, domain.ItemHidden); err != nil {
		t.Fatalf("hide failed: %v", err)
	}
	if err := adapter.SetItemStatus(ctx, item.ID, domain.ItemAvailable); err != nil {
		t.Fatalf("unhide failed: %v", err)
	}
	if err := adapter.SetItemStatus(ctx, item.ID, domain.ItemSold); !errors.Is(err, domain.ErrIllegalTransition) {
		t.Errorf("expected ErrIllegalTransition for direct SOLD write, got %v", err)
	}
}

func TestDeleteItem_RefusedWhileReferenced(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db)
	item := newTestItem(t, adapter, domain.ItemAvailable)

	order := newTestOrder(item, domain.RailBank, "ref-del-"+item.ID)
	if err := adapter.CreateReserved(ctx, order); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}

	if err := adapter.DeleteItem(ctx, item.ID); !errors.Is(err, domain.ErrItemReferenced) {
		t.Errorf("expected ErrItemReferenced, got %v", err)
	}
}

func TestSettings_UpsertAndGet(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db)

	name := fmt.Sprintf("test.setting.%d", time.Now().UnixNano())
	t.Cleanup(func() {
		db.ExecContext(ctx, `DELETE FROM settings_secure WHERE name = ?`, name)
	})

	missing, err := adapter.GetSetting(ctx, name)
	if err != nil {
		t.Fatalf("get missing setting: %v", err)
	}
	if missing != nil {
		t.Fatal("expected nil for absent setting")
	}

	setting := domain.SecureSetting{
		Name:      name,
		Blob:      []byte{0x01, 0x02, 0x03},
		Suffix:    "cdef",
		UpdatedBy: "test",
	}
	if err := adapter.UpsertSetting(ctx, setting); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	setting.Blob = []byte{0x04, 0x05}
	setting.Suffix = "4567"
	if err := adapter.UpsertSetting(ctx, setting); err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}

	got, err := adapter.GetSetting(ctx, name)
	if err != nil {
		t.Fatalf("get setting: %v", err)
	}
	if got.Suffix != "4567" || len(got.Blob) != 2 {
		t.Errorf("setting not overwritten: %+v", got)
	}

	list, err := adapter.ListSettings(ctx, []string{name, "never-written"})
	if err != nil {
		t.Fatalf("list settings: %v", err)
	}
	if len(list) != 1 || list[0].Name != name {
		t.Errorf("unexpected listing: %+v", list)
	}
}
