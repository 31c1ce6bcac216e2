package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/atelier-gallery/atelier/internal/core/domain"
	"github.com/atelier-gallery/atelier/internal/port"
)

// MySQLAdapter implements the inventory ledger, the order record store
// and the secure-setting rows. Every status transition is a
// SELECT ... FOR UPDATE followed by a conditional UPDATE inside one
// transaction; the row lock is scoped to that window and is never held
// across a call to a payment provider.
type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

// --- items -----------------------------------------------------------

const itemColumns = `id, slug, category, price_cents, status, size, finish,
	provider_product_id, provider_price_id, created_at, updated_at`

func scanItem(row interface{ Scan(...any) error }) (*domain.Item, error) {
	var it domain.Item
	var size, finish, prodID, priceID sql.NullString
	err := row.Scan(&it.ID, &it.Slug, &it.Category, &it.PriceCents, &it.Status,
		&size, &finish, &prodID, &priceID, &it.CreatedAt, &it.UpdatedAt)
	if err != nil {
		return nil, err
	}
	it.Size = size.String
	it.Finish = finish.String
	it.ProviderProductID = prodID.String
	it.ProviderPriceID = priceID.String
	return &it, nil
}

func (m *MySQLAdapter) CreateItem(ctx context.Context, item *domain.Item) error {
	if item.Status == "" {
		item.Status = domain.ItemAvailable
	}
	if !item.Status.Valid() {
		return fmt.Errorf("%w: status %q", domain.ErrValidation, item.Status)
	}
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO items (id, slug, category, price_cents, status, size, finish,
			provider_product_id, provider_price_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, NOW(), NOW())`,
		item.ID, item.Slug, item.Category, item.PriceCents, item.Status,
		nullable(item.Size), nullable(item.Finish),
		nullable(item.ProviderProductID), nullable(item.ProviderPriceID),
	)
	if err != nil {
		return fmt.Errorf("insert item: %w", err)
	}
	return nil
}

// Update applies an administrative edit under the same per-item lock the
// buyer-facing reservations contend for. Price edits on a SOLD item and
// transitions outside the admin table are rejected.
func (m *MySQLAdapter) UpdateItem(ctx context.Context, item *domain.Item) error {
	if !item.Status.Valid() {
		return fmt.Errorf("%w: status %q", domain.ErrValidation, item.Status)
	}
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var current domain.ItemStatus
	var currentPrice int64
	err = tx.QueryRowContext(ctx,
		`SELECT status, price_cents FROM items WHERE id = ? FOR UPDATE`, item.ID,
	).Scan(&current, &currentPrice)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lock item: %w", err)
	}

	if current == domain.ItemSold && item.PriceCents != currentPrice {
		return domain.ErrSoldPriceImmutable
	}
	if !domain.CanAdminTransition(current, item.Status) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrIllegalTransition, current, item.Status)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE items
		SET slug = ?, category = ?, price_cents = ?, status = ?, size = ?, finish = ?,
			provider_product_id = ?, provider_price_id = ?, updated_at = NOW()
		WHERE id = ?`,
		item.Slug, item.Category, item.PriceCents, item.Status,
		nullable(item.Size), nullable(item.Finish),
		nullable(item.ProviderProductID), nullable(item.ProviderPriceID),
		item.ID,
	)
	if err != nil {
		return fmt.Errorf("update item: %w", err)
	}
	return tx.Commit()
}

func (m *MySQLAdapter) SetItemStatus(ctx context.Context, itemID string, to domain.ItemStatus) error {
	if !to.Valid() {
		return fmt.Errorf("%w: status %q", domain.ErrValidation, to)
	}
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var current domain.ItemStatus
	err = tx.QueryRowContext(ctx,
		`SELECT status FROM items WHERE id = ? FOR UPDATE`, itemID,
	).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lock item: %w", err)
	}
	if !domain.CanAdminTransition(current, to) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrIllegalTransition, current, to)
	}
	if current != to {
		if _, err := tx.ExecContext(ctx,
			`UPDATE items SET status = ?, updated_at = NOW() WHERE id = ?`, to, itemID); err != nil {
			return fmt.Errorf("update status: %w", err)
		}
	}
	return tx.Commit()
}

func (m *MySQLAdapter) GetItem(ctx context.Context, itemID string) (*domain.Item, error) {
	row := m.db.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE id = ?`, itemID)
	it, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query item: %w", err)
	}
	return it, nil
}

func (m *MySQLAdapter) ListItems(ctx context.Context) ([]domain.Item, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM items ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	var items []domain.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, *it)
	}
	return items, rows.Err()
}

func (m *MySQLAdapter) DeleteItem(ctx context.Context, itemID string) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var refs int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM orders WHERE item_id = ?`, itemID).Scan(&refs); err != nil {
		return fmt.Errorf("count order refs: %w", err)
	}
	if refs > 0 {
		return domain.ErrItemReferenced
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, itemID)
	if err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return tx.Commit()
}

// --- orders ----------------------------------------------------------

const orderColumns = `id, item_id, rail, external_ref, settlement_ref, status,
	amount_cents, buyer_email, shipping_json, created_at, paid_at`

func scanOrder(row interface{ Scan(...any) error }) (*domain.Order, error) {
	var o domain.Order
	var settlementRef, buyerEmail, shippingJSON sql.NullString
	var paidAt sql.NullTime
	err := row.Scan(&o.ID, &o.ItemID, &o.Rail, &o.ExternalRef, &settlementRef,
		&o.Status, &o.AmountCents, &buyerEmail, &shippingJSON, &o.CreatedAt, &paidAt)
	if err != nil {
		return nil, err
	}
	o.SettlementRef = settlementRef.String
	o.BuyerEmail = buyerEmail.String
	if shippingJSON.Valid && shippingJSON.String != "" {
		if err := json.Unmarshal([]byte(shippingJSON.String), &o.Shipping); err != nil {
			return nil, fmt.Errorf("decode shipping snapshot: %w", err)
		}
	}
	if paidAt.Valid {
		t := paidAt.Time
		o.PaidAt = &t
	}
	return &o, nil
}

func insertOrder(ctx context.Context, tx *sql.Tx, order *domain.Order) error {
	shippingJSON, err := json.Marshal(order.Shipping)
	if err != nil {
		return fmt.Errorf("encode shipping snapshot: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (id, item_id, rail, external_ref, settlement_ref, status,
			amount_cents, buyer_email, shipping_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, NOW())`,
		order.ID, order.ItemID, order.Rail, order.ExternalRef,
		nullable(order.SettlementRef), order.Status, order.AmountCents,
		nullable(order.BuyerEmail), string(shippingJSON),
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

// CreateReserved takes the item out of AVAILABLE and records the order in
// one transaction. This is the bank and wallet creation path; there is no
// remote dependency inside the lock window.
func (m *MySQLAdapter) CreateReserved(ctx context.Context, order *domain.Order) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var current domain.ItemStatus
	err = tx.QueryRowContext(ctx,
		`SELECT status FROM items WHERE id = ? FOR UPDATE`, order.ItemID,
	).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lock item: %w", err)
	}
	if !domain.CanReserve(current) {
		return &domain.UnavailableError{ItemID: order.ItemID, Status: current}
	}

	order.Status = domain.OrderReserved
	if err := insertOrder(ctx, tx, order); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE items SET status = ?, updated_at = NOW() WHERE id = ?`,
		domain.ItemReserved, order.ItemID); err != nil {
		return fmt.Errorf("reserve item: %w", err)
	}
	return tx.Commit()
}

// CreatePending records a card-rail order without holding the item; the
// reservation is deferred into settlement. The availability check still
// runs under the row lock so a racing sale cannot slip between check and
// insert.
func (m *MySQLAdapter) CreatePending(ctx context.Context, order *domain.Order) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var current domain.ItemStatus
	err = tx.QueryRowContext(ctx,
		`SELECT status FROM items WHERE id = ? FOR UPDATE`, order.ItemID,
	).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lock item: %w", err)
	}
	if current != domain.ItemAvailable {
		return &domain.UnavailableError{ItemID: order.ItemID, Status: current}
	}

	order.Status = domain.OrderCreated
	if err := insertOrder(ctx, tx, order); err != nil {
		return err
	}
	return tx.Commit()
}

func (m *MySQLAdapter) FindByExternalRef(ctx context.Context, rail domain.Rail, ref string) (*domain.Order, error) {
	row := m.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE rail = ? AND external_ref = ?`, rail, ref)
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query order: %w", err)
	}
	return o, nil
}

func (m *MySQLAdapter) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	row := m.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = ?`, orderID)
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query order: %w", err)
	}
	return o, nil
}

func (m *MySQLAdapter) ListOrders(ctx context.Context) ([]domain.Order, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT `+orderColumns+` FROM orders ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *o)
	}
	return orders, rows.Err()
}

// Settle finalizes a sale. Order lookup, the guarded item transition and
// the order's PAID write share one transaction, so either both rows move
// or neither does. Re-settling a PAID order short-circuits to success.
func (m *MySQLAdapter) Settle(ctx context.Context, params port.SettleParams) (*domain.Order, bool, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var row *sql.Row
	if params.OrderID != "" {
		row = tx.QueryRowContext(ctx,
			`SELECT `+orderColumns+` FROM orders WHERE id = ? FOR UPDATE`, params.OrderID)
	} else {
		row = tx.QueryRowContext(ctx,
			`SELECT `+orderColumns+` FROM orders WHERE rail = ? AND external_ref = ? FOR UPDATE`,
			params.Rail, params.ExternalRef)
	}
	order, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, domain.ErrNotFound
	}
	if err != nil {
		return nil, false, fmt.Errorf("lock order: %w", err)
	}

	if order.Status == domain.OrderPaid {
		return order, true, nil
	}

	placeholders, args := statusArgs(params.From)
	args = append([]any{order.ItemID}, args...)
	res, err := tx.ExecContext(ctx,
		`UPDATE items SET status = 'SOLD', updated_at = NOW()
		 WHERE id = ? AND status IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, false, fmt.Errorf("finalize sale: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var current domain.ItemStatus
		if err := tx.QueryRowContext(ctx,
			`SELECT status FROM items WHERE id = ?`, order.ItemID).Scan(&current); err != nil {
			return nil, false, fmt.Errorf("read item status: %w", err)
		}
		return nil, false, &domain.ConflictError{
			Rail:        order.Rail,
			ItemID:      order.ItemID,
			OrderID:     order.ID,
			ProviderRef: order.ExternalRef,
			Status:      current,
		}
	}

	if params.BuyerEmail != "" {
		order.BuyerEmail = params.BuyerEmail
	}
	if params.Shipping != nil {
		order.Shipping = *params.Shipping
	}
	shippingJSON, err := json.Marshal(order.Shipping)
	if err != nil {
		return nil, false, fmt.Errorf("encode shipping snapshot: %w", err)
	}
	now := time.Now()
	_, err = tx.ExecContext(ctx, `
		UPDATE orders
		SET status = 'PAID', settlement_ref = ?, buyer_email = ?, shipping_json = ?, paid_at = NOW()
		WHERE id = ?`,
		nullable(params.SettlementRef), nullable(order.BuyerEmail),
		string(shippingJSON), order.ID,
	)
	if err != nil {
		return nil, false, fmt.Errorf("mark order paid: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit settle: %w", err)
	}

	order.Status = domain.OrderPaid
	order.SettlementRef = params.SettlementRef
	order.PaidAt = &now
	return order, false, nil
}

// --- secure settings -------------------------------------------------

func (m *MySQLAdapter) UpsertSetting(ctx context.Context, setting domain.SecureSetting) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO settings_secure (name, value_encrypted, value_suffix, updated_at, updated_by)
		VALUES (?, ?, ?, NOW(), ?)
		ON DUPLICATE KEY UPDATE
			value_encrypted = VALUES(value_encrypted),
			value_suffix = VALUES(value_suffix),
			updated_at = NOW(),
			updated_by = VALUES(updated_by)`,
		setting.Name, setting.Blob, setting.Suffix, nullable(setting.UpdatedBy),
	)
	if err != nil {
		return fmt.Errorf("upsert setting: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) GetSetting(ctx context.Context, name string) (*domain.SecureSetting, error) {
	var s domain.SecureSetting
	var updatedBy sql.NullString
	err := m.db.QueryRowContext(ctx, `
		SELECT name, value_encrypted, value_suffix, updated_at, updated_by
		FROM settings_secure WHERE name = ?`, name,
	).Scan(&s.Name, &s.Blob, &s.Suffix, &s.UpdatedAt, &updatedBy)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query setting: %w", err)
	}
	s.UpdatedBy = updatedBy.String
	return &s, nil
}

func (m *MySQLAdapter) ListSettings(ctx context.Context, names []string) ([]domain.SecureSetting, error) {
	if len(names) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(names)), ",")
	args := make([]any, len(names))
	for i, n := range names {
		args[i] = n
	}
	rows, err := m.db.QueryContext(ctx, `
		SELECT name, value_encrypted, value_suffix, updated_at, updated_by
		FROM settings_secure WHERE name IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("query settings: %w", err)
	}
	defer rows.Close()

	var settings []domain.SecureSetting
	for rows.Next() {
		var s domain.SecureSetting
		var updatedBy sql.NullString
		if err := rows.Scan(&s.Name, &s.Blob, &s.Suffix, &s.UpdatedAt, &updatedBy); err != nil {
			return nil, fmt.Errorf("scan setting: %w", err)
		}
		s.UpdatedBy = updatedBy.String
		settings = append(settings, s)
	}
	return settings, rows.Err()
}

// --- helpers ---------------------------------------------------------

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func statusArgs(statuses []domain.ItemStatus) (string, []any) {
	if len(statuses) == 0 {
		// Empty guard set matches nothing.
		return "'__none__'", nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(statuses)), ",")
	args := make([]any, len(statuses))
	for i, s := range statuses {
		args[i] = string(s)
	}
	return placeholders, args
}
