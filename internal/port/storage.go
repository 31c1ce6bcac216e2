package port

import (
	"context"

	"github.com/atelier-gallery/atelier/internal/core/domain"
)

// ItemRepository is the inventory ledger: the single source of truth for
// "is this item still sellable". Every status write goes through a
// guarded transition inside one storage transaction; the row lock is
// held only for the check-and-set, never across a provider call.
type ItemRepository interface {
	CreateItem(ctx context.Context, item *domain.Item) error

	// UpdateItem applies an administrative edit. Price changes on a SOLD
	// item return domain.ErrSoldPriceImmutable; status changes must be
	// legal per the admin transition table or domain.ErrIllegalTransition
	// is returned.
	UpdateItem(ctx context.Context, item *domain.Item) error

	// SetItemStatus performs one guarded administrative transition
	// (hide, unhide, release a stale hold).
	SetItemStatus(ctx context.Context, itemID string, to domain.ItemStatus) error

	GetItem(ctx context.Context, itemID string) (*domain.Item, error)
	ListItems(ctx context.Context) ([]domain.Item, error)

	// DeleteItem refuses with domain.ErrItemReferenced while any order
	// record references the item.
	DeleteItem(ctx context.Context, itemID string) error
}

// SettleParams identifies the order to settle (by rail + external
// reference, or by order id for the manual bank path) and the settlement
// data to record. From is the set of item statuses the sale may be
// finalized out of.
type SettleParams struct {
	Rail        domain.Rail
	ExternalRef string
	OrderID     string
	From        []domain.ItemStatus

	SettlementRef string
	BuyerEmail    string
	Shipping      *domain.ShippingSnapshot
}

// OrderRepository is the order record store. Settle is the one operation
// that touches both the order row and the item row, in a single local
// transaction, so "item sold" and "order paid" are never observably
// inconsistent.
type OrderRepository interface {
	// CreateReserved inserts the order and reserves its item atomically
	// (bank and wallet rails). Returns *domain.UnavailableError when the
	// item is not AVAILABLE.
	CreateReserved(ctx context.Context, order *domain.Order) error

	// CreatePending inserts the order without holding the item (card
	// rail); the item must currently be AVAILABLE.
	CreatePending(ctx context.Context, order *domain.Order) error

	FindByExternalRef(ctx context.Context, rail domain.Rail, ref string) (*domain.Order, error)
	GetOrder(ctx context.Context, orderID string) (*domain.Order, error)
	ListOrders(ctx context.Context) ([]domain.Order, error)

	// Settle finalizes the sale: item -> SOLD (guarded by params.From)
	// and order -> PAID in one transaction. A second call for an
	// already-PAID order is a no-op returning alreadyPaid=true, which
	// makes provider callback retries safe. A lost guard returns
	// *domain.ConflictError.
	Settle(ctx context.Context, params SettleParams) (order *domain.Order, alreadyPaid bool, err error)
}

// SettingRepository persists encrypted vault entries. It never sees
// plaintext.
type SettingRepository interface {
	UpsertSetting(ctx context.Context, setting domain.SecureSetting) error
	// GetSetting returns nil when the setting does not exist.
	GetSetting(ctx context.Context, name string) (*domain.SecureSetting, error)
	ListSettings(ctx context.Context, names []string) ([]domain.SecureSetting, error)
}
