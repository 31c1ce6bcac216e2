package domain

import "time"

// Rail identifies one integration path to a payment method.
type Rail string

const (
	RailBank   Rail = "BANK"
	RailCard   Rail = "CARD"
	RailWallet Rail = "WALLET"
)

func (r Rail) Valid() bool {
	switch r {
	case RailBank, RailCard, RailWallet:
		return true
	}
	return false
}

type OrderStatus string

const (
	// OrderCreated: recorded locally, item not yet held (card rail).
	OrderCreated OrderStatus = "CREATED"
	// OrderReserved: item held, payment outstanding (bank and wallet rails).
	OrderReserved OrderStatus = "RESERVED"
	// OrderPaid: settlement confirmed. At most one order per item ever
	// reaches PAID; the item row's guarded transition enforces it.
	OrderPaid   OrderStatus = "PAID"
	OrderFailed OrderStatus = "FAILED"
)

// ShippingSnapshot is the buyer contact captured at creation (bank, card)
// or at capture (wallet). It is a point-in-time record, immutable once
// written.
type ShippingSnapshot struct {
	Name    string `json:"name,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
	City    string `json:"city,omitempty"`
	Zip     string `json:"zip,omitempty"`
	Country string `json:"country,omitempty"`
}

// Order is one attempted or completed transaction against exactly one
// item. ExternalRef is the provider-issued handle the rail is later
// confirmed by: the bank reference string, the card payment-intent id, or
// the wallet order id. SettlementRef is filled at settlement (card charge
// id, wallet capture id).
type Order struct {
	ID            string
	ItemID        string
	Rail          Rail
	ExternalRef   string
	SettlementRef string
	Status        OrderStatus
	AmountCents   int64
	BuyerEmail    string
	Shipping      ShippingSnapshot
	CreatedAt     time.Time
	PaidAt        *time.Time
}

// ReconciliationEntry records a settlement conflict: the provider charged
// the buyer but the local sale transition lost. Money has moved, so these
// are queued for an operator, never dropped.
type ReconciliationEntry struct {
	Rail        Rail      `json:"rail"`
	ItemID      string    `json:"item_id"`
	OrderID     string    `json:"order_id"`
	ProviderRef string    `json:"provider_ref"`
	Reason      string    `json:"reason"`
	At          time.Time `json:"at"`
}
