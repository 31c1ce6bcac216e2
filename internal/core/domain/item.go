package domain

import "time"

// ItemStatus is the lifecycle state of a single, non-restockable item.
// Sale transitions are monotone: AVAILABLE -> RESERVED -> SOLD. HIDDEN is
// an administrative side branch reachable only from AVAILABLE. SOLD is
// terminal.
type ItemStatus string

const (
	ItemAvailable ItemStatus = "AVAILABLE"
	ItemReserved  ItemStatus = "RESERVED"
	ItemSold      ItemStatus = "SOLD"
	ItemHidden    ItemStatus = "HIDDEN"
)

func (s ItemStatus) Valid() bool {
	switch s {
	case ItemAvailable, ItemReserved, ItemSold, ItemHidden:
		return true
	}
	return false
}

// adminTransitions is the closed table of status changes an administrator
// may perform. RESERVED -> AVAILABLE is the manual release of a stale
// bank-transfer hold. Nothing leaves SOLD.
var adminTransitions = map[ItemStatus][]ItemStatus{
	ItemAvailable: {ItemHidden},
	ItemHidden:    {ItemAvailable},
	ItemReserved:  {ItemAvailable},
	ItemSold:      {},
}

// CanAdminTransition reports whether an administrator may move an item
// from one status to another. Same-status writes are allowed (no-op).
func CanAdminTransition(from, to ItemStatus) bool {
	if from == to {
		return true
	}
	for _, next := range adminTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CanReserve reports whether a buyer-facing reservation may take the item.
func CanReserve(from ItemStatus) bool {
	return from == ItemAvailable
}

// CanFinalize reports whether a settlement may move the item to SOLD,
// given the set of statuses the caller considers settleable.
func CanFinalize(from ItemStatus, allowed []ItemStatus) bool {
	for _, s := range allowed {
		if s == from {
			return true
		}
	}
	return false
}

// Item is one physically unique artifact in the catalog. Status is never
// written directly; it changes only through the ledger's guarded
// transition operations.
type Item struct {
	ID         string
	Slug       string
	Category   string
	PriceCents int64
	Status     ItemStatus
	// Size is a free-text dimension string ("30x40 cm"); it feeds the
	// shipping size classification, nothing else.
	Size   string
	Finish string
	// Optional references to a linked payment-provider catalog entry.
	ProviderProductID string
	ProviderPriceID   string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
