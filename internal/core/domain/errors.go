package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy for the checkout engine. Sentinels cover the flat cases;
// UnavailableError, ConflictError and ProviderError carry context the
// handlers and the operator queue need.
var (
	// ErrValidation: malformed buyer or admin input, rejected before any
	// state change.
	ErrValidation = errors.New("invalid input")

	// ErrNotConfigured: a required credential is missing from the vault;
	// the rail reports itself unusable rather than failing a buyer.
	ErrNotConfigured = errors.New("not configured")

	ErrNotFound = errors.New("not found")

	// ErrPaymentPending: the provider reports the payment has not
	// succeeded yet. No charge confirmed, safe for the buyer to retry.
	ErrPaymentPending = errors.New("payment not succeeded")

	// ErrSoldPriceImmutable: price edits on a SOLD item are rejected for
	// financial auditability.
	ErrSoldPriceImmutable = errors.New("price of a sold item is immutable")

	// ErrItemReferenced: items referenced by order records are never
	// physically deleted.
	ErrItemReferenced = errors.New("item is referenced by orders")

	// ErrIllegalTransition: the requested status change is not in the
	// admin transition table.
	ErrIllegalTransition = errors.New("illegal status transition")
)

// UnavailableError: the item was not in the required status at
// reservation time. Buyer-visible and recoverable by picking another
// item.
type UnavailableError struct {
	ItemID string
	Status ItemStatus
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("item %s is %s", e.ItemID, e.Status)
}

// ConflictError: a remote charge succeeded but the local sale transition
// lost the race. Not retryable by the buyer; money has moved and an
// operator must reconcile.
type ConflictError struct {
	Rail        Rail
	ItemID      string
	OrderID     string
	ProviderRef string
	Status      ItemStatus
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("settlement conflict on item %s (order %s, %s ref %s): item is %s",
		e.ItemID, e.OrderID, e.Rail, e.ProviderRef, e.Status)
}

// ProviderError: a remote call failed or timed out before any charge was
// confirmed. Safe for the buyer to retry.
type ProviderError struct {
	Rail Rail
	Op   string
	Err  error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s provider %s: %v", e.Rail, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }
