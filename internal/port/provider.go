package port

import (
	"context"

	"github.com/atelier-gallery/atelier/internal/core/domain"
)

// SecretSource is the read side of the credential vault. Adapters resolve
// provider keys immediately before each remote call; a missing key means
// the rail is not configured.
type SecretSource interface {
	Get(ctx context.Context, name string) (plaintext string, ok bool, err error)
}

// CardIntent mirrors the provider's payment-intent resource.
type CardIntent struct {
	ID           string
	ClientSecret string
	Status       string
	LatestCharge string
}

// CardProvider is the hosted card-payment flow: create an intent, later
// verify its status server-side. The confirmation path never trusts a
// client-supplied success flag.
type CardProvider interface {
	CreateIntent(ctx context.Context, apiKey string, amountCents int64, currency, itemID string) (*CardIntent, error)
	GetIntent(ctx context.Context, apiKey, intentID string) (*CardIntent, error)
	// ChargeEmail looks up the receipt email on a charge; best effort.
	ChargeEmail(ctx context.Context, apiKey, chargeID string) (string, error)
}

// WalletCredentials select the wallet provider account; Live toggles the
// production endpoint.
type WalletCredentials struct {
	ClientID     string
	ClientSecret string
	Live         bool
}

// WalletCapture is the provider's view of a completed capture.
type WalletCapture struct {
	Status     string
	CaptureID  string
	PayerEmail string
	Shipping   *domain.ShippingSnapshot
}

// WalletProvider is the redirect-based flow: create a provider order the
// buyer approves on the provider's site, then capture it.
type WalletProvider interface {
	CreateOrder(ctx context.Context, creds WalletCredentials, amountCents int64, currency, returnURL, cancelURL string) (orderID string, err error)
	CaptureOrder(ctx context.Context, creds WalletCredentials, orderID string) (*WalletCapture, error)
}

// Mail is one outbound notification.
type Mail struct {
	To      string
	Subject string
	Body    string
}

// Notifier delivers mail best-effort. Failures are logged and counted,
// never retried synchronously, and never reverse a financial transition.
type Notifier interface {
	Send(ctx context.Context, mail Mail) error
}

// DedupStore remembers that a keyed side effect already happened, so a
// retried settlement does not email the buyer twice.
type DedupStore interface {
	// MarkOnce returns true exactly once per key.
	MarkOnce(ctx context.Context, key string) (bool, error)
}

// ReconciliationQueue is the operator-visible queue of settlement
// conflicts.
type ReconciliationQueue interface {
	Push(ctx context.Context, entry domain.ReconciliationEntry) error
	List(ctx context.Context, limit int64) ([]domain.ReconciliationEntry, error)
}
