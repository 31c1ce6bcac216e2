package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/atelier-gallery/atelier/internal/core/domain"
	"github.com/atelier-gallery/atelier/internal/port"
)

// Vault setting names gating the rails.
const (
	settingBankDetails     = "bank_transfer.details"
	settingCardSecretKey   = "stripe.secret_key"
	settingCardPublishable = "stripe.publishable_key"
	settingWalletMode      = "paypal.mode"
)

const defaultBankDetails = "Bank transfer details will be sent by email."

// statuses a confirmed payment may finalize a sale out of. Card
// confirmations can legitimately arrive for an item that was never
// reserved, so AVAILABLE is included.
var settleableStatuses = []domain.ItemStatus{domain.ItemAvailable, domain.ItemReserved}

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// CheckoutService runs the three payment rails over one settlement
// invariant: verify the remote status, check idempotency, perform the
// guarded local transition, then notify. Rails differ only in when the
// item is reserved and what triggers settlement.
type CheckoutService struct {
	items    port.ItemRepository
	orders   port.OrderRepository
	secrets  port.SecretSource
	card     port.CardProvider
	wallet   port.WalletProvider
	notifier port.Notifier
	dedup    port.DedupStore
	recon    port.ReconciliationQueue
	currency string

	mailQueue chan port.Mail
	wg        sync.WaitGroup
	closeOnce sync.Once
}

type CheckoutDeps struct {
	Items    port.ItemRepository
	Orders   port.OrderRepository
	Secrets  port.SecretSource
	Card     port.CardProvider
	Wallet   port.WalletProvider
	Notifier port.Notifier
	Dedup    port.DedupStore
	Recon    port.ReconciliationQueue

	Currency      string
	MailQueueSize int
	MailWorkers   int
}

func NewCheckoutService(deps CheckoutDeps) *CheckoutService {
	if deps.Currency == "" {
		deps.Currency = "EUR"
	}
	if deps.MailQueueSize <= 0 {
		deps.MailQueueSize = 256
	}
	if deps.MailWorkers <= 0 {
		deps.MailWorkers = 2
	}
	s := &CheckoutService{
		items:     deps.Items,
		orders:    deps.Orders,
		secrets:   deps.Secrets,
		card:      deps.Card,
		wallet:    deps.Wallet,
		notifier:  deps.Notifier,
		dedup:     deps.Dedup,
		recon:     deps.Recon,
		currency:  deps.Currency,
		mailQueue: make(chan port.Mail, deps.MailQueueSize),
	}
	for i := 0; i < deps.MailWorkers; i++ {
		s.wg.Add(1)
		go s.mailWorker(i)
	}
	return s
}

// Close drains the mail queue and stops the workers.
func (s *CheckoutService) Close() {
	s.closeOnce.Do(func() { close(s.mailQueue) })
	s.wg.Wait()
}

// --- rail selection --------------------------------------------------

type RailStatus struct {
	Rail       domain.Rail `json:"rail"`
	Configured bool        `json:"configured"`
}

// Rails reports which payment rails are usable. Unconfigured rails are
// reported so the storefront can hide them; they are not an error.
func (s *CheckoutService) Rails(ctx context.Context) ([]RailStatus, error) {
	cardOK := true
	if _, err := s.cardKey(ctx); err != nil {
		if !errors.Is(err, domain.ErrNotConfigured) {
			return nil, err
		}
		cardOK = false
	}
	walletOK := true
	if _, err := s.walletCreds(ctx); err != nil {
		if !errors.Is(err, domain.ErrNotConfigured) {
			return nil, err
		}
		walletOK = false
	}
	// The bank rail has no remote dependency; instructions fall back to a
	// default text, so it is always selectable.
	return []RailStatus{
		{Rail: domain.RailBank, Configured: true},
		{Rail: domain.RailCard, Configured: cardOK},
		{Rail: domain.RailWallet, Configured: walletOK},
	}, nil
}

func (s *CheckoutService) cardKey(ctx context.Context) (string, error) {
	key, ok, err := s.secrets.Get(ctx, settingCardSecretKey)
	if err != nil {
		return "", fmt.Errorf("load card credentials: %w", err)
	}
	if !ok {
		return "", fmt.Errorf("%w: %s", domain.ErrNotConfigured, settingCardSecretKey)
	}
	if _, ok, err = s.secrets.Get(ctx, settingCardPublishable); err != nil {
		return "", fmt.Errorf("load card credentials: %w", err)
	} else if !ok {
		return "", fmt.Errorf("%w: %s", domain.ErrNotConfigured, settingCardPublishable)
	}
	return key, nil
}

func (s *CheckoutService) walletCreds(ctx context.Context) (port.WalletCredentials, error) {
	mode, _, err := s.secrets.Get(ctx, settingWalletMode)
	if err != nil {
		return port.WalletCredentials{}, fmt.Errorf("load wallet mode: %w", err)
	}
	live := mode == "live"
	prefix := "paypal.sandbox"
	if live {
		prefix = "paypal.live"
	}
	clientID, ok, err := s.secrets.Get(ctx, prefix+".client_id")
	if err != nil {
		return port.WalletCredentials{}, fmt.Errorf("load wallet credentials: %w", err)
	}
	if !ok {
		return port.WalletCredentials{}, fmt.Errorf("%w: %s.client_id", domain.ErrNotConfigured, prefix)
	}
	secret, ok, err := s.secrets.Get(ctx, prefix+".client_secret")
	if err != nil {
		return port.WalletCredentials{}, fmt.Errorf("load wallet credentials: %w", err)
	}
	if !ok {
		return port.WalletCredentials{}, fmt.Errorf("%w: %s.client_secret", domain.ErrNotConfigured, prefix)
	}
	return port.WalletCredentials{ClientID: clientID, ClientSecret: secret, Live: live}, nil
}

// --- bank rail -------------------------------------------------------

// BankOrderRequest carries the buyer's contact and, optionally, a custom
// amount. Paying more than list price is a deliberate, bank-rail-only
// capability; paying less is rejected. Amounts are in minor currency
// units.
type BankOrderRequest struct {
	ItemID            string
	Name              string
	Email             string
	Phone             string
	Address           string
	City              string
	Zip               string
	Country           string
	CustomAmountCents int64
}

type BankOrderResult struct {
	OrderID     string
	Reference   string
	AmountCents int64
	BankDetails string
}

// CreateBankOrder reserves the item synchronously within the request:
// there is no remote dependency, so the row lock safely spans the whole
// check-and-set. The response is complete before any email goes out, and
// a failed email never rolls back the reservation.
func (s *CheckoutService) CreateBankOrder(ctx context.Context, req BankOrderRequest) (*BankOrderResult, error) {
	if req.ItemID == "" || req.Name == "" {
		return nil, fmt.Errorf("%w: item id and name are required", domain.ErrValidation)
	}
	if !emailPattern.MatchString(req.Email) {
		return nil, fmt.Errorf("%w: invalid email address", domain.ErrValidation)
	}

	item, err := s.items.GetItem(ctx, req.ItemID)
	if err != nil {
		return nil, err
	}

	amount := item.PriceCents
	if req.CustomAmountCents > 0 {
		if req.CustomAmountCents < item.PriceCents {
			return nil, fmt.Errorf("%w: custom amount below list price", domain.ErrValidation)
		}
		amount = req.CustomAmountCents
	}
	if req.Country != "" {
		amount += domain.ShippingCents(req.Country, item.Size)
	}

	order := &domain.Order{
		ID:          uuid.NewString(),
		ItemID:      item.ID,
		Rail:        domain.RailBank,
		ExternalRef: bankReference(),
		AmountCents: amount,
		BuyerEmail:  req.Email,
		Shipping: domain.ShippingSnapshot{
			Name:    req.Name,
			Phone:   req.Phone,
			Address: req.Address,
			City:    req.City,
			Zip:     req.Zip,
			Country: req.Country,
		},
	}
	if err := s.orders.CreateReserved(ctx, order); err != nil {
		var unavailable *domain.UnavailableError
		if errors.As(err, &unavailable) {
			reservationAttempts.WithLabelValues(string(domain.RailBank), outcomeUnavailable).Inc()
		} else {
			reservationAttempts.WithLabelValues(string(domain.RailBank), outcomeError).Inc()
		}
		return nil, err
	}
	reservationAttempts.WithLabelValues(string(domain.RailBank), outcomeOK).Inc()
	log.Info().Str("order_id", order.ID).Str("item_id", item.ID).
		Str("rail", string(domain.RailBank)).Int64("amount_cents", amount).
		Msg("item reserved for bank transfer")

	details, ok, err := s.secrets.Get(ctx, settingBankDetails)
	if err != nil {
		log.Warn().Err(err).Msg("bank transfer details unavailable, using fallback")
	}
	if !ok || details == "" {
		details = defaultBankDetails
	}

	s.enqueueMail("bank-created:"+order.ID, port.Mail{
		To:      req.Email,
		Subject: "Order confirmation - payment instructions",
		Body: fmt.Sprintf(
			"Thank you for your order, %s!\n\nOrder ID: %s\nItem: %s\nAmount: %s\n\nPayment instructions:\n%s\n\nPlease include the reference %s in your payment.\nYour order ships once the payment arrives.",
			req.Name, order.ID, item.Slug, formatMoney(amount, s.currency), details, order.ExternalRef),
	})

	return &BankOrderResult{
		OrderID:     order.ID,
		Reference:   order.ExternalRef,
		AmountCents: amount,
		BankDetails: details,
	}, nil
}

// --- card rail -------------------------------------------------------

type CardIntentRequest struct {
	ItemID  string
	Name    string
	Email   string
	Phone   string
	Address string
	City    string
	Zip     string
	Country string
}

type CardIntentResult struct {
	IntentID       string
	ClientSecret   string
	PublishableKey string
	AmountCents    int64
}

// CreateCardIntent registers the payment intent with the provider but
// leaves the item AVAILABLE: the card rail defers reservation into
// settlement, so an abandoned checkout never wedges the item.
func (s *CheckoutService) CreateCardIntent(ctx context.Context, req CardIntentRequest) (*CardIntentResult, error) {
	if req.ItemID == "" {
		return nil, fmt.Errorf("%w: item id is required", domain.ErrValidation)
	}
	if req.Email != "" && !emailPattern.MatchString(req.Email) {
		return nil, fmt.Errorf("%w: invalid email address", domain.ErrValidation)
	}
	apiKey, err := s.cardKey(ctx)
	if err != nil {
		return nil, err
	}
	publishable, _, err := s.secrets.Get(ctx, settingCardPublishable)
	if err != nil {
		return nil, fmt.Errorf("load card credentials: %w", err)
	}

	item, err := s.items.GetItem(ctx, req.ItemID)
	if err != nil {
		return nil, err
	}
	if item.Status != domain.ItemAvailable {
		return nil, &domain.UnavailableError{ItemID: item.ID, Status: item.Status}
	}

	amount := item.PriceCents
	if req.Country != "" {
		amount += domain.ShippingCents(req.Country, item.Size)
	}

	// Remote call first, outside any row lock.
	intent, err := s.card.CreateIntent(ctx, apiKey, amount, s.currency, item.ID)
	if err != nil {
		return nil, &domain.ProviderError{Rail: domain.RailCard, Op: "create intent", Err: err}
	}

	order := &domain.Order{
		ID:          uuid.NewString(),
		ItemID:      item.ID,
		Rail:        domain.RailCard,
		ExternalRef: intent.ID,
		AmountCents: amount,
		BuyerEmail:  req.Email,
		Shipping: domain.ShippingSnapshot{
			Name:    req.Name,
			Phone:   req.Phone,
			Address: req.Address,
			City:    req.City,
			Zip:     req.Zip,
			Country: req.Country,
		},
	}
	if err := s.orders.CreatePending(ctx, order); err != nil {
		// The intent is left uncaptured at the provider; nothing was
		// charged.
		return nil, err
	}
	log.Info().Str("order_id", order.ID).Str("item_id", item.ID).
		Str("intent_id", intent.ID).Msg("card payment intent created")

	return &CardIntentResult{
		IntentID:       intent.ID,
		ClientSecret:   intent.ClientSecret,
		PublishableKey: publishable,
		AmountCents:    amount,
	}, nil
}

// CardConfigured reports whether the card rail is usable.
func (s *CheckoutService) CardConfigured(ctx context.Context) (bool, error) {
	_, err := s.cardKey(ctx)
	if errors.Is(err, domain.ErrNotConfigured) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

type SettleOutcome struct {
	OrderID       string
	SettlementRef string
	AlreadyPaid   bool
}

// ConfirmCardPayment settles a card payment. The provider's own view of
// the intent decides; a client-supplied success flag is never trusted.
// The call is idempotent: retries of an already-settled intent succeed
// without a second email. A lost guard after a confirmed charge is a
// conflict, never a silent drop.
func (s *CheckoutService) ConfirmCardPayment(ctx context.Context, intentID string) (*SettleOutcome, error) {
	if intentID == "" {
		return nil, fmt.Errorf("%w: payment intent id is required", domain.ErrValidation)
	}
	apiKey, err := s.cardKey(ctx)
	if err != nil {
		return nil, err
	}

	intent, err := s.card.GetIntent(ctx, apiKey, intentID)
	if err != nil {
		return nil, &domain.ProviderError{Rail: domain.RailCard, Op: "retrieve intent", Err: err}
	}
	if intent.Status != "succeeded" {
		return nil, fmt.Errorf("%w: intent status %q", domain.ErrPaymentPending, intent.Status)
	}

	order, err := s.orders.FindByExternalRef(ctx, domain.RailCard, intentID)
	if err != nil {
		return nil, err
	}
	if order.Status == domain.OrderPaid {
		settlementAttempts.WithLabelValues(string(domain.RailCard), outcomeAlreadyPaid).Inc()
		return &SettleOutcome{OrderID: order.ID, SettlementRef: order.SettlementRef, AlreadyPaid: true}, nil
	}

	buyerEmail := order.BuyerEmail
	if buyerEmail == "" && intent.LatestCharge != "" {
		if email, err := s.card.ChargeEmail(ctx, apiKey, intent.LatestCharge); err != nil {
			log.Warn().Err(err).Str("charge_id", intent.LatestCharge).Msg("charge email lookup failed")
		} else {
			buyerEmail = email
		}
	}

	settled, already, err := s.settle(ctx, port.SettleParams{
		Rail:          domain.RailCard,
		ExternalRef:   intentID,
		From:          settleableStatuses,
		SettlementRef: intent.LatestCharge,
		BuyerEmail:    buyerEmail,
	})
	if err != nil {
		return nil, err
	}
	return &SettleOutcome{OrderID: settled.ID, SettlementRef: settled.SettlementRef, AlreadyPaid: already}, nil
}

// --- wallet rail -----------------------------------------------------

type WalletOrderRequest struct {
	ItemID    string
	ReturnURL string
	CancelURL string
}

// CreateWalletOrder registers the checkout order with the wallet
// provider, then reserves the item. The remote call happens first so the
// row lock never spans it; if the reservation then loses a race the
// provider order is simply never approved and expires on its own.
func (s *CheckoutService) CreateWalletOrder(ctx context.Context, req WalletOrderRequest) (string, error) {
	if req.ItemID == "" || req.ReturnURL == "" || req.CancelURL == "" {
		return "", fmt.Errorf("%w: item id, return url and cancel url are required", domain.ErrValidation)
	}
	creds, err := s.walletCreds(ctx)
	if err != nil {
		return "", err
	}

	item, err := s.items.GetItem(ctx, req.ItemID)
	if err != nil {
		return "", err
	}
	if item.Status != domain.ItemAvailable {
		return "", &domain.UnavailableError{ItemID: item.ID, Status: item.Status}
	}

	providerOrderID, err := s.wallet.CreateOrder(ctx, creds, item.PriceCents, s.currency, req.ReturnURL, req.CancelURL)
	if err != nil {
		return "", &domain.ProviderError{Rail: domain.RailWallet, Op: "create order", Err: err}
	}

	order := &domain.Order{
		ID:          uuid.NewString(),
		ItemID:      item.ID,
		Rail:        domain.RailWallet,
		ExternalRef: providerOrderID,
		AmountCents: item.PriceCents,
	}
	if err := s.orders.CreateReserved(ctx, order); err != nil {
		var unavailable *domain.UnavailableError
		if errors.As(err, &unavailable) {
			reservationAttempts.WithLabelValues(string(domain.RailWallet), outcomeUnavailable).Inc()
		} else {
			reservationAttempts.WithLabelValues(string(domain.RailWallet), outcomeError).Inc()
		}
		return "", err
	}
	reservationAttempts.WithLabelValues(string(domain.RailWallet), outcomeOK).Inc()
	log.Info().Str("order_id", order.ID).Str("item_id", item.ID).
		Str("wallet_order_id", providerOrderID).Msg("item reserved for wallet checkout")

	return providerOrderID, nil
}

// CaptureWalletOrder captures the approved provider order and settles
// locally. Capture is itself a remote call with its own failure mode: if
// it fails, no local state changes at all.
func (s *CheckoutService) CaptureWalletOrder(ctx context.Context, providerOrderID string) (*SettleOutcome, error) {
	if providerOrderID == "" {
		return nil, fmt.Errorf("%w: order id is required", domain.ErrValidation)
	}
	creds, err := s.walletCreds(ctx)
	if err != nil {
		return nil, err
	}

	capture, err := s.wallet.CaptureOrder(ctx, creds, providerOrderID)
	if err != nil {
		return nil, &domain.ProviderError{Rail: domain.RailWallet, Op: "capture order", Err: err}
	}
	if capture.Status != "COMPLETED" {
		return nil, fmt.Errorf("%w: capture status %q", domain.ErrPaymentPending, capture.Status)
	}

	settled, already, err := s.settle(ctx, port.SettleParams{
		Rail:          domain.RailWallet,
		ExternalRef:   providerOrderID,
		From:          settleableStatuses,
		SettlementRef: capture.CaptureID,
		BuyerEmail:    capture.PayerEmail,
		Shipping:      capture.Shipping,
	})
	if err != nil {
		return nil, err
	}
	return &SettleOutcome{OrderID: settled.ID, SettlementRef: settled.SettlementRef, AlreadyPaid: already}, nil
}

// --- manual settlement (bank rail) -----------------------------------

// MarkOrderPaid settles a bank-transfer order once an administrator has
// matched the incoming payment. Card and wallet orders must settle
// through their provider-verified paths.
func (s *CheckoutService) MarkOrderPaid(ctx context.Context, orderID, actor string) (*SettleOutcome, error) {
	if orderID == "" {
		return nil, fmt.Errorf("%w: order id is required", domain.ErrValidation)
	}
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Rail != domain.RailBank {
		return nil, fmt.Errorf("%w: only bank transfer orders settle manually", domain.ErrValidation)
	}

	settled, already, err := s.settle(ctx, port.SettleParams{
		OrderID:       orderID,
		From:          settleableStatuses,
		SettlementRef: "manual:" + actor,
	})
	if err != nil {
		return nil, err
	}
	return &SettleOutcome{OrderID: settled.ID, SettlementRef: settled.SettlementRef, AlreadyPaid: already}, nil
}

// --- shared settlement path ------------------------------------------

// settle performs the one guarded finalize-sale transition and the
// follow-up side effects. On conflict the charge has already been taken,
// so the failure is pushed to the operator queue and logged with full
// context before it is returned.
func (s *CheckoutService) settle(ctx context.Context, params port.SettleParams) (*domain.Order, bool, error) {
	order, alreadyPaid, err := s.orders.Settle(ctx, params)
	if err != nil {
		var conflict *domain.ConflictError
		if errors.As(err, &conflict) {
			s.reportConflict(ctx, conflict)
		} else {
			settlementAttempts.WithLabelValues(string(params.Rail), outcomeError).Inc()
		}
		return nil, false, err
	}

	if alreadyPaid {
		settlementAttempts.WithLabelValues(string(order.Rail), outcomeAlreadyPaid).Inc()
		return order, true, nil
	}

	settlementAttempts.WithLabelValues(string(order.Rail), outcomePaid).Inc()
	log.Info().Str("order_id", order.ID).Str("item_id", order.ItemID).
		Str("rail", string(order.Rail)).Str("settlement_ref", order.SettlementRef).
		Msg("sale settled")

	if order.BuyerEmail != "" {
		s.enqueueMail("paid:"+order.ID, port.Mail{
			To:      order.BuyerEmail,
			Subject: "Order confirmation - payment received",
			Body: fmt.Sprintf(
				"Thank you for your order!\n\nOrder ID: %s\nAmount: %s\n\nPayment received and confirmed. Your order will ship soon.",
				order.ID, formatMoney(order.AmountCents, s.currency)),
		})
	}
	return order, false, nil
}

func (s *CheckoutService) reportConflict(ctx context.Context, conflict *domain.ConflictError) {
	settlementAttempts.WithLabelValues(string(conflict.Rail), outcomeConflict).Inc()
	settlementConflicts.WithLabelValues(string(conflict.Rail)).Inc()
	log.Error().
		Str("rail", string(conflict.Rail)).
		Str("item_id", conflict.ItemID).
		Str("order_id", conflict.OrderID).
		Str("provider_ref", conflict.ProviderRef).
		Str("item_status", string(conflict.Status)).
		Msg("settlement conflict: remote charge succeeded but the sale could not be finalized")

	entry := domain.ReconciliationEntry{
		Rail:        conflict.Rail,
		ItemID:      conflict.ItemID,
		OrderID:     conflict.OrderID,
		ProviderRef: conflict.ProviderRef,
		Reason:      fmt.Sprintf("item is %s after remote charge", conflict.Status),
		At:          time.Now(),
	}
	if err := s.recon.Push(ctx, entry); err != nil {
		// The log line above already carries the full context.
		log.Error().Err(err).Msg("failed to enqueue reconciliation entry")
	}
}

// --- notification queue ----------------------------------------------

// enqueueMail hands a mail to the background workers. The dedup mark
// makes a retried settlement send at most one email; a full queue drops
// the mail rather than block a financial code path.
func (s *CheckoutService) enqueueMail(dedupKey string, m port.Mail) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	first, err := s.dedup.MarkOnce(ctx, "mail:"+dedupKey)
	if err != nil {
		log.Warn().Err(err).Str("key", dedupKey).Msg("mail dedup check failed, sending anyway")
	} else if !first {
		notifierMails.WithLabelValues(outcomeSkipped).Inc()
		return
	}

	select {
	case s.mailQueue <- m:
	default:
		notifierMails.WithLabelValues(outcomeDropped).Inc()
		log.Warn().Str("to", m.To).Str("subject", m.Subject).Msg("mail queue full, dropping notification")
	}
}

func (s *CheckoutService) mailWorker(id int) {
	defer s.wg.Done()
	for m := range s.mailQueue {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		err := s.notifier.Send(ctx, m)
		cancel()
		if err != nil {
			notifierMails.WithLabelValues(outcomeFailed).Inc()
			log.Warn().Err(err).Int("worker", id).Str("to", m.To).Msg("notification failed")
			continue
		}
		notifierMails.WithLabelValues(outcomeSent).Inc()
	}
}

// --- helpers ---------------------------------------------------------

func bankReference() string {
	return fmt.Sprintf("bank_%d_%s", time.Now().Unix(), uuid.NewString()[:8])
}

func formatMoney(cents int64, currency string) string {
	return fmt.Sprintf("%d.%02d %s", cents/100, cents%100, currency)
}
