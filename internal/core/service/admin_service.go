package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/atelier-gallery/atelier/internal/core/domain"
	"github.com/atelier-gallery/atelier/internal/port"
	"github.com/atelier-gallery/atelier/internal/vault"
)

// settingNames is the closed set of vault entries the admin surface may
// read or write. Anything else is rejected up front, so the vault never
// becomes a general key-value store.
var settingNames = []string{
	settingBankDetails,
	settingCardSecretKey,
	settingCardPublishable,
	settingWalletMode,
	"paypal.sandbox.client_id",
	"paypal.sandbox.client_secret",
	"paypal.live.client_id",
	"paypal.live.client_secret",
	"sendgrid.api_key",
	"mail.from",
}

// AdminService backs the operator surface: inventory management, order
// inspection, vault settings, and the reconciliation queue. It trusts the
// repository layer to enforce transition legality and reference checks.
type AdminService struct {
	items  port.ItemRepository
	orders port.OrderRepository
	vault  *vault.Vault
	recon  port.ReconciliationQueue
}

func NewAdminService(items port.ItemRepository, orders port.OrderRepository, v *vault.Vault, recon port.ReconciliationQueue) *AdminService {
	return &AdminService{items: items, orders: orders, vault: v, recon: recon}
}

// --- inventory -------------------------------------------------------

type ItemInput struct {
	Slug              string
	Category          string
	PriceCents        int64
	Size              string
	Finish            string
	ProviderProductID string
	ProviderPriceID   string
}

func (s *AdminService) CreateItem(ctx context.Context, in ItemInput) (*domain.Item, error) {
	if in.Slug == "" || in.Category == "" {
		return nil, fmt.Errorf("%w: slug and category are required", domain.ErrValidation)
	}
	if in.PriceCents <= 0 {
		return nil, fmt.Errorf("%w: price must be positive", domain.ErrValidation)
	}
	item := &domain.Item{
		ID:                uuid.NewString(),
		Slug:              in.Slug,
		Category:          in.Category,
		PriceCents:        in.PriceCents,
		Status:            domain.ItemAvailable,
		Size:              in.Size,
		Finish:            in.Finish,
		ProviderProductID: in.ProviderProductID,
		ProviderPriceID:   in.ProviderPriceID,
	}
	if err := s.items.CreateItem(ctx, item); err != nil {
		return nil, err
	}
	log.Info().Str("item_id", item.ID).Str("slug", item.Slug).Msg("item created")
	return item, nil
}

// UpdateItem edits item fields. Status changes run through the guarded
// transition table; price changes on a SOLD item are refused by the
// repository.
func (s *AdminService) UpdateItem(ctx context.Context, itemID string, in ItemInput, status domain.ItemStatus) (*domain.Item, error) {
	if itemID == "" {
		return nil, fmt.Errorf("%w: item id is required", domain.ErrValidation)
	}
	if in.PriceCents <= 0 {
		return nil, fmt.Errorf("%w: price must be positive", domain.ErrValidation)
	}
	if status == "" {
		current, err := s.items.GetItem(ctx, itemID)
		if err != nil {
			return nil, err
		}
		status = current.Status
	} else if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", domain.ErrValidation, status)
	}
	item := &domain.Item{
		ID:                itemID,
		Slug:              in.Slug,
		Category:          in.Category,
		PriceCents:        in.PriceCents,
		Status:            status,
		Size:              in.Size,
		Finish:            in.Finish,
		ProviderProductID: in.ProviderProductID,
		ProviderPriceID:   in.ProviderPriceID,
	}
	if err := s.items.UpdateItem(ctx, item); err != nil {
		return nil, err
	}
	return s.items.GetItem(ctx, itemID)
}

// SetItemStatus performs one administrative transition: hide, unhide, or
// release a stale reservation back to AVAILABLE.
func (s *AdminService) SetItemStatus(ctx context.Context, itemID string, to domain.ItemStatus) error {
	if !to.Valid() {
		return fmt.Errorf("%w: unknown status %q", domain.ErrValidation, to)
	}
	if err := s.items.SetItemStatus(ctx, itemID, to); err != nil {
		return err
	}
	log.Info().Str("item_id", itemID).Str("status", string(to)).Msg("item status changed")
	return nil
}

func (s *AdminService) GetItem(ctx context.Context, itemID string) (*domain.Item, error) {
	return s.items.GetItem(ctx, itemID)
}

func (s *AdminService) ListItems(ctx context.Context) ([]domain.Item, error) {
	return s.items.ListItems(ctx)
}

func (s *AdminService) DeleteItem(ctx context.Context, itemID string) error {
	if err := s.items.DeleteItem(ctx, itemID); err != nil {
		return err
	}
	log.Info().Str("item_id", itemID).Msg("item deleted")
	return nil
}

// --- orders ----------------------------------------------------------

func (s *AdminService) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	return s.orders.GetOrder(ctx, orderID)
}

func (s *AdminService) ListOrders(ctx context.Context) ([]domain.Order, error) {
	return s.orders.ListOrders(ctx)
}

// --- vault settings --------------------------------------------------

// PutSettings stores a batch of secrets. Unknown names are rejected
// before anything is written.
func (s *AdminService) PutSettings(ctx context.Context, values map[string]string, actor string) error {
	for name := range values {
		if !knownSetting(name) {
			return fmt.Errorf("%w: unknown setting %q", domain.ErrValidation, name)
		}
	}
	for name, value := range values {
		if err := s.vault.Put(ctx, name, value, actor); err != nil {
			return err
		}
		log.Info().Str("setting", name).Str("actor", actor).Msg("secure setting updated")
	}
	return nil
}

// SettingsOverview is what the admin UI shows: presence flags with
// verification suffixes, the bank transfer text in the clear (it is
// buyer-facing, not a secret), and per-rail readiness.
type SettingsOverview struct {
	Flags            map[string]vault.Flag `json:"flags"`
	BankDetails      string                `json:"bank_details"`
	CardConfigured   bool                  `json:"card_configured"`
	WalletConfigured bool                  `json:"wallet_configured"`
}

func (s *AdminService) SettingsOverview(ctx context.Context) (*SettingsOverview, error) {
	flags, err := s.vault.Flags(ctx, settingNames)
	if err != nil {
		return nil, err
	}
	bankDetails, _, err := s.vault.Get(ctx, settingBankDetails)
	if err != nil {
		return nil, err
	}

	walletMode, _, err := s.vault.Get(ctx, settingWalletMode)
	if err != nil {
		return nil, err
	}
	walletPrefix := "paypal.sandbox"
	if walletMode == "live" {
		walletPrefix = "paypal.live"
	}

	return &SettingsOverview{
		Flags:       flags,
		BankDetails: bankDetails,
		CardConfigured: flags[settingCardSecretKey].Configured &&
			flags[settingCardPublishable].Configured,
		WalletConfigured: flags[walletPrefix+".client_id"].Configured &&
			flags[walletPrefix+".client_secret"].Configured,
	}, nil
}

// --- reconciliation --------------------------------------------------

func (s *AdminService) Reconciliation(ctx context.Context, limit int64) ([]domain.ReconciliationEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.recon.List(ctx, limit)
}

func knownSetting(name string) bool {
	for _, known := range settingNames {
		if known == name {
			return true
		}
	}
	return false
}
