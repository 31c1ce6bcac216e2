package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atelier-gallery/atelier/internal/core/domain"
	"github.com/atelier-gallery/atelier/internal/port"
	"github.com/atelier-gallery/atelier/internal/vault"
)

type memSettings struct {
	mu     sync.Mutex
	values map[string]domain.SecureSetting
}

func newMemSettings() *memSettings {
	return &memSettings{values: make(map[string]domain.SecureSetting)}
}

func (s *memSettings) UpsertSetting(ctx context.Context, setting domain.SecureSetting) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[setting.Name] = setting
	return nil
}

func (s *memSettings) GetSetting(ctx context.Context, name string) (*domain.SecureSetting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	setting, ok := s.values[name]
	if !ok {
		return nil, nil
	}
	return &setting, nil
}

func (s *memSettings) ListSettings(ctx context.Context, names []string) ([]domain.SecureSetting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.SecureSetting
	for _, name := range names {
		if setting, ok := s.values[name]; ok {
			out = append(out, setting)
		}
	}
	return out, nil
}

func newAdminFixture(t *testing.T) (*AdminService, *memStore) {
	t.Helper()
	store := newMemStore()
	v, err := vault.New(make([]byte, vault.KeySize), newMemSettings())
	require.NoError(t, err)
	return NewAdminService(store, store, v, &memRecon{}), store
}

func TestAdminCreateAndUpdateItem(t *testing.T) {
	admin, _ := newAdminFixture(t)
	ctx := context.Background()

	item, err := admin.CreateItem(ctx, ItemInput{
		Slug: "silver-ring", Category: "ring", PriceCents: 25000, Size: "18mm",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ItemAvailable, item.Status)

	_, err = admin.CreateItem(ctx, ItemInput{Slug: "x", Category: "ring", PriceCents: 0})
	assert.ErrorIs(t, err, domain.ErrValidation)

	// Edit without a status keeps the current one.
	updated, err := admin.UpdateItem(ctx, item.ID, ItemInput{
		Slug: "silver-ring", Category: "ring", PriceCents: 27000, Size: "18mm",
	}, "")
	require.NoError(t, err)
	assert.Equal(t, int64(27000), updated.PriceCents)
	assert.Equal(t, domain.ItemAvailable, updated.Status)
}

func TestAdminSoldItemPriceImmutable(t *testing.T) {
	admin, store := newAdminFixture(t)
	ctx := context.Background()

	item, err := admin.CreateItem(ctx, ItemInput{Slug: "p", Category: "painting", PriceCents: 90000})
	require.NoError(t, err)

	// Sell the item through the guarded path.
	order := &domain.Order{ID: "o-1", ItemID: item.ID, Rail: domain.RailBank, ExternalRef: "ref-1", AmountCents: 90000}
	require.NoError(t, store.CreateReserved(ctx, order))
	_, _, err = store.Settle(ctx, port.SettleParams{
		OrderID: "o-1",
		From:    []domain.ItemStatus{domain.ItemAvailable, domain.ItemReserved},
	})
	require.NoError(t, err)

	_, err = admin.UpdateItem(ctx, item.ID, ItemInput{
		Slug: "p", Category: "painting", PriceCents: 95000,
	}, domain.ItemSold)
	assert.ErrorIs(t, err, domain.ErrSoldPriceImmutable)

	// Non-price edits on a sold item still pass.
	updated, err := admin.UpdateItem(ctx, item.ID, ItemInput{
		Slug: "p", Category: "painting", PriceCents: 90000, Finish: "varnished",
	}, "")
	require.NoError(t, err)
	assert.Equal(t, "varnished", updated.Finish)
}

func TestAdminStatusTransitions(t *testing.T) {
	admin, store := newAdminFixture(t)
	ctx := context.Background()

	item, err := admin.CreateItem(ctx, ItemInput{Slug: "h", Category: "object", PriceCents: 10000})
	require.NoError(t, err)

	require.NoError(t, admin.SetItemStatus(ctx, item.ID, domain.ItemHidden))
	require.NoError(t, admin.SetItemStatus(ctx, item.ID, domain.ItemAvailable))

	// Direct SOLD writes are never allowed.
	err = admin.SetItemStatus(ctx, item.ID, domain.ItemSold)
	assert.ErrorIs(t, err, domain.ErrIllegalTransition)

	// Releasing a stale reservation.
	order := &domain.Order{ID: "o-rel", ItemID: item.ID, Rail: domain.RailBank, ExternalRef: "ref-rel", AmountCents: 10000}
	require.NoError(t, store.CreateReserved(ctx, order))
	require.NoError(t, admin.SetItemStatus(ctx, item.ID, domain.ItemAvailable))
	assert.Equal(t, domain.ItemAvailable, store.itemStatus(item.ID))
}

func TestAdminDeleteItem(t *testing.T) {
	admin, store := newAdminFixture(t)
	ctx := context.Background()

	item, err := admin.CreateItem(ctx, ItemInput{Slug: "d", Category: "object", PriceCents: 10000})
	require.NoError(t, err)

	order := &domain.Order{ID: "o-del", ItemID: item.ID, Rail: domain.RailBank, ExternalRef: "ref-del", AmountCents: 10000}
	require.NoError(t, store.CreateReserved(ctx, order))

	err = admin.DeleteItem(ctx, item.ID)
	assert.ErrorIs(t, err, domain.ErrItemReferenced)

	fresh, err := admin.CreateItem(ctx, ItemInput{Slug: "d2", Category: "object", PriceCents: 10000})
	require.NoError(t, err)
	require.NoError(t, admin.DeleteItem(ctx, fresh.ID))
	_, err = admin.GetItem(ctx, fresh.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAdminSettings(t *testing.T) {
	admin, _ := newAdminFixture(t)
	ctx := context.Background()

	err := admin.PutSettings(ctx, map[string]string{"totally.unknown": "x"}, "op")
	assert.ErrorIs(t, err, domain.ErrValidation)

	err = admin.PutSettings(ctx, map[string]string{
		settingBankDetails:     "IBAN SK99 0000",
		settingCardSecretKey:   "sk_live_secret1234",
		settingCardPublishable: "pk_live_pub",
	}, "op")
	require.NoError(t, err)

	overview, err := admin.SettingsOverview(ctx)
	require.NoError(t, err)
	assert.Equal(t, "IBAN SK99 0000", overview.BankDetails)
	assert.True(t, overview.CardConfigured)
	assert.False(t, overview.WalletConfigured)

	flag := overview.Flags[settingCardSecretKey]
	assert.True(t, flag.Configured)
	assert.Equal(t, "1234", flag.Suffix, "only the plaintext tail is exposed")
	assert.False(t, overview.Flags["paypal.live.client_id"].Configured)
}
