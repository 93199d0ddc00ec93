package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/storesync/internal/core/domain"
	"github.com/custodia-labs/storesync/internal/core/ports/driven/mocks"
)

func TestSettingsService_GetDefaults(t *testing.T) {
	svc := NewSettingsService(mocks.NewMockSettingsStore(), nil)

	settings, err := svc.Get(context.Background(), 7)

	require.NoError(t, err)
	assert.Equal(t, int64(7), settings.SiteID)
	assert.Equal(t, 25, settings.ProductsPageSize)
	assert.Equal(t, 5, settings.PrefetchThreshold)
	assert.Equal(t, []string{"grouped"}, settings.ExcludedProductTypes)
}

func TestSettingsService_SetAndGet(t *testing.T) {
	store := mocks.NewMockSettingsStore()
	svc := NewSettingsService(store, nil)
	ctx := context.Background()

	settings, err := svc.Set(ctx, 1, domain.SettingCurrencyCode, " eur ")
	require.NoError(t, err)
	assert.Equal(t, "EUR", settings.CurrencyCode)

	value, err := svc.GetValue(ctx, 1, domain.SettingCurrencyCode)
	require.NoError(t, err)
	assert.Equal(t, "EUR", value)

	stored, err := store.GetValues(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, map[domain.SettingKey]string{domain.SettingCurrencyCode: "EUR"}, stored)

	// Other sites are unaffected
	other, err := svc.Get(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "USD", other.CurrencyCode)
}

func TestSettingsService_UpdateIsAllOrNothing(t *testing.T) {
	store := mocks.NewMockSettingsStore()
	svc := NewSettingsService(store, nil)
	ctx := context.Background()

	_, err := svc.Update(ctx, 1, map[domain.SettingKey]string{
		domain.SettingProductsPageSize: "50",
		domain.SettingOrdersPageSize:   "500",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	stored, err := store.GetValues(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestSettingsService_UnknownKey(t *testing.T) {
	svc := NewSettingsService(mocks.NewMockSettingsStore(), nil)
	ctx := context.Background()

	_, err := svc.Set(ctx, 1, "dark_mode", "on")
	assert.ErrorIs(t, err, domain.ErrUnknownSetting)

	_, err = svc.GetValue(ctx, 1, "dark_mode")
	assert.ErrorIs(t, err, domain.ErrUnknownSetting)

	_, err = svc.Update(ctx, 1, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestSettingsService_IgnoresUnknownStoredKeys(t *testing.T) {
	store := mocks.NewMockSettingsStore()
	ctx := context.Background()
	require.NoError(t, store.SetValues(ctx, 1, map[domain.SettingKey]string{
		"legacy_flag":                   "1",
		domain.SettingProductsPageSize: "40",
	}))
	svc := NewSettingsService(store, nil)

	settings, err := svc.Get(ctx, 1)

	require.NoError(t, err)
	assert.Equal(t, 40, settings.ProductsPageSize)
}

func TestSettingsService_InvalidStoredValue(t *testing.T) {
	store := mocks.NewMockSettingsStore()
	ctx := context.Background()
	require.NoError(t, store.SetValues(ctx, 1, map[domain.SettingKey]string{
		domain.SettingPrefetchThreshold: "lots",
	}))
	svc := NewSettingsService(store, nil)

	_, err := svc.Get(ctx, 1)

	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestSettingsService_StoreErrors(t *testing.T) {
	store := mocks.NewMockSettingsStore()
	store.Err = errors.New("connection refused")
	svc := NewSettingsService(store, nil)
	ctx := context.Background()

	_, err := svc.Get(ctx, 1)
	assert.Error(t, err)

	err = svc.Reset(ctx, 1)
	assert.ErrorContains(t, err, "connection refused")
}

func TestSettingsService_Reset(t *testing.T) {
	store := mocks.NewMockSettingsStore()
	svc := NewSettingsService(store, nil)
	ctx := context.Background()

	_, err := svc.Set(ctx, 1, domain.SettingOrdersPageSize, "10")
	require.NoError(t, err)
	require.NoError(t, svc.Reset(ctx, 1))

	settings, err := svc.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 25, settings.OrdersPageSize)
}
