package driving

import (
	"context"

	"github.com/custodia-labs/storesync/internal/core/domain"
)

// SettingsService manages per-site settings through the setting accessor table
type SettingsService interface {
	// Get returns the site settings, defaults filled in
	Get(ctx context.Context, siteID int64) (*domain.Settings, error)

	// GetValue returns one setting in its string form
	GetValue(ctx context.Context, siteID int64, key domain.SettingKey) (string, error)

	// Set validates and stores one setting
	Set(ctx context.Context, siteID int64, key domain.SettingKey, value string) (*domain.Settings, error)

	// Update validates and stores several settings at once
	Update(ctx context.Context, siteID int64, values map[domain.SettingKey]string) (*domain.Settings, error)

	// Reset drops every stored value of the site
	Reset(ctx context.Context, siteID int64) error
}
