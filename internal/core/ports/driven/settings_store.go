package driven

import (
	"context"

	"github.com/custodia-labs/storesync/internal/core/domain"
)

// SettingsStore is a key-value store of per-site settings.
// Values are the string forms produced by the settings accessor table.
type SettingsStore interface {
	// GetValues returns every stored value for a site (empty map if none)
	GetValues(ctx context.Context, siteID int64) (map[domain.SettingKey]string, error)

	// SetValues writes the given values, leaving other keys untouched
	SetValues(ctx context.Context, siteID int64, values map[domain.SettingKey]string) error

	// DeleteSite removes every value of a site
	DeleteSite(ctx context.Context, siteID int64) error
}
