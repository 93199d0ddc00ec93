package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/custodia-labs/storesync/internal/core/domain"
	"github.com/custodia-labs/storesync/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.SettingsStore = (*SettingsStore)(nil)

// SettingsStore implements driven.SettingsStore using PostgreSQL
type SettingsStore struct {
	db *DB
}

// NewSettingsStore creates a new SettingsStore
func NewSettingsStore(db *DB) *SettingsStore {
	return &SettingsStore{db: db}
}

// GetValues retrieves the stored settings of a site
func (s *SettingsStore) GetValues(ctx context.Context, siteID int64) (map[domain.SettingKey]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, value
		FROM site_settings
		WHERE site_id = $1
	`, siteID)
	if err != nil {
		return nil, persistenceError("get settings", err)
	}
	defer rows.Close()

	values := make(map[domain.SettingKey]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, persistenceError("get settings", err)
		}
		values[domain.SettingKey(key)] = value
	}
	if err := rows.Err(); err != nil {
		return nil, persistenceError("get settings", err)
	}
	return values, nil
}

// SetValues persists settings of a site in one transaction
func (s *SettingsStore) SetValues(ctx context.Context, siteID int64, values map[domain.SettingKey]string) error {
	now := time.Now()
	err := s.db.inTx(ctx, func(tx *sql.Tx) error {
		for key, value := range values {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO site_settings (site_id, key, value, updated_at)
				VALUES ($1, $2, $3, $4)
				ON CONFLICT (site_id, key) DO UPDATE SET
					value = EXCLUDED.value,
					updated_at = EXCLUDED.updated_at
			`, siteID, string(key), value, now)
			if err != nil {
				return fmt.Errorf("save %s: %w", key, err)
			}
		}
		return nil
	})
	if err != nil {
		return persistenceError("save settings", err)
	}
	return nil
}

// DeleteSite removes every stored setting of a site
func (s *SettingsStore) DeleteSite(ctx context.Context, siteID int64) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM site_settings WHERE site_id = $1", siteID)
	if err != nil {
		return persistenceError("delete settings", err)
	}
	return nil
}
