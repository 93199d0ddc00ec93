package bolt

import (
	"context"

	"go.etcd.io/bbolt"

	"github.com/custodia-labs/storesync/internal/core/domain"
	"github.com/custodia-labs/storesync/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.SettingsStore = (*SettingsStore)(nil)

// SettingsStore implements driven.SettingsStore in the settings bucket
type SettingsStore struct {
	db *DB
}

// NewSettingsStore creates a new SettingsStore
func NewSettingsStore(db *DB) *SettingsStore {
	return &SettingsStore{db: db}
}

// GetValues returns every stored value of a site
func (s *SettingsStore) GetValues(ctx context.Context, siteID int64) (map[domain.SettingKey]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	values := make(map[domain.SettingKey]string)
	err := s.db.View(func(tx *bbolt.Tx) error {
		site := tx.Bucket(settingsBucket).Bucket(itob(siteID))
		if site == nil {
			return nil
		}
		return site.ForEach(func(k, v []byte) error {
			values[domain.SettingKey(k)] = string(v)
			return nil
		})
	})
	if err != nil {
		return nil, persistenceError("get settings", err)
	}
	return values, nil
}

// SetValues writes values in one transaction
func (s *SettingsStore) SetValues(ctx context.Context, siteID int64, values map[domain.SettingKey]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		site, err := tx.Bucket(settingsBucket).CreateBucketIfNotExists(itob(siteID))
		if err != nil {
			return err
		}
		for k, v := range values {
			if err := site.Put([]byte(k), []byte(v)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return persistenceError("save settings", err)
	}
	return nil
}

// DeleteSite drops the settings bucket of a site
func (s *SettingsStore) DeleteSite(ctx context.Context, siteID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		err := tx.Bucket(settingsBucket).DeleteBucket(itob(siteID))
		if err == bbolt.ErrBucketNotFound {
			return nil
		}
		return err
	})
	if err != nil {
		return persistenceError("delete settings", err)
	}
	return nil
}
