package redis

import (
	"context"
	"fmt"
	"strconv"

	"github.com/custodia-labs/storesync/internal/core/domain"
	"github.com/custodia-labs/storesync/internal/core/ports/driven"
	"github.com/redis/go-redis/v9"
)

// Verify interface compliance
var _ driven.SettingsStore = (*SettingsStore)(nil)

// One hash per site, one field per setting key
const settingsPrefix = "storesync:settings:"

// SettingsStore implements driven.SettingsStore using Redis hashes
type SettingsStore struct {
	client *redis.Client
}

// NewSettingsStore creates a new Redis-backed SettingsStore
func NewSettingsStore(client *redis.Client) *SettingsStore {
	return &SettingsStore{client: client}
}

func settingsKey(siteID int64) string {
	return settingsPrefix + strconv.FormatInt(siteID, 10)
}

// GetValues returns every stored value of a site
func (s *SettingsStore) GetValues(ctx context.Context, siteID int64) (map[domain.SettingKey]string, error) {
	raw, err := s.client.HGetAll(ctx, settingsKey(siteID)).Result()
	if err != nil {
		return nil, fmt.Errorf("get settings: %w: %w", domain.ErrPersistence, err)
	}
	values := make(map[domain.SettingKey]string, len(raw))
	for k, v := range raw {
		values[domain.SettingKey(k)] = v
	}
	return values, nil
}

// SetValues writes values with a single HSET
func (s *SettingsStore) SetValues(ctx context.Context, siteID int64, values map[domain.SettingKey]string) error {
	if len(values) == 0 {
		return nil
	}
	fields := make(map[string]any, len(values))
	for k, v := range values {
		fields[string(k)] = v
	}
	if err := s.client.HSet(ctx, settingsKey(siteID), fields).Err(); err != nil {
		return fmt.Errorf("save settings: %w: %w", domain.ErrPersistence, err)
	}
	return nil
}

// DeleteSite removes the hash of a site
func (s *SettingsStore) DeleteSite(ctx context.Context, siteID int64) error {
	if err := s.client.Del(ctx, settingsKey(siteID)).Err(); err != nil {
		return fmt.Errorf("delete settings: %w: %w", domain.ErrPersistence, err)
	}
	return nil
}
