package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/custodia-labs/storesync/internal/core/domain"
	"github.com/custodia-labs/storesync/internal/core/ports/driven"
	"github.com/custodia-labs/storesync/internal/core/ports/driving"
)

// Ensure settingsService implements SettingsService
var _ driving.SettingsService = (*settingsService)(nil)

// settingsService implements the SettingsService interface
type settingsService struct {
	settingsStore driven.SettingsStore
	logger        *slog.Logger
}

// NewSettingsService creates a new SettingsService
func NewSettingsService(settingsStore driven.SettingsStore, logger *slog.Logger) driving.SettingsService {
	if logger == nil {
		logger = slog.Default()
	}
	return &settingsService{
		settingsStore: settingsStore,
		logger:        logger,
	}
}

// Get returns the stored settings on top of the defaults. Stored keys that
// are no longer known are skipped.
func (s *settingsService) Get(ctx context.Context, siteID int64) (*domain.Settings, error) {
	values, err := s.settingsStore.GetValues(ctx, siteID)
	if err != nil {
		return nil, fmt.Errorf("load settings for site %d: %w", siteID, err)
	}

	settings := domain.DefaultSettings(siteID)
	if err := settings.ApplyValues(values); err != nil {
		if !errors.Is(err, domain.ErrUnknownSetting) {
			return nil, fmt.Errorf("stored settings for site %d: %w", siteID, err)
		}
		s.logger.Warn("ignoring unknown stored settings", "site_id", siteID, "error", err)
	}
	return settings, nil
}

// GetValue returns one setting in its string form
func (s *settingsService) GetValue(ctx context.Context, siteID int64, key domain.SettingKey) (string, error) {
	accessor, err := domain.LookupSetting(key)
	if err != nil {
		return "", err
	}
	settings, err := s.Get(ctx, siteID)
	if err != nil {
		return "", err
	}
	return accessor.Get(settings), nil
}

// Set validates and stores one setting
func (s *settingsService) Set(ctx context.Context, siteID int64, key domain.SettingKey, value string) (*domain.Settings, error) {
	return s.Update(ctx, siteID, map[domain.SettingKey]string{key: value})
}

// Update validates every value before anything is stored. Values are stored
// in their normalised form.
func (s *settingsService) Update(ctx context.Context, siteID int64, values map[domain.SettingKey]string) (*domain.Settings, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: no settings given", domain.ErrInvalidInput)
	}

	settings, err := s.Get(ctx, siteID)
	if err != nil {
		return nil, err
	}
	if err := settings.ApplyValues(values); err != nil {
		return nil, err
	}

	normalised := make(map[domain.SettingKey]string, len(values))
	for key := range values {
		accessor, _ := domain.LookupSetting(key)
		normalised[key] = accessor.Get(settings)
	}
	if err := s.settingsStore.SetValues(ctx, siteID, normalised); err != nil {
		return nil, fmt.Errorf("save settings for site %d: %w", siteID, err)
	}
	settings.UpdatedAt = time.Now()

	s.logger.Info("settings updated", "site_id", siteID, "keys", len(values))
	return settings, nil
}

// Reset drops every stored value of the site
func (s *settingsService) Reset(ctx context.Context, siteID int64) error {
	if err := s.settingsStore.DeleteSite(ctx, siteID); err != nil {
		return fmt.Errorf("reset settings for site %d: %w", siteID, err)
	}
	return nil
}
