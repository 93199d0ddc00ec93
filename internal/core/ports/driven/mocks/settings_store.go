package mocks

import (
	"context"
	"sync"

	"github.com/custodia-labs/storesync/internal/core/domain"
	"github.com/custodia-labs/storesync/internal/core/ports/driven"
)

var _ driven.SettingsStore = (*MockSettingsStore)(nil)

// MockSettingsStore is a mock implementation of SettingsStore for testing
type MockSettingsStore struct {
	mu     sync.RWMutex
	values map[int64]map[domain.SettingKey]string

	// Err, when set, is returned by every call
	Err error
}

// NewMockSettingsStore creates a new MockSettingsStore
func NewMockSettingsStore() *MockSettingsStore {
	return &MockSettingsStore{
		values: make(map[int64]map[domain.SettingKey]string),
	}
}

func (m *MockSettingsStore) GetValues(ctx context.Context, siteID int64) (map[domain.SettingKey]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.Err != nil {
		return nil, m.Err
	}
	out := make(map[domain.SettingKey]string, len(m.values[siteID]))
	for k, v := range m.values[siteID] {
		out[k] = v
	}
	return out, nil
}

func (m *MockSettingsStore) SetValues(ctx context.Context, siteID int64, values map[domain.SettingKey]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	site, ok := m.values[siteID]
	if !ok {
		site = make(map[domain.SettingKey]string)
		m.values[siteID] = site
	}
	for k, v := range values {
		site[k] = v
	}
	return nil
}

func (m *MockSettingsStore) DeleteSite(ctx context.Context, siteID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	delete(m.values, siteID)
	return nil
}
