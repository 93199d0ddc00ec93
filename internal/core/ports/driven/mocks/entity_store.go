package mocks

import (
	"context"
	"fmt"
	"sync"

	"github.com/custodia-labs/storesync/internal/core/domain"
	"github.com/custodia-labs/storesync/internal/core/ports/driven"
	"github.com/custodia-labs/storesync/internal/pubsub"
)

var _ driven.EntityStore = (*MockEntityStore)(nil)

// MockEntityStore is an in-memory EntityStore for testing.
// Records are sharded by kind so unrelated kinds never share a lock.
type MockEntityStore struct {
	mu      sync.Mutex
	shards  map[domain.EntityKind]*kindShard
	changes *pubsub.Subject[domain.StoreChange]

	errMu     sync.RWMutex
	upsertErr error
	queryErr  error

	upsertCalls int
}

type kindShard struct {
	mu      sync.RWMutex
	records map[domain.EntityKey]*domain.Record
}

// NewMockEntityStore creates a new MockEntityStore
func NewMockEntityStore() *MockEntityStore {
	return &MockEntityStore{
		shards:  make(map[domain.EntityKind]*kindShard),
		changes: pubsub.NewSubject[domain.StoreChange](pubsub.DefaultBuffer),
	}
}

func (m *MockEntityStore) shard(kind domain.EntityKind) *kindShard {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.shards[kind]
	if !ok {
		s = &kindShard{records: make(map[domain.EntityKey]*domain.Record)}
		m.shards[kind] = s
	}
	return s
}

func (m *MockEntityStore) Upsert(ctx context.Context, records []*domain.Record) (domain.UpsertStats, error) {
	m.errMu.Lock()
	m.upsertCalls++
	err := m.upsertErr
	m.errMu.Unlock()
	if err != nil {
		return domain.UpsertStats{}, err
	}

	var stats domain.UpsertStats
	for _, r := range records {
		if err := r.Validate(); err != nil {
			return domain.UpsertStats{}, err
		}
	}

	byKind := make(map[domain.EntityKind][]*domain.Record)
	for _, r := range records {
		byKind[r.Kind] = append(byKind[r.Kind], r)
	}
	for kind, batch := range byKind {
		s := m.shard(kind)
		keysBySite := make(map[int64][]domain.EntityKey)
		s.mu.Lock()
		for _, r := range batch {
			key := r.Key()
			if existing, ok := s.records[key]; ok {
				stats.Updated++
				stats.Add(domain.ReconcileChildren(existing.Children, r.Children))
			} else {
				stats.Inserted++
				stats.Add(domain.ReconcileChildren(nil, r.Children))
			}
			s.records[key] = r.Clone()
			keysBySite[r.SiteID] = append(keysBySite[r.SiteID], key)
		}
		s.mu.Unlock()
		for siteID, keys := range keysBySite {
			m.changes.Publish(domain.StoreChange{Type: domain.ChangeTypeUpserted, Kind: kind, SiteID: siteID, Keys: keys})
		}
	}
	return stats, nil
}

func (m *MockEntityStore) Get(ctx context.Context, key domain.EntityKey) (*domain.Record, error) {
	s := m.shard(key.Kind)
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return r.Clone(), nil
}

func (m *MockEntityStore) Delete(ctx context.Context, pred domain.Predicate) (int, error) {
	if err := pred.Validate(); err != nil {
		return 0, err
	}
	s := m.shard(pred.Kind)
	s.mu.Lock()
	var keys []domain.EntityKey
	for key, r := range s.records {
		if pred.Match(r) {
			keys = append(keys, key)
			delete(s.records, key)
		}
	}
	s.mu.Unlock()
	if len(keys) > 0 {
		m.changes.Publish(domain.StoreChange{Type: domain.ChangeTypeDeleted, Kind: pred.Kind, SiteID: pred.SiteID, Keys: keys})
	}
	return len(keys), nil
}

func (m *MockEntityStore) Query(ctx context.Context, pred domain.Predicate, sort []domain.SortDescriptor) ([]*domain.Record, error) {
	m.errMu.RLock()
	err := m.queryErr
	m.errMu.RUnlock()
	if err != nil {
		return nil, err
	}
	if err := pred.Validate(); err != nil {
		return nil, err
	}
	if err := domain.ValidateSort(sort); err != nil {
		return nil, err
	}

	s := m.shard(pred.Kind)
	s.mu.RLock()
	var out []*domain.Record
	for _, r := range s.records {
		if pred.Match(r) {
			out = append(out, r.Clone())
		}
	}
	s.mu.RUnlock()
	domain.SortRecords(out, sort)
	return out, nil
}

func (m *MockEntityStore) Count(ctx context.Context, pred domain.Predicate) (int, error) {
	records, err := m.Query(ctx, pred, nil)
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

func (m *MockEntityStore) Subscribe() *pubsub.Subscription[domain.StoreChange] {
	return m.changes.Subscribe()
}

func (m *MockEntityStore) Close() error {
	m.changes.Close()
	return nil
}

// Helper methods for testing

// SetUpsertError makes every following Upsert fail with err (nil clears it)
func (m *MockEntityStore) SetUpsertError(err error) {
	m.errMu.Lock()
	defer m.errMu.Unlock()
	m.upsertErr = err
}

// SetQueryError makes every following Query fail with err (nil clears it)
func (m *MockEntityStore) SetQueryError(err error) {
	m.errMu.Lock()
	defer m.errMu.Unlock()
	m.queryErr = err
}

// UpsertCalls returns how many times Upsert was called
func (m *MockEntityStore) UpsertCalls() int {
	m.errMu.RLock()
	defer m.errMu.RUnlock()
	return m.upsertCalls
}

// Len returns the number of records of a kind
func (m *MockEntityStore) Len(kind domain.EntityKind) int {
	s := m.shard(kind)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Seed stores records without publishing changes
func (m *MockEntityStore) Seed(records ...*domain.Record) {
	for _, r := range records {
		s := m.shard(r.Kind)
		s.mu.Lock()
		s.records[r.Key()] = r.Clone()
		s.mu.Unlock()
	}
}

func (m *MockEntityStore) String() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fmt.Sprintf("MockEntityStore(%d kinds)", len(m.shards))
}
