package mocks

import (
	"context"
	"fmt"
	"sync"

	"github.com/custodia-labs/storesync/internal/core/domain"
	"github.com/custodia-labs/storesync/internal/core/ports/driven"
)

var _ driven.RemoteTransport = (*MockRemoteTransport)(nil)

// MockRemoteTransport serves pages from an in-memory catalog for testing
type MockRemoteTransport struct {
	mu       sync.Mutex
	catalog  map[domain.EntityKind][]*domain.Record
	failures map[int]error
	gates    map[int]chan struct{}
	requests []driven.RemotePageRequest

	// Gate, when set, blocks every fetch until a value is received
	Gate chan struct{}
}

// NewMockRemoteTransport creates a new MockRemoteTransport
func NewMockRemoteTransport() *MockRemoteTransport {
	return &MockRemoteTransport{
		catalog:  make(map[domain.EntityKind][]*domain.Record),
		failures: make(map[int]error),
		gates:    make(map[int]chan struct{}),
	}
}

// GatePage blocks fetches of page until the returned channel is closed
func (m *MockRemoteTransport) GatePage(page int) chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	gate := make(chan struct{})
	m.gates[page] = gate
	return gate
}

// SetCatalog replaces the remote collection of a kind. Records are served in order.
func (m *MockRemoteTransport) SetCatalog(kind domain.EntityKind, records []*domain.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.catalog[kind] = records
}

// FailPage makes the next fetch of page fail with err
func (m *MockRemoteTransport) FailPage(page int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[page] = err
}

func (m *MockRemoteTransport) FetchPage(ctx context.Context, req driven.RemotePageRequest) ([]*domain.Record, error) {
	if m.Gate != nil {
		select {
		case <-m.Gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	gate := m.gates[req.Page]
	m.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)

	if err, ok := m.failures[req.Page]; ok {
		delete(m.failures, req.Page)
		return nil, fmt.Errorf("%w: %v", domain.ErrTransport, err)
	}
	if req.Page < 1 || req.PageSize < 1 {
		return nil, fmt.Errorf("%w: bad page request", domain.ErrTransport)
	}

	all := m.catalog[req.Kind]
	start := (req.Page - 1) * req.PageSize
	if start >= len(all) {
		return []*domain.Record{}, nil
	}
	end := start + req.PageSize
	if end > len(all) {
		end = len(all)
	}
	out := make([]*domain.Record, 0, end-start)
	for _, r := range all[start:end] {
		c := r.Clone()
		c.SiteID = req.SiteID
		out = append(out, c)
	}
	return out, nil
}

// Requests returns every request received so far
func (m *MockRemoteTransport) Requests() []driven.RemotePageRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]driven.RemotePageRequest, len(m.requests))
	copy(out, m.requests)
	return out
}
