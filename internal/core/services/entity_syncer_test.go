package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/storesync/internal/core/domain"
	"github.com/custodia-labs/storesync/internal/core/ports/driven/mocks"
)

func catalog(n int) []*domain.Record {
	out := make([]*domain.Record, n)
	for i := range out {
		out[i] = product(0, int64(i+1), "P", float64(n-i))
	}
	return out
}

func newTestSyncer(t *testing.T, transport *mocks.MockRemoteTransport, store *mocks.MockEntityStore) *EntitySyncer {
	t.Helper()
	s, err := NewEntitySyncer(EntitySyncerConfig{
		Transport: transport,
		Store:     store,
		Kind:      domain.EntityKindProduct,
		SiteID:    1,
	})
	require.NoError(t, err)
	return s
}

func TestNewEntitySyncer_Validation(t *testing.T) {
	_, err := NewEntitySyncer(EntitySyncerConfig{Kind: domain.EntityKindProduct})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = NewEntitySyncer(EntitySyncerConfig{
		Transport: mocks.NewMockRemoteTransport(),
		Store:     mocks.NewMockEntityStore(),
		Kind:      "coupon",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	bad := domain.Predicate{Kind: domain.EntityKindOrder}.Where("status", domain.OpIn)
	_, err = NewEntitySyncer(EntitySyncerConfig{
		Transport:        mocks.NewMockRemoteTransport(),
		Store:            mocks.NewMockEntityStore(),
		Kind:             domain.EntityKindOrder,
		ResetOnFirstPage: &bad,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidPredicate)
}

func TestEntitySyncer_SavesPage(t *testing.T) {
	transport := mocks.NewMockRemoteTransport()
	transport.SetCatalog(domain.EntityKindProduct, catalog(30))
	store := mocks.NewMockEntityStore()
	s := newTestSyncer(t, transport, store)

	result, err := s.SyncPage(context.Background(), domain.PageRequest{PageNumber: 2, PageSize: 25})

	require.NoError(t, err)
	assert.Equal(t, 5, result.ItemCount)
	assert.Equal(t, 5, result.Stats.Inserted)
	assert.Equal(t, 5, store.Len(domain.EntityKindProduct))

	r, err := store.Get(context.Background(), domain.EntityKey{Kind: domain.EntityKindProduct, SiteID: 1, ID: 26})
	require.NoError(t, err)
	assert.Equal(t, int64(1), r.SiteID)

	reqs := transport.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, 2, reqs[0].Page)
	assert.Equal(t, 25, reqs[0].PageSize)
	assert.Equal(t, int64(1), reqs[0].SiteID)
}

func TestEntitySyncer_DuplicateDeliveryIsIdempotent(t *testing.T) {
	transport := mocks.NewMockRemoteTransport()
	transport.SetCatalog(domain.EntityKindProduct, catalog(10))
	store := mocks.NewMockEntityStore()
	s := newTestSyncer(t, transport, store)
	ctx := context.Background()
	req := domain.PageRequest{PageNumber: 1, PageSize: 25}

	_, err := s.SyncPage(ctx, req)
	require.NoError(t, err)
	before, err := store.Query(ctx, domain.Predicate{Kind: domain.EntityKindProduct, SiteID: 1}, nil)
	require.NoError(t, err)

	result, err := s.SyncPage(ctx, req)
	require.NoError(t, err)
	after, err := store.Query(ctx, domain.Predicate{Kind: domain.EntityKindProduct, SiteID: 1}, nil)
	require.NoError(t, err)

	assert.Equal(t, 0, result.Stats.Inserted)
	assert.Equal(t, 10, result.Stats.Updated)
	assert.Equal(t, before, after)
}

func TestEntitySyncer_SameKeyOnTwoPagesKeepsLatest(t *testing.T) {
	transport := mocks.NewMockRemoteTransport()
	store := mocks.NewMockEntityStore()
	s := newTestSyncer(t, transport, store)
	ctx := context.Background()

	first := []*domain.Record{product(0, 1, "Old name", 1), product(0, 2, "B", 2)}
	transport.SetCatalog(domain.EntityKindProduct, first)
	_, err := s.SyncPage(ctx, domain.PageRequest{PageNumber: 1, PageSize: 2})
	require.NoError(t, err)

	// The remote sort shifted: product 1 now shows up on page 2
	shifted := []*domain.Record{product(0, 3, "C", 0), product(0, 4, "D", 0), product(0, 1, "New name", 9)}
	transport.SetCatalog(domain.EntityKindProduct, shifted)
	_, err = s.SyncPage(ctx, domain.PageRequest{PageNumber: 2, PageSize: 2})
	require.NoError(t, err)

	assert.Equal(t, 2, store.Len(domain.EntityKindProduct))
	r, err := store.Get(ctx, domain.EntityKey{Kind: domain.EntityKindProduct, SiteID: 1, ID: 1})
	require.NoError(t, err)
	assert.Equal(t, "New name", r.Fields["name"])
	assert.Equal(t, float64(9), r.Fields["menu_order"])
}

func TestEntitySyncer_TransportFailure(t *testing.T) {
	transport := mocks.NewMockRemoteTransport()
	transport.FailPage(1, errors.New("connection reset"))
	store := mocks.NewMockEntityStore()
	s := newTestSyncer(t, transport, store)

	_, err := s.SyncPage(context.Background(), domain.PageRequest{PageNumber: 1, PageSize: 25})

	assert.ErrorIs(t, err, domain.ErrTransport)
	assert.Equal(t, 0, store.UpsertCalls())
}

func TestEntitySyncer_PersistenceFailure(t *testing.T) {
	transport := mocks.NewMockRemoteTransport()
	transport.SetCatalog(domain.EntityKindProduct, catalog(3))
	store := mocks.NewMockEntityStore()
	store.SetUpsertError(domain.ErrPersistence)
	s := newTestSyncer(t, transport, store)

	_, err := s.SyncPage(context.Background(), domain.PageRequest{PageNumber: 1, PageSize: 25})

	assert.ErrorIs(t, err, domain.ErrPersistence)
}

func TestEntitySyncer_EmptyPageSkipsUpsert(t *testing.T) {
	transport := mocks.NewMockRemoteTransport()
	store := mocks.NewMockEntityStore()
	s := newTestSyncer(t, transport, store)

	result, err := s.SyncPage(context.Background(), domain.PageRequest{PageNumber: 1, PageSize: 25})

	require.NoError(t, err)
	assert.Equal(t, 0, result.ItemCount)
	assert.Equal(t, 0, store.UpsertCalls())
}

func TestEntitySyncer_ResetOnFirstPage(t *testing.T) {
	transport := mocks.NewMockRemoteTransport()
	store := mocks.NewMockEntityStore()
	ctx := context.Background()

	order := func(id int64, status string) *domain.Record {
		return &domain.Record{
			Kind:   domain.EntityKindOrder,
			SiteID: 1,
			ID:     id,
			Fields: map[string]any{"status": status},
			Children: []domain.ChildRecord{
				{ID: id * 10, Fields: map[string]any{"quantity": float64(1)}},
			},
		}
	}
	// Order 1 was deleted remotely, order 3 belongs to another filter
	store.Seed(order(1, "processing"), order(3, "completed"))
	transport.SetCatalog(domain.EntityKindOrder, []*domain.Record{order(2, "processing")})

	reset := domain.Predicate{Kind: domain.EntityKindOrder, SiteID: 1}.Where("status", domain.OpEq, "processing")
	s, err := NewEntitySyncer(EntitySyncerConfig{
		Transport:        transport,
		Store:            store,
		Kind:             domain.EntityKindOrder,
		SiteID:           1,
		Filters:          map[string]string{"status": "processing"},
		ResetOnFirstPage: &reset,
	})
	require.NoError(t, err)

	_, err = s.SyncPage(ctx, domain.PageRequest{PageNumber: 1, PageSize: 25})
	require.NoError(t, err)

	_, err = store.Get(ctx, domain.EntityKey{Kind: domain.EntityKindOrder, SiteID: 1, ID: 1})
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = store.Get(ctx, domain.EntityKey{Kind: domain.EntityKindOrder, SiteID: 1, ID: 3})
	assert.NoError(t, err)
	_, err = store.Get(ctx, domain.EntityKey{Kind: domain.EntityKindOrder, SiteID: 1, ID: 2})
	assert.NoError(t, err)

	assert.Equal(t, "processing", transport.Requests()[0].Filters["status"])
}

var ordersByDate = []domain.SortDescriptor{domain.Desc("date_created")}

// remoteOrder is an order placed minutesAgo minutes before a fixed instant
func remoteOrder(id int64, minutesAgo int) *domain.Record {
	placed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC).Add(-time.Duration(minutesAgo) * time.Minute)
	return &domain.Record{
		Kind:   domain.EntityKindOrder,
		SiteID: 1,
		ID:     id,
		Fields: map[string]any{
			"status":       "processing",
			"date_created": placed.Format(time.RFC3339),
		},
	}
}

// orderCatalog returns n orders, newest first, with ids 1..n
func orderCatalog(n int) []*domain.Record {
	out := make([]*domain.Record, n)
	for i := range out {
		out[i] = remoteOrder(int64(i+1), i+1)
	}
	return out
}

func newOrderSyncer(t *testing.T, transport *mocks.MockRemoteTransport, store *mocks.MockEntityStore) *EntitySyncer {
	t.Helper()
	reset := domain.Predicate{Kind: domain.EntityKindOrder, SiteID: 1}
	s, err := NewEntitySyncer(EntitySyncerConfig{
		Transport:        transport,
		Store:            store,
		Kind:             domain.EntityKindOrder,
		SiteID:           1,
		ResetOnFirstPage: &reset,
		Order:            ordersByDate,
	})
	require.NoError(t, err)
	return s
}

func TestEntitySyncer_FirstPageCompletionOrderDoesNotMatter(t *testing.T) {
	tests := []struct {
		name  string
		pages []int
	}{
		{"in order", []int{1, 2}},
		{"page 2 first", []int{2, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := mocks.NewMockRemoteTransport()
			transport.SetCatalog(domain.EntityKindOrder, orderCatalog(40))
			store := mocks.NewMockEntityStore()
			s := newOrderSyncer(t, transport, store)

			for _, page := range tt.pages {
				_, err := s.SyncPage(context.Background(), domain.PageRequest{PageNumber: page, PageSize: 25, Generation: 1})
				require.NoError(t, err)
			}

			assert.Equal(t, 40, store.Len(domain.EntityKindOrder))
		})
	}
}

func TestEntitySyncer_PrunesOnlyWithinFirstPageRange(t *testing.T) {
	transport := mocks.NewMockRemoteTransport()
	transport.SetCatalog(domain.EntityKindOrder, orderCatalog(40))
	store := mocks.NewMockEntityStore()
	ctx := context.Background()

	// 100 is newer than anything remote, so page 1 proves it deleted.
	// 200 sorts after page 1 and may still live on a later page.
	store.Seed(remoteOrder(100, 0), remoteOrder(200, 500))
	s := newOrderSyncer(t, transport, store)

	_, err := s.SyncPage(ctx, domain.PageRequest{PageNumber: 1, PageSize: 25, Generation: 1})
	require.NoError(t, err)

	_, err = store.Get(ctx, domain.EntityKey{Kind: domain.EntityKindOrder, SiteID: 1, ID: 100})
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = store.Get(ctx, domain.EntityKey{Kind: domain.EntityKindOrder, SiteID: 1, ID: 200})
	assert.NoError(t, err)
	assert.Equal(t, 26, store.Len(domain.EntityKindOrder))
}

func TestEntitySyncer_SupersededFirstPageDoesNotPrune(t *testing.T) {
	transport := mocks.NewMockRemoteTransport()
	store := mocks.NewMockEntityStore()
	ctx := context.Background()
	s := newOrderSyncer(t, transport, store)

	// The newer cycle sees order 7, placed after the older fetch
	transport.SetCatalog(domain.EntityKindOrder, []*domain.Record{remoteOrder(7, 0), remoteOrder(1, 1)})
	_, err := s.SyncPage(ctx, domain.PageRequest{PageNumber: 1, PageSize: 25, Generation: 2})
	require.NoError(t, err)

	// The older cycle's first page lands late without order 7
	transport.SetCatalog(domain.EntityKindOrder, []*domain.Record{remoteOrder(1, 1)})
	_, err = s.SyncPage(ctx, domain.PageRequest{PageNumber: 1, PageSize: 25, Generation: 1})
	require.NoError(t, err)

	_, err = store.Get(ctx, domain.EntityKey{Kind: domain.EntityKindOrder, SiteID: 1, ID: 7})
	assert.NoError(t, err)
	assert.Equal(t, 2, store.Len(domain.EntityKindOrder))
}

func TestNewEntitySyncer_InvalidOrder(t *testing.T) {
	reset := domain.Predicate{Kind: domain.EntityKindOrder, SiteID: 1}
	_, err := NewEntitySyncer(EntitySyncerConfig{
		Transport:        mocks.NewMockRemoteTransport(),
		Store:            mocks.NewMockEntityStore(),
		Kind:             domain.EntityKindOrder,
		ResetOnFirstPage: &reset,
		Order:            []domain.SortDescriptor{domain.Desc("Date Created")},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidPredicate)
}
