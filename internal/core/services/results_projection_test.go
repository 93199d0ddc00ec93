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

func productPredicate(siteID int64) domain.Predicate {
	return domain.Predicate{Kind: domain.EntityKindProduct, SiteID: siteID}.
		Where("status", domain.OpIn, domain.ProductStatusPublish, domain.ProductStatusPrivate).
		Where("product_type", domain.OpNotIn, domain.ProductTypeGrouped)
}

func newTestProjection(t *testing.T, store *mocks.MockEntityStore) *ResultsProjection {
	t.Helper()
	p, err := NewResultsProjection(ResultsProjectionConfig{
		Store:      store,
		Predicate:  productPredicate(1),
		Sort:       []domain.SortDescriptor{domain.Asc("menu_order")},
		StrictMode: true,
	})
	require.NoError(t, err)
	return p
}

func rowIDs(rows []*domain.Record) []int64 {
	ids := make([]int64, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}
	return ids
}

func TestResultsProjection_FiltersAndSorts(t *testing.T) {
	store := mocks.NewMockEntityStore()
	grouped := product(1, 5, "Bundle", 0)
	grouped.Fields["product_type"] = domain.ProductTypeGrouped
	draft := product(1, 6, "Draft", 0)
	draft.Fields["status"] = domain.ProductStatusDraft
	private := product(1, 7, "Private", 1)
	private.Fields["status"] = domain.ProductStatusPrivate
	store.Seed(
		product(1, 3, "C", 2),
		product(1, 2, "B", 1),
		product(1, 1, "A", 1),
		product(2, 4, "Other site", 0),
		grouped, draft, private,
	)
	p := newTestProjection(t, store)

	require.NoError(t, p.PerformFetch(context.Background()))

	// menu_order ascending, ties broken by id
	assert.Equal(t, []int64{1, 2, 7, 3}, rowIDs(p.Rows()))
	assert.True(t, p.Fetched())
}

func TestResultsProjection_EmptyBeforeFetch(t *testing.T) {
	store := mocks.NewMockEntityStore()
	store.Seed(product(1, 1, "A", 0))
	p := newTestProjection(t, store)

	assert.True(t, p.IsEmpty())
	assert.False(t, p.Fetched())
}

func TestResultsProjection_FailureKeepsRows(t *testing.T) {
	store := mocks.NewMockEntityStore()
	store.Seed(product(1, 1, "A", 0))
	p := newTestProjection(t, store)
	ctx := context.Background()
	require.NoError(t, p.PerformFetch(ctx))

	store.SetQueryError(errors.New("disk I/O error"))
	store.Seed(product(1, 2, "B", 0))
	err := p.PerformFetch(ctx)

	var projErr *domain.ProjectionError
	require.ErrorAs(t, err, &projErr)
	assert.Equal(t, domain.EntityKindProduct, projErr.Kind)
	assert.Equal(t, []int64{1}, rowIDs(p.Rows()))
}

func TestResultsProjection_MalformedPredicate(t *testing.T) {
	store := mocks.NewMockEntityStore()
	store.Seed(product(1, 1, "A", 0))
	bad := domain.Predicate{Kind: domain.EntityKindProduct, SiteID: 1}.Where("status", domain.OpEq)

	t.Run("strict mode fails loudly", func(t *testing.T) {
		_, err := NewResultsProjection(ResultsProjectionConfig{Store: store, Predicate: bad, StrictMode: true})
		var projErr *domain.ProjectionError
		require.ErrorAs(t, err, &projErr)
		assert.ErrorIs(t, err, domain.ErrInvalidPredicate)
	})

	t.Run("lenient mode degrades to empty", func(t *testing.T) {
		p, err := NewResultsProjection(ResultsProjectionConfig{Store: store, Predicate: bad})
		require.NoError(t, err)
		assert.True(t, p.Degraded())
		require.NoError(t, p.PerformFetch(context.Background()))
		assert.True(t, p.IsEmpty())
		assert.True(t, p.Fetched())
	})

	t.Run("bad sort field", func(t *testing.T) {
		_, err := NewResultsProjection(ResultsProjectionConfig{
			Store:      store,
			Predicate:  productPredicate(1),
			Sort:       []domain.SortDescriptor{domain.Asc("menu order; drop")},
			StrictMode: true,
		})
		assert.ErrorIs(t, err, domain.ErrInvalidPredicate)
	})
}

func TestResultsProjection_RequiresStore(t *testing.T) {
	_, err := NewResultsProjection(ResultsProjectionConfig{Predicate: productPredicate(1)})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestResultsProjection_PublishesSnapshots(t *testing.T) {
	store := mocks.NewMockEntityStore()
	store.Seed(product(1, 1, "A", 0), product(1, 2, "B", 0))
	p := newTestProjection(t, store)
	sub := p.Subscribe()
	defer sub.Cancel()

	require.NoError(t, p.PerformFetch(context.Background()))

	select {
	case rows := <-sub.C():
		assert.Equal(t, []int64{1, 2}, rowIDs(rows))
	case <-time.After(time.Second):
		t.Fatal("no snapshot published")
	}
}

func TestResultsProjection_WatchRefetchesOnChange(t *testing.T) {
	store := mocks.NewMockEntityStore()
	p := newTestProjection(t, store)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		p.Watch(ctx, nil)
		close(done)
	}()
	// Wait until the watcher is subscribed before writing
	waitFor(t, func() bool {
		_, err := store.Upsert(ctx, []*domain.Record{product(1, 1, "A", 0)})
		require.NoError(t, err)
		return p.Len() == 1
	}, "projection did not refetch")

	// Changes of another site are ignored
	_, err := store.Upsert(ctx, []*domain.Record{product(2, 9, "X", 0)})
	require.NoError(t, err)
	assert.Equal(t, 1, p.Len())

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watch did not return on cancel")
	}
}

func TestResultsProjection_WatchReturnsWhenStoreCloses(t *testing.T) {
	store := mocks.NewMockEntityStore()
	p := newTestProjection(t, store)

	done := make(chan struct{})
	go func() {
		p.Watch(context.Background(), nil)
		close(done)
	}()

	waitFor(t, func() bool {
		return store.Close() == nil
	}, "close failed")

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watch did not return after store close")
	}
}

func TestResultsProjection_WatchCallsHook(t *testing.T) {
	store := mocks.NewMockEntityStore()
	p := newTestProjection(t, store)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := make(chan struct{}, 16)
	go p.Watch(ctx, func() {
		select {
		case calls <- struct{}{}:
		default:
		}
	})

	waitFor(t, func() bool {
		_, err := store.Upsert(ctx, []*domain.Record{product(1, 1, "A", 0)})
		require.NoError(t, err)
		return len(calls) > 0
	}, "hook not called")

	// The hook replaces the direct fetch
	assert.Equal(t, 0, p.Len())
}
