package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/storesync/internal/core/domain"
)

// setupTestDB connects to STORESYNC_TEST_DATABASE_URL and skips when unset.
// Every test works on its own site id so runs do not interfere.
func setupTestDB(t *testing.T) (*DB, int64) {
	t.Helper()
	ctx := context.Background()
	db, err := Open(ctx, dsnFromEnv(t), Pool{MaxOpen: 4})
	require.NoError(t, err)

	siteID := time.Now().UnixNano()
	t.Cleanup(func() {
		_, _ = db.ExecContext(ctx, "DELETE FROM entities WHERE site_id = $1", siteID)
		_, _ = db.ExecContext(ctx, "DELETE FROM site_settings WHERE site_id = $1", siteID)
		db.Close()
	})
	return db, siteID
}

func dsnFromEnv(t *testing.T) string {
	t.Helper()
	url := os.Getenv("STORESYNC_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("STORESYNC_TEST_DATABASE_URL not set")
	}
	return url
}

func testOrder(siteID, id int64, status string, items ...int64) *domain.Record {
	r := &domain.Record{
		Kind:   domain.EntityKindOrder,
		SiteID: siteID,
		ID:     id,
		Fields: map[string]any{
			"status":       status,
			"date_created": fmt.Sprintf("2026-01-%02dT00:00:00Z", id),
		},
	}
	for _, itemID := range items {
		r.Children = append(r.Children, domain.ChildRecord{
			ID:     itemID,
			Fields: map[string]any{"quantity": float64(1)},
		})
	}
	return r
}

func TestEntityStore_UpsertAndGet(t *testing.T) {
	db, siteID := setupTestDB(t)
	store := NewEntityStore(db, nil)
	defer store.Close()
	ctx := context.Background()

	stats, err := store.Upsert(ctx, []*domain.Record{testOrder(siteID, 1, "processing", 10, 11)})
	require.NoError(t, err)
	assert.Equal(t, domain.UpsertStats{Inserted: 1, ChildrenAdded: 2}, stats)

	stats, err = store.Upsert(ctx, []*domain.Record{testOrder(siteID, 1, "completed", 11, 12)})
	require.NoError(t, err)
	assert.Equal(t, domain.UpsertStats{Updated: 1, ChildrenAdded: 1, ChildrenUpdated: 1, ChildrenDeleted: 1}, stats)

	got, err := store.Get(ctx, domain.EntityKey{Kind: domain.EntityKindOrder, SiteID: siteID, ID: 1})
	require.NoError(t, err)
	assert.Equal(t, "completed", got.Fields["status"])
	require.Len(t, got.Children, 2)
	assert.Equal(t, int64(11), got.Children[0].ID)
	assert.Equal(t, int64(12), got.Children[1].ID)
}

func TestEntityStore_GetMissing(t *testing.T) {
	db, siteID := setupTestDB(t)
	store := NewEntityStore(db, nil)
	defer store.Close()

	_, err := store.Get(context.Background(), domain.EntityKey{Kind: domain.EntityKindOrder, SiteID: siteID, ID: 99})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestEntityStore_QueryDeleteCount(t *testing.T) {
	db, siteID := setupTestDB(t)
	store := NewEntityStore(db, nil)
	defer store.Close()
	ctx := context.Background()

	_, err := store.Upsert(ctx, []*domain.Record{
		testOrder(siteID, 1, "processing"),
		testOrder(siteID, 2, "completed"),
		testOrder(siteID, 3, "processing"),
	})
	require.NoError(t, err)

	pred := domain.Predicate{Kind: domain.EntityKindOrder, SiteID: siteID}.Where("status", domain.OpEq, "processing")
	rows, err := store.Query(ctx, pred, []domain.SortDescriptor{domain.Desc("date_created")})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(3), rows[0].ID)
	assert.Equal(t, int64(1), rows[1].ID)

	n, err := store.Count(ctx, domain.Predicate{Kind: domain.EntityKindOrder, SiteID: siteID})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	sub := store.Subscribe()
	defer sub.Cancel()

	deleted, err := store.Delete(ctx, pred)
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	change := <-sub.C()
	assert.Equal(t, domain.ChangeTypeDeleted, change.Type)
	assert.Len(t, change.Keys, 2)

	n, err = store.Count(ctx, domain.Predicate{Kind: domain.EntityKindOrder, SiteID: siteID})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestEntityStore_RejectsInvalidRecord(t *testing.T) {
	db, siteID := setupTestDB(t)
	store := NewEntityStore(db, nil)
	defer store.Close()

	_, err := store.Upsert(context.Background(), []*domain.Record{testOrder(siteID, 1, "x", 5, 5)})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestSettingsStore_RoundTrip(t *testing.T) {
	db, siteID := setupTestDB(t)
	store := NewSettingsStore(db)
	ctx := context.Background()

	values, err := store.GetValues(ctx, siteID)
	require.NoError(t, err)
	assert.Empty(t, values)

	require.NoError(t, store.SetValues(ctx, siteID, map[domain.SettingKey]string{
		domain.SettingOrdersPageSize: "50",
		domain.SettingCurrencyCode:   "EUR",
	}))
	require.NoError(t, store.SetValues(ctx, siteID, map[domain.SettingKey]string{
		domain.SettingOrdersPageSize: "10",
	}))

	values, err = store.GetValues(ctx, siteID)
	require.NoError(t, err)
	assert.Equal(t, map[domain.SettingKey]string{
		domain.SettingOrdersPageSize: "10",
		domain.SettingCurrencyCode:   "EUR",
	}, values)

	require.NoError(t, store.DeleteSite(ctx, siteID))
	values, err = store.GetValues(ctx, siteID)
	require.NoError(t, err)
	assert.Empty(t, values)
}
