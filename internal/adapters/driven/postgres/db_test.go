package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_AppliesSchemaIdempotently(t *testing.T) {
	db, _ := setupTestDB(t)

	// A second Open against the same database reapplies the schema
	again, err := Open(context.Background(), dsnFromEnv(t), Pool{})
	require.NoError(t, err)
	defer again.Close()

	for _, table := range []string{"entities", "site_settings"} {
		var exists bool
		err := db.QueryRowContext(context.Background(),
			"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = $1)", table).Scan(&exists)
		require.NoError(t, err)
		assert.True(t, exists, table)
	}
	assert.NoError(t, db.Ping(context.Background()))
}

func TestOpen_Unreachable(t *testing.T) {
	_, err := Open(context.Background(), "postgres://storesync@127.0.0.1:1/none?sslmode=disable&connect_timeout=1", Pool{})
	assert.Error(t, err)
}

func TestInTx_RollsBackOnError(t *testing.T) {
	db, siteID := setupTestDB(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := db.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO site_settings (site_id, key, value, updated_at) VALUES ($1, 'currency', 'EUR', now())", siteID)
		require.NoError(t, err)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	var count int
	require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(*) FROM site_settings WHERE site_id = $1", siteID).Scan(&count))
	assert.Zero(t, count)
}
