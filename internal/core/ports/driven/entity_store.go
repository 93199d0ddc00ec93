package driven

import (
	"context"

	"github.com/custodia-labs/storesync/internal/core/domain"
	"github.com/custodia-labs/storesync/internal/pubsub"
)

// EntityStore is the local persistent store that mirrors remote entities.
// Implementations: PostgreSQL (shared), BoltDB (on-device).
type EntityStore interface {
	// Upsert inserts or updates records by identity in one batch.
	// Children of each record are reconciled: stale ones deleted,
	// matching ones updated, new ones inserted.
	Upsert(ctx context.Context, records []*domain.Record) (domain.UpsertStats, error)

	// Get retrieves a record by key
	Get(ctx context.Context, key domain.EntityKey) (*domain.Record, error)

	// Delete removes every record matching the predicate, returning the count
	Delete(ctx context.Context, pred domain.Predicate) (int, error)

	// Query returns matching records ordered by the descriptors, then by id
	Query(ctx context.Context, pred domain.Predicate, sort []domain.SortDescriptor) ([]*domain.Record, error)

	// Count returns the number of matching records
	Count(ctx context.Context, pred domain.Predicate) (int, error)

	// Subscribe returns a stream of committed changes
	Subscribe() *pubsub.Subscription[domain.StoreChange]

	// Close releases the store
	Close() error
}
