package bolt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/custodia-labs/storesync/internal/core/domain"
	"github.com/custodia-labs/storesync/internal/core/ports/driven"
	"github.com/custodia-labs/storesync/internal/pubsub"
	"go.etcd.io/bbolt"
)

// Verify interface compliance
var _ driven.EntityStore = (*EntityStore)(nil)

// EntityStore implements driven.EntityStore on a BoltDB file.
// BoltDB allows one writer at a time, so upsert batches are serialized.
type EntityStore struct {
	db      *DB
	changes *pubsub.Subject[domain.StoreChange]
	logger  *slog.Logger
}

// NewEntityStore creates a new EntityStore
func NewEntityStore(db *DB, logger *slog.Logger) *EntityStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &EntityStore{
		db:      db,
		changes: pubsub.NewSubject[domain.StoreChange](pubsub.DefaultBuffer),
		logger:  logger,
	}
}

// siteBucket returns the bucket holding records of kind for siteID.
// With create false it returns nil when the site has no records yet.
func siteBucket(tx *bbolt.Tx, kind domain.EntityKind, siteID int64, create bool) (*bbolt.Bucket, error) {
	name, ok := kindBuckets[kind]
	if !ok {
		return nil, fmt.Errorf("no bucket for kind %q", kind)
	}
	root := tx.Bucket(name)
	if root == nil {
		return nil, fmt.Errorf("bucket for %s is missing", kind)
	}
	if !create {
		return root.Bucket(itob(siteID)), nil
	}
	return root.CreateBucketIfNotExists(itob(siteID))
}

// Upsert stores records as whole documents. Children travel inside their
// parent, so replacing the document reconciles them.
func (s *EntityStore) Upsert(ctx context.Context, records []*domain.Record) (domain.UpsertStats, error) {
	if err := ctx.Err(); err != nil {
		return domain.UpsertStats{}, err
	}
	for _, r := range records {
		if err := r.Validate(); err != nil {
			return domain.UpsertStats{}, err
		}
	}

	var stats domain.UpsertStats
	now := time.Now()
	err := s.db.Update(func(tx *bbolt.Tx) error {
		for _, r := range records {
			b, err := siteBucket(tx, r.Kind, r.SiteID, true)
			if err != nil {
				return err
			}

			var stored []domain.ChildRecord
			if payload := b.Get(itob(r.ID)); payload != nil {
				var prev domain.Record
				if err := json.Unmarshal(payload, &prev); err != nil {
					return fmt.Errorf("decode %s: %w", r.Key(), err)
				}
				stored = prev.Children
				stats.Updated++
			} else {
				stats.Inserted++
			}
			stats.Add(domain.ReconcileChildren(stored, r.Children))

			doc := r.Clone()
			doc.UpdatedAt = now
			payload, err := json.Marshal(doc)
			if err != nil {
				return fmt.Errorf("%w: encode %s: %v", domain.ErrInvalidInput, r.Key(), err)
			}
			if err := b.Put(itob(r.ID), payload); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			return domain.UpsertStats{}, err
		}
		return domain.UpsertStats{}, persistenceError("upsert entities", err)
	}

	s.publishUpserts(records)
	return stats, nil
}

// Get retrieves a record by key
func (s *EntityStore) Get(ctx context.Context, key domain.EntityKey) (*domain.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !key.Kind.IsValid() {
		return nil, fmt.Errorf("%w: unknown kind %q", domain.ErrInvalidInput, key.Kind)
	}

	var record *domain.Record
	err := s.db.View(func(tx *bbolt.Tx) error {
		b, err := siteBucket(tx, key.Kind, key.SiteID, false)
		if err != nil {
			return err
		}
		if b == nil {
			return domain.ErrNotFound
		}
		payload := b.Get(itob(key.ID))
		if payload == nil {
			return domain.ErrNotFound
		}
		record, err = decode(payload)
		return err
	})
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, persistenceError("get entity", err)
	}
	return record, nil
}

// Delete removes every record matching the predicate
func (s *EntityStore) Delete(ctx context.Context, pred domain.Predicate) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := pred.Validate(); err != nil {
		return 0, err
	}

	var keys []domain.EntityKey
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b, err := siteBucket(tx, pred.Kind, pred.SiteID, false)
		if err != nil || b == nil {
			return err
		}
		var doomed [][]byte
		err = b.ForEach(func(k, v []byte) error {
			r, err := decode(v)
			if err != nil {
				return err
			}
			if pred.Match(r) {
				doomed = append(doomed, append([]byte(nil), k...))
				keys = append(keys, r.Key())
			}
			return nil
		})
		if err != nil {
			return err
		}
		// Deleting inside ForEach is not allowed
		for _, k := range doomed {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, persistenceError("delete entities", err)
	}

	if len(keys) > 0 {
		s.changes.Publish(domain.StoreChange{Type: domain.ChangeTypeDeleted, Kind: pred.Kind, SiteID: pred.SiteID, Keys: keys})
	}
	return len(keys), nil
}

// Query scans the site bucket and returns sorted matches
func (s *EntityStore) Query(ctx context.Context, pred domain.Predicate, sort []domain.SortDescriptor) ([]*domain.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := pred.Validate(); err != nil {
		return nil, err
	}
	if err := domain.ValidateSort(sort); err != nil {
		return nil, err
	}

	var records []*domain.Record
	err := s.scan(pred, func(r *domain.Record) { records = append(records, r) })
	if err != nil {
		return nil, persistenceError("query entities", err)
	}

	domain.SortRecords(records, sort)
	return records, nil
}

// Count returns the number of matching records
func (s *EntityStore) Count(ctx context.Context, pred domain.Predicate) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := pred.Validate(); err != nil {
		return 0, err
	}

	n := 0
	if err := s.scan(pred, func(*domain.Record) { n++ }); err != nil {
		return 0, persistenceError("count entities", err)
	}
	return n, nil
}

// Subscribe returns a subscription to committed changes
func (s *EntityStore) Subscribe() *pubsub.Subscription[domain.StoreChange] {
	return s.changes.Subscribe()
}

// Close ends every subscription. The DB is closed by its owner.
func (s *EntityStore) Close() error {
	s.changes.Close()
	return nil
}

func (s *EntityStore) scan(pred domain.Predicate, fn func(*domain.Record)) error {
	return s.db.View(func(tx *bbolt.Tx) error {
		b, err := siteBucket(tx, pred.Kind, pred.SiteID, false)
		if err != nil || b == nil {
			return err
		}
		return b.ForEach(func(_, v []byte) error {
			r, err := decode(v)
			if err != nil {
				return err
			}
			if pred.Match(r) {
				fn(r)
			}
			return nil
		})
	})
}

func (s *EntityStore) publishUpserts(records []*domain.Record) {
	type scope struct {
		kind   domain.EntityKind
		siteID int64
	}
	grouped := make(map[scope][]domain.EntityKey)
	var order []scope
	for _, r := range records {
		sc := scope{r.Kind, r.SiteID}
		if _, ok := grouped[sc]; !ok {
			order = append(order, sc)
		}
		grouped[sc] = append(grouped[sc], r.Key())
	}
	for _, sc := range order {
		s.changes.Publish(domain.StoreChange{Type: domain.ChangeTypeUpserted, Kind: sc.kind, SiteID: sc.siteID, Keys: grouped[sc]})
	}
}

// decode unmarshals a stored record. The result does not alias the
// mmap'd page, so it outlives the transaction.
func decode(payload []byte) (*domain.Record, error) {
	var r domain.Record
	if err := json.Unmarshal(payload, &r); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return &r, nil
}
