package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/custodia-labs/storesync/internal/core/domain"
	"github.com/custodia-labs/storesync/internal/core/ports/driven"
	"github.com/custodia-labs/storesync/internal/pubsub"
	"github.com/lib/pq"
)

// Verify interface compliance
var _ driven.EntityStore = (*EntityStore)(nil)

// EntityStore implements driven.EntityStore using PostgreSQL.
// Upserts lock only the rows of the records they write. Change
// notifications cover writes made through this instance.
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

func persistenceError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, domain.ErrPersistence, err)
}

// Upsert inserts or updates records by key and replaces their children.
func (s *EntityStore) Upsert(ctx context.Context, records []*domain.Record) (domain.UpsertStats, error) {
	for _, r := range records {
		if err := r.Validate(); err != nil {
			return domain.UpsertStats{}, err
		}
	}

	var stats domain.UpsertStats
	now := time.Now()
	err := s.db.inTx(ctx, func(tx *sql.Tx) error {
		for _, r := range records {
			recStats, err := upsertRecord(ctx, tx, r, now)
			if err != nil {
				return err
			}
			stats.Add(recStats)
		}
		return nil
	})
	if err != nil {
		return domain.UpsertStats{}, persistenceError("upsert entities", err)
	}

	s.publish(domain.ChangeTypeUpserted, records)
	return stats, nil
}

func upsertRecord(ctx context.Context, tx *sql.Tx, r *domain.Record, now time.Time) (domain.UpsertStats, error) {
	fieldsJSON, err := marshalFields(r.Fields)
	if err != nil {
		return domain.UpsertStats{}, err
	}

	query := `
		INSERT INTO entities (kind, site_id, id, fields, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (kind, site_id, id) DO UPDATE SET
			fields = EXCLUDED.fields,
			updated_at = EXCLUDED.updated_at
		RETURNING (xmax = 0)
	`
	var inserted bool
	err = tx.QueryRowContext(ctx, query, string(r.Kind), r.SiteID, r.ID, fieldsJSON, now).Scan(&inserted)
	if err != nil {
		return domain.UpsertStats{}, fmt.Errorf("upsert %s: %w", r.Key(), err)
	}

	var stats domain.UpsertStats
	if inserted {
		stats.Inserted = 1
	} else {
		stats.Updated = 1
	}

	childStats, err := replaceChildren(ctx, tx, r)
	if err != nil {
		return domain.UpsertStats{}, err
	}
	stats.Add(childStats)
	return stats, nil
}

// replaceChildren deletes stale children, then upserts the incoming ones.
func replaceChildren(ctx context.Context, tx *sql.Tx, r *domain.Record) (domain.UpsertStats, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id FROM entity_children
		WHERE kind = $1 AND site_id = $2 AND parent_id = $3
		FOR UPDATE
	`, string(r.Kind), r.SiteID, r.ID)
	if err != nil {
		return domain.UpsertStats{}, fmt.Errorf("load children of %s: %w", r.Key(), err)
	}
	var stored []domain.ChildRecord
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return domain.UpsertStats{}, err
		}
		stored = append(stored, domain.ChildRecord{ID: id})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return domain.UpsertStats{}, err
	}

	stats := domain.ReconcileChildren(stored, r.Children)

	incoming := make([]int64, len(r.Children))
	for i, c := range r.Children {
		incoming[i] = c.ID
	}
	if stats.ChildrenDeleted > 0 {
		_, err = tx.ExecContext(ctx, `
			DELETE FROM entity_children
			WHERE kind = $1 AND site_id = $2 AND parent_id = $3 AND NOT (id = ANY($4))
		`, string(r.Kind), r.SiteID, r.ID, pq.Array(incoming))
		if err != nil {
			return domain.UpsertStats{}, fmt.Errorf("delete stale children of %s: %w", r.Key(), err)
		}
	}

	for _, c := range r.Children {
		fieldsJSON, err := marshalFields(c.Fields)
		if err != nil {
			return domain.UpsertStats{}, err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO entity_children (kind, site_id, parent_id, id, fields)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (kind, site_id, parent_id, id) DO UPDATE SET
				fields = EXCLUDED.fields
		`, string(r.Kind), r.SiteID, r.ID, c.ID, fieldsJSON)
		if err != nil {
			return domain.UpsertStats{}, fmt.Errorf("upsert child %d of %s: %w", c.ID, r.Key(), err)
		}
	}
	return stats, nil
}

// Get retrieves a record with its children
func (s *EntityStore) Get(ctx context.Context, key domain.EntityKey) (*domain.Record, error) {
	query := `
		SELECT kind, site_id, id, fields, updated_at
		FROM entities
		WHERE kind = $1 AND site_id = $2 AND id = $3
	`
	r, err := scanRecord(s.db.QueryRowContext(ctx, query, string(key.Kind), key.SiteID, key.ID))
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, persistenceError("get entity", err)
	}

	if err := s.loadChildren(ctx, key.Kind, key.SiteID, []*domain.Record{r}); err != nil {
		return nil, persistenceError("get entity children", err)
	}
	return r, nil
}

// Delete removes every record matching the predicate. Children cascade.
func (s *EntityStore) Delete(ctx context.Context, pred domain.Predicate) (int, error) {
	where, args, err := whereClause(pred)
	if err != nil {
		return 0, err
	}

	rows, err := s.db.QueryContext(ctx, "DELETE FROM entities WHERE "+where+" RETURNING id", args...)
	if err != nil {
		return 0, persistenceError("delete entities", err)
	}
	defer rows.Close()

	var keys []domain.EntityKey
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return 0, persistenceError("delete entities", err)
		}
		keys = append(keys, domain.EntityKey{Kind: pred.Kind, SiteID: pred.SiteID, ID: id})
	}
	if err := rows.Err(); err != nil {
		return 0, persistenceError("delete entities", err)
	}

	if len(keys) > 0 {
		s.changes.Publish(domain.StoreChange{Type: domain.ChangeTypeDeleted, Kind: pred.Kind, SiteID: pred.SiteID, Keys: keys})
	}
	return len(keys), nil
}

// Query returns matching records ordered by sort, ties broken by id.
// Ordering happens in Go so every store orders mixed values the same way.
func (s *EntityStore) Query(ctx context.Context, pred domain.Predicate, sort []domain.SortDescriptor) ([]*domain.Record, error) {
	if err := domain.ValidateSort(sort); err != nil {
		return nil, err
	}
	where, args, err := whereClause(pred)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, site_id, id, fields, updated_at
		FROM entities
		WHERE `+where, args...)
	if err != nil {
		return nil, persistenceError("query entities", err)
	}
	defer rows.Close()

	var records []*domain.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, persistenceError("query entities", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, persistenceError("query entities", err)
	}

	if err := s.loadChildren(ctx, pred.Kind, pred.SiteID, records); err != nil {
		return nil, persistenceError("query entity children", err)
	}

	domain.SortRecords(records, sort)
	return records, nil
}

// Count returns the number of matching records
func (s *EntityStore) Count(ctx context.Context, pred domain.Predicate) (int, error) {
	where, args, err := whereClause(pred)
	if err != nil {
		return 0, err
	}

	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM entities WHERE "+where, args...).Scan(&count); err != nil {
		return 0, persistenceError("count entities", err)
	}
	return count, nil
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

func (s *EntityStore) loadChildren(ctx context.Context, kind domain.EntityKind, siteID int64, records []*domain.Record) error {
	if len(records) == 0 {
		return nil
	}
	byID := make(map[int64]*domain.Record, len(records))
	ids := make([]int64, len(records))
	for i, r := range records {
		byID[r.ID] = r
		ids[i] = r.ID
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT parent_id, id, fields
		FROM entity_children
		WHERE kind = $1 AND site_id = $2 AND parent_id = ANY($3)
		ORDER BY parent_id, id
	`, string(kind), siteID, pq.Array(ids))
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var parentID int64
		var child domain.ChildRecord
		var fieldsJSON []byte
		if err := rows.Scan(&parentID, &child.ID, &fieldsJSON); err != nil {
			return err
		}
		if err := json.Unmarshal(fieldsJSON, &child.Fields); err != nil {
			return err
		}
		if parent, ok := byID[parentID]; ok {
			parent.Children = append(parent.Children, child)
		}
	}
	return rows.Err()
}

func (s *EntityStore) publish(changeType domain.ChangeType, records []*domain.Record) {
	type scope struct {
		kind   domain.EntityKind
		siteID int64
	}
	grouped := make(map[scope][]domain.EntityKey)
	var order []scope
	for _, r := range records {
		sc := scope{kind: r.Kind, siteID: r.SiteID}
		if _, ok := grouped[sc]; !ok {
			order = append(order, sc)
		}
		grouped[sc] = append(grouped[sc], r.Key())
	}
	for _, sc := range order {
		s.changes.Publish(domain.StoreChange{Type: changeType, Kind: sc.kind, SiteID: sc.siteID, Keys: grouped[sc]})
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*domain.Record, error) {
	var r domain.Record
	var kind string
	var fieldsJSON []byte
	if err := row.Scan(&kind, &r.SiteID, &r.ID, &fieldsJSON, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.Kind = domain.EntityKind(kind)
	if err := json.Unmarshal(fieldsJSON, &r.Fields); err != nil {
		return nil, fmt.Errorf("decode fields of %s: %w", r.Key(), err)
	}
	return &r, nil
}

func marshalFields(fields map[string]any) ([]byte, error) {
	if fields == nil {
		return []byte("{}"), nil
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("%w: fields are not JSON: %v", domain.ErrInvalidInput, err)
	}
	return raw, nil
}
