package domain

import (
	"fmt"
	"time"
)

// EntityKind identifies the type of a cached remote record
type EntityKind string

const (
	EntityKindProduct EntityKind = "product"
	EntityKindOrder   EntityKind = "order"
	EntityKindRefund  EntityKind = "refund"
)

// IsValid returns true if this is a known entity kind
func (k EntityKind) IsValid() bool {
	switch k {
	case EntityKindProduct, EntityKindOrder, EntityKindRefund:
		return true
	default:
		return false
	}
}

// EntityKey is the composite identity of a cached record.
// Two records with the same key are the same entity.
type EntityKey struct {
	Kind   EntityKind `json:"kind"`
	SiteID int64      `json:"site_id"`
	ID     int64      `json:"id"`
}

func (k EntityKey) String() string {
	return fmt.Sprintf("%s:%d:%d", k.Kind, k.SiteID, k.ID)
}

// Record is a remotely sourced entity mirrored into the local store.
// Fields hold JSON-compatible scalar values (string, float64, bool, nil);
// integers are accepted on write and compared numerically.
type Record struct {
	Kind      EntityKind     `json:"kind"`
	SiteID    int64          `json:"site_id"`
	ID        int64          `json:"id"`
	Fields    map[string]any `json:"fields"`
	Children  []ChildRecord  `json:"children,omitempty"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// ChildRecord is a record owned by a parent (order line item, refunded item).
// Children are replaced as a set whenever the parent is upserted.
type ChildRecord struct {
	ID     int64          `json:"id"`
	Fields map[string]any `json:"fields"`
}

// Key returns the record identity
func (r *Record) Key() EntityKey {
	return EntityKey{Kind: r.Kind, SiteID: r.SiteID, ID: r.ID}
}

// Field returns the value stored under name. The pseudo-fields "id" and
// "site_id" resolve to the record identity.
func (r *Record) Field(name string) (any, bool) {
	switch name {
	case "id":
		return r.ID, true
	case "site_id":
		return r.SiteID, true
	}
	v, ok := r.Fields[name]
	return v, ok
}

// Clone returns a deep copy of the record
func (r *Record) Clone() *Record {
	out := *r
	out.Fields = cloneFields(r.Fields)
	if r.Children != nil {
		out.Children = make([]ChildRecord, len(r.Children))
		for i, c := range r.Children {
			out.Children[i] = ChildRecord{ID: c.ID, Fields: cloneFields(c.Fields)}
		}
	}
	return &out
}

// Validate checks the record can be stored
func (r *Record) Validate() error {
	if !r.Kind.IsValid() {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidInput, r.Kind)
	}
	if r.ID <= 0 {
		return fmt.Errorf("%w: record id must be positive", ErrInvalidInput)
	}
	seen := make(map[int64]struct{}, len(r.Children))
	for _, c := range r.Children {
		if _, dup := seen[c.ID]; dup {
			return fmt.Errorf("%w: duplicate child id %d in %s", ErrInvalidInput, c.ID, r.Key())
		}
		seen[c.ID] = struct{}{}
	}
	return nil
}

func cloneFields(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// UpsertStats reports what an upsert batch changed
type UpsertStats struct {
	Inserted        int `json:"inserted"`
	Updated         int `json:"updated"`
	ChildrenAdded   int `json:"children_added"`
	ChildrenUpdated int `json:"children_updated"`
	ChildrenDeleted int `json:"children_deleted"`
}

// Add accumulates another batch into s
func (s *UpsertStats) Add(o UpsertStats) {
	s.Inserted += o.Inserted
	s.Updated += o.Updated
	s.ChildrenAdded += o.ChildrenAdded
	s.ChildrenUpdated += o.ChildrenUpdated
	s.ChildrenDeleted += o.ChildrenDeleted
}

// ReconcileChildren computes the child delta between the stored and the
// incoming set: stale children are deleted, matching ones updated and new
// ones inserted.
func ReconcileChildren(stored, incoming []ChildRecord) UpsertStats {
	var stats UpsertStats
	existing := make(map[int64]struct{}, len(stored))
	for _, c := range stored {
		existing[c.ID] = struct{}{}
	}
	for _, c := range incoming {
		if _, ok := existing[c.ID]; ok {
			stats.ChildrenUpdated++
			delete(existing, c.ID)
		} else {
			stats.ChildrenAdded++
		}
	}
	stats.ChildrenDeleted = len(existing)
	return stats
}

// ChangeType indicates what happened to a stored record
type ChangeType string

const (
	ChangeTypeUpserted ChangeType = "upserted"
	ChangeTypeDeleted  ChangeType = "deleted"
)

// StoreChange is published by an EntityStore after a committed mutation
type StoreChange struct {
	Type   ChangeType  `json:"type"`
	Kind   EntityKind  `json:"kind"`
	SiteID int64       `json:"site_id"`
	Keys   []EntityKey `json:"keys,omitempty"`
}
