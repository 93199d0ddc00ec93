package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEntityKey_String(t *testing.T) {
	assert.Equal(t, "order:3:42", EntityKey{Kind: EntityKindOrder, SiteID: 3, ID: 42}.String())
}

func TestRecord_Field(t *testing.T) {
	r := &Record{Kind: EntityKindOrder, SiteID: 3, ID: 42, Fields: map[string]any{"status": "completed"}}

	v, ok := r.Field("id")
	assert.True(t, ok)
	assert.Equal(t, int64(42), v)

	v, ok = r.Field("site_id")
	assert.True(t, ok)
	assert.Equal(t, int64(3), v)

	v, ok = r.Field("status")
	assert.True(t, ok)
	assert.Equal(t, "completed", v)

	_, ok = r.Field("total")
	assert.False(t, ok)
}

func TestRecord_CloneIsDeep(t *testing.T) {
	r := &Record{
		Kind: EntityKindOrder, SiteID: 1, ID: 1,
		Fields:   map[string]any{"status": "pending"},
		Children: []ChildRecord{{ID: 1, Fields: map[string]any{"quantity": float64(1)}}},
	}

	c := r.Clone()
	c.Fields["status"] = "completed"
	c.Children[0].Fields["quantity"] = float64(5)

	assert.Equal(t, "pending", r.Fields["status"])
	assert.Equal(t, float64(1), r.Children[0].Fields["quantity"])
}

func TestRecord_Validate(t *testing.T) {
	tests := []struct {
		name string
		rec  Record
		ok   bool
	}{
		{"valid", Record{Kind: EntityKindProduct, SiteID: 1, ID: 1}, true},
		{"unknown kind", Record{Kind: "coupon", ID: 1}, false},
		{"zero id", Record{Kind: EntityKindProduct}, false},
		{"duplicate child", Record{Kind: EntityKindOrder, ID: 1, Children: []ChildRecord{{ID: 2}, {ID: 2}}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rec.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidInput)
			}
		})
	}
}

func TestReconcileChildren(t *testing.T) {
	stored := []ChildRecord{{ID: 1}, {ID: 2}, {ID: 3}}
	incoming := []ChildRecord{{ID: 2}, {ID: 3}, {ID: 4}, {ID: 5}}

	stats := ReconcileChildren(stored, incoming)

	assert.Equal(t, UpsertStats{ChildrenAdded: 2, ChildrenUpdated: 2, ChildrenDeleted: 1}, stats)
}

func TestReconcileChildren_ClearAll(t *testing.T) {
	stats := ReconcileChildren([]ChildRecord{{ID: 1}, {ID: 2}}, nil)

	assert.Equal(t, UpsertStats{ChildrenDeleted: 2}, stats)
}

func TestUpsertStats_Add(t *testing.T) {
	s := UpsertStats{Inserted: 1, ChildrenAdded: 2}
	s.Add(UpsertStats{Updated: 3, ChildrenAdded: 1, ChildrenDeleted: 4})

	assert.Equal(t, UpsertStats{Inserted: 1, Updated: 3, ChildrenAdded: 3, ChildrenDeleted: 4}, s)
}
