package domain

import (
	"fmt"
	"strings"
)

// Operator is a comparison used by a predicate condition
type Operator string

const (
	OpEq    Operator = "eq"
	OpNe    Operator = "ne"
	OpIn    Operator = "in"
	OpNotIn Operator = "not_in"
)

// Condition restricts a single field
type Condition struct {
	Field  string   `json:"field"`
	Op     Operator `json:"op"`
	Values []any    `json:"values"`
}

// Predicate selects records of one kind within one site.
// A record matches when it satisfies every condition.
type Predicate struct {
	Kind       EntityKind  `json:"kind"`
	SiteID     int64       `json:"site_id"`
	Conditions []Condition `json:"conditions,omitempty"`
}

// Where returns a copy of p with an additional condition
func (p Predicate) Where(field string, op Operator, values ...any) Predicate {
	conds := make([]Condition, len(p.Conditions), len(p.Conditions)+1)
	copy(conds, p.Conditions)
	p.Conditions = append(conds, Condition{Field: field, Op: op, Values: values})
	return p
}

// Validate reports malformed predicates. These are programming errors.
func (p Predicate) Validate() error {
	if !p.Kind.IsValid() {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidPredicate, p.Kind)
	}
	for i, c := range p.Conditions {
		if strings.TrimSpace(c.Field) == "" {
			return fmt.Errorf("%w: condition %d has no field", ErrInvalidPredicate, i)
		}
		if !IsValidFieldName(c.Field) {
			return fmt.Errorf("%w: invalid field name %q", ErrInvalidPredicate, c.Field)
		}
		switch c.Op {
		case OpEq, OpNe:
			if len(c.Values) != 1 {
				return fmt.Errorf("%w: %s on %q needs exactly one value", ErrInvalidPredicate, c.Op, c.Field)
			}
		case OpIn, OpNotIn:
			if len(c.Values) == 0 {
				return fmt.Errorf("%w: %s on %q needs at least one value", ErrInvalidPredicate, c.Op, c.Field)
			}
		default:
			return fmt.Errorf("%w: unknown operator %q", ErrInvalidPredicate, c.Op)
		}
	}
	return nil
}

// Match reports whether r satisfies the predicate
func (p Predicate) Match(r *Record) bool {
	if r.Kind != p.Kind || r.SiteID != p.SiteID {
		return false
	}
	for _, c := range p.Conditions {
		if !c.match(r) {
			return false
		}
	}
	return true
}

func (c Condition) match(r *Record) bool {
	v, _ := r.Field(c.Field)
	switch c.Op {
	case OpEq:
		return ValuesEqual(v, c.Values[0])
	case OpNe:
		return !ValuesEqual(v, c.Values[0])
	case OpIn:
		return containsValue(c.Values, v)
	case OpNotIn:
		return !containsValue(c.Values, v)
	}
	return false
}

func containsValue(values []any, v any) bool {
	for _, candidate := range values {
		if ValuesEqual(candidate, v) {
			return true
		}
	}
	return false
}

// IsValidFieldName restricts field names to [a-z0-9_] so adapters can
// embed them in queries.
func IsValidFieldName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		if !(r == '_' || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')) {
			return false
		}
	}
	return true
}
