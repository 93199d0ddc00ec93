package postgres

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/custodia-labs/storesync/internal/core/domain"
	"github.com/lib/pq"
)

// whereClause translates a predicate into a WHERE clause over the entities
// table. Placeholders start at $1. Field values are compared as jsonb, and
// a missing field compares as JSON null, like the in-memory matcher.
func whereClause(pred domain.Predicate) (string, []any, error) {
	if err := pred.Validate(); err != nil {
		return "", nil, err
	}

	args := []any{string(pred.Kind), pred.SiteID}
	parts := []string{"kind = $1", "site_id = $2"}

	for _, c := range pred.Conditions {
		expr := fieldExpr(c.Field)

		switch c.Op {
		case domain.OpEq, domain.OpNe:
			raw, err := json.Marshal(c.Values[0])
			if err != nil {
				return "", nil, fmt.Errorf("%w: value of %q: %v", domain.ErrInvalidPredicate, c.Field, err)
			}
			args = append(args, string(raw))
			op := "="
			if c.Op == domain.OpNe {
				op = "<>"
			}
			parts = append(parts, fmt.Sprintf("%s %s $%d::jsonb", expr, op, len(args)))

		case domain.OpIn, domain.OpNotIn:
			values := make([]string, len(c.Values))
			for i, v := range c.Values {
				raw, err := json.Marshal(v)
				if err != nil {
					return "", nil, fmt.Errorf("%w: value of %q: %v", domain.ErrInvalidPredicate, c.Field, err)
				}
				values[i] = string(raw)
			}
			args = append(args, pq.Array(values))
			clause := fmt.Sprintf("%s = ANY($%d::jsonb[])", expr, len(args))
			if c.Op == domain.OpNotIn {
				clause = "NOT (" + clause + ")"
			}
			parts = append(parts, clause)
		}
	}

	return strings.Join(parts, " AND "), args, nil
}

// fieldExpr returns the jsonb expression of a field. Names are restricted
// to [a-z0-9_] by predicate validation, so they are safe to inline.
func fieldExpr(field string) string {
	switch field {
	case "id":
		return "to_jsonb(id)"
	case "site_id":
		return "to_jsonb(site_id)"
	}
	return fmt.Sprintf("COALESCE(fields->'%s', 'null'::jsonb)", field)
}
