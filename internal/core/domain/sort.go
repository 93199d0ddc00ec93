package domain

import (
	"fmt"
	"sort"
)

// SortDescriptor orders records by one field
type SortDescriptor struct {
	Field     string `json:"field"`
	Ascending bool   `json:"ascending"`
}

// Asc and Desc build sort descriptors
func Asc(field string) SortDescriptor  { return SortDescriptor{Field: field, Ascending: true} }
func Desc(field string) SortDescriptor { return SortDescriptor{Field: field, Ascending: false} }

// ValidateSort checks every descriptor names a usable field
func ValidateSort(descriptors []SortDescriptor) error {
	for _, d := range descriptors {
		if !IsValidFieldName(d.Field) {
			return fmt.Errorf("%w: invalid sort field %q", ErrInvalidPredicate, d.Field)
		}
	}
	return nil
}

// SortRecords orders records by the descriptors, then by id ascending so
// ties never depend on insertion order.
func SortRecords(records []*Record, descriptors []SortDescriptor) {
	sort.SliceStable(records, func(i, j int) bool {
		return compareRecords(records[i], records[j], descriptors) < 0
	})
}

// SortsBefore reports whether a orders strictly before b under the
// descriptors alone. Records tied on every descriptor are not ordered.
func SortsBefore(a, b *Record, descriptors []SortDescriptor) bool {
	return compareFields(a, b, descriptors) < 0
}

func compareRecords(a, b *Record, descriptors []SortDescriptor) int {
	if c := compareFields(a, b, descriptors); c != 0 {
		return c
	}
	switch {
	case a.ID < b.ID:
		return -1
	case a.ID > b.ID:
		return 1
	}
	return 0
}

func compareFields(a, b *Record, descriptors []SortDescriptor) int {
	for _, d := range descriptors {
		av, _ := a.Field(d.Field)
		bv, _ := b.Field(d.Field)
		c := CompareValues(av, bv)
		if c == 0 {
			continue
		}
		if !d.Ascending {
			c = -c
		}
		return c
	}
	return 0
}

// value ranks for mixed-type comparison: nil < bool < number < string
const (
	rankNil = iota
	rankBool
	rankNumber
	rankString
	rankOther
)

func rankOf(v any) (int, float64, string, bool) {
	switch x := v.(type) {
	case nil:
		return rankNil, 0, "", false
	case bool:
		return rankBool, 0, "", x
	case int:
		return rankNumber, float64(x), "", false
	case int32:
		return rankNumber, float64(x), "", false
	case int64:
		return rankNumber, float64(x), "", false
	case float32:
		return rankNumber, float64(x), "", false
	case float64:
		return rankNumber, x, "", false
	case string:
		return rankString, 0, x, false
	default:
		return rankOther, 0, fmt.Sprint(x), false
	}
}

// CompareValues compares two field values. Numbers of any Go numeric type
// compare numerically.
func CompareValues(a, b any) int {
	ra, na, sa, ba := rankOf(a)
	rb, nb, sb, bb := rankOf(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	switch ra {
	case rankBool:
		switch {
		case ba == bb:
			return 0
		case !ba:
			return -1
		default:
			return 1
		}
	case rankNumber:
		switch {
		case na < nb:
			return -1
		case na > nb:
			return 1
		}
		return 0
	case rankString, rankOther:
		switch {
		case sa < sb:
			return -1
		case sa > sb:
			return 1
		}
		return 0
	}
	return 0
}

// ValuesEqual reports whether two field values are equal under CompareValues
func ValuesEqual(a, b any) bool {
	return CompareValues(a, b) == 0
}
