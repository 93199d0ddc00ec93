package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		msg  string
	}{
		{"ErrNotFound", ErrNotFound, "not found"},
		{"ErrInvalidInput", ErrInvalidInput, "invalid input"},
		{"ErrUnauthorized", ErrUnauthorized, "unauthorized"},
		{"ErrTokenExpired", ErrTokenExpired, "token expired"},
		{"ErrForbidden", ErrForbidden, "forbidden"},
		{"ErrInvalidPredicate", ErrInvalidPredicate, "invalid predicate"},
		{"ErrUnknownSetting", ErrUnknownSetting, "unknown setting"},
		{"ErrTransport", ErrTransport, "transport failure"},
		{"ErrPersistence", ErrPersistence, "persistence failure"},
		{"ErrListNotFound", ErrListNotFound, "list not found"},
		{"ErrClosed", ErrClosed, "closed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.msg, tt.err.Error())
		})
	}
}

func TestErrorsAreDistinct(t *testing.T) {
	all := []error{
		ErrNotFound, ErrInvalidInput, ErrUnauthorized, ErrTokenExpired, ErrForbidden,
		ErrInvalidPredicate, ErrUnknownSetting, ErrTransport, ErrPersistence,
		ErrListNotFound, ErrClosed,
	}
	for i, a := range all {
		for j, b := range all {
			if i != j {
				assert.False(t, errors.Is(a, b), "%v should not match %v", a, b)
			}
		}
	}
}

func TestProjectionError(t *testing.T) {
	cause := fmt.Errorf("query: %w", ErrPersistence)
	err := error(&ProjectionError{Kind: EntityKindOrder, Err: cause})

	assert.Equal(t, "projection order: query: persistence failure", err.Error())
	assert.ErrorIs(t, err, ErrPersistence)

	var pe *ProjectionError
	assert.True(t, errors.As(err, &pe))
	assert.Equal(t, EntityKindOrder, pe.Kind)
}
