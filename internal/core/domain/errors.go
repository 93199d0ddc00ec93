package domain

import "errors"

// Domain errors - used across all layers
var (
	// ErrNotFound indicates the requested resource was not found
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates the input is invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnauthorized indicates authentication failed or missing
	ErrUnauthorized = errors.New("unauthorized")

	// ErrTokenExpired indicates the bearer token has expired
	ErrTokenExpired = errors.New("token expired")

	// ErrForbidden indicates the caller may not access the resource
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidPredicate indicates a predicate or sort order cannot be evaluated
	ErrInvalidPredicate = errors.New("invalid predicate")

	// ErrUnknownSetting indicates the setting key is not in the accessor table
	ErrUnknownSetting = errors.New("unknown setting")

	// ErrTransport indicates the remote store could not serve a page
	ErrTransport = errors.New("transport failure")

	// ErrPersistence indicates a local store write or query failed
	ErrPersistence = errors.New("persistence failure")

	// ErrListNotFound indicates no paginated list is registered under the name
	ErrListNotFound = errors.New("list not found")

	// ErrClosed indicates the component was stopped or closed
	ErrClosed = errors.New("closed")
)

// ProjectionError is returned when a results projection cannot be refreshed.
// The projection keeps its last successfully fetched rows.
type ProjectionError struct {
	Kind EntityKind
	Err  error
}

func (e *ProjectionError) Error() string {
	return "projection " + string(e.Kind) + ": " + e.Err.Error()
}

func (e *ProjectionError) Unwrap() error {
	return e.Err
}
