package driven

import (
	"context"

	"github.com/custodia-labs/storesync/internal/core/domain"
)

// RemotePageRequest identifies one page of a remote collection
type RemotePageRequest struct {
	Kind     domain.EntityKind
	SiteID   int64
	Page     int
	PageSize int

	// Filters are passed through to the remote API as query parameters
	Filters map[string]string
}

// RemoteTransport fetches pages of remote entities.
// Timeouts and retries on server errors are the transport's concern;
// exhausted attempts surface as an error wrapping domain.ErrTransport.
type RemoteTransport interface {
	FetchPage(ctx context.Context, req RemotePageRequest) ([]*domain.Record, error)
}
