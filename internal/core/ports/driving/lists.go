package driving

import (
	"context"

	"github.com/custodia-labs/storesync/internal/core/domain"
)

// ListService exposes the paginated lists of every site to a UI shell
type ListService interface {
	// State returns the latest state of a list, building it on first use
	State(ctx context.Context, siteID int64, name domain.ListName) (domain.ListEvent, error)

	// SyncFirstPage starts a sync from page 1 (initial load or pull to refresh)
	SyncFirstPage(ctx context.Context, siteID int64, name domain.ListName) (domain.ListEvent, error)

	// EnsureVisible reports the last visible row index so the next page can be prefetched
	EnsureVisible(ctx context.Context, siteID int64, name domain.ListName, lastVisibleIndex int) (domain.ListEvent, error)

	// Invalidate drops the lists of a site so they are rebuilt with fresh settings
	Invalidate(siteID int64)
}
