package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/custodia-labs/storesync/internal/core/domain"
	"github.com/custodia-labs/storesync/internal/pubsub"
)

// PaginatedList binds a sync coordinator to a results projection and derives
// the sync status presented to the UI:
//
//	none -> first_page_sync -> results | empty
//
// Status is recomputed from the projection size after every completion.
// State changes happen on the executor only; public methods marshal onto it
// and must not be called from an executor task.
type PaginatedList struct {
	name        domain.ListName
	siteID      int64
	projection  *ResultsProjection
	coordinator *SyncCoordinator
	executor    Executor
	logger      *slog.Logger
	events      *pubsub.Subject[domain.ListEvent]

	// Owned by the executor
	status           domain.SyncStatus
	firstPagePending bool
	lastPage         int

	mu       sync.RWMutex
	snapshot domain.ListEvent
}

// PaginatedListConfig holds configuration for a paginated list.
type PaginatedListConfig struct {
	Name         domain.ListName
	SiteID       int64
	Projection   *ResultsProjection
	Syncer       PageSyncer
	Executor     Executor
	Logger       *slog.Logger
	PageSize     int
	Threshold    int
	FetchTimeout time.Duration
}

// NewPaginatedList creates a new list in the none state.
func NewPaginatedList(cfg PaginatedListConfig) (*PaginatedList, error) {
	if cfg.Projection == nil {
		return nil, fmt.Errorf("%w: projection is required", domain.ErrInvalidInput)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("list", cfg.Name, "site_id", cfg.SiteID)

	l := &PaginatedList{
		name:       cfg.Name,
		siteID:     cfg.SiteID,
		projection: cfg.Projection,
		executor:   cfg.Executor,
		logger:     logger,
		events:     pubsub.NewSubject[domain.ListEvent](pubsub.DefaultBuffer),
		status:     domain.SyncStatusNone,
	}

	coordinator, err := NewSyncCoordinator(SyncCoordinatorConfig{
		Syncer:       cfg.Syncer,
		Executor:     cfg.Executor,
		Listener:     l,
		Logger:       logger,
		PageSize:     cfg.PageSize,
		Threshold:    cfg.Threshold,
		FetchTimeout: cfg.FetchTimeout,
	})
	if err != nil {
		return nil, err
	}
	l.coordinator = coordinator
	l.snapshot = l.event("")

	return l, nil
}

// SyncFirstPage starts a sync from page 1. With rows already visible the
// status stays results while the refresh runs.
func (l *PaginatedList) SyncFirstPage(ctx context.Context) (domain.ListEvent, error) {
	return l.onExecutor(ctx, func() {
		reason := domain.SyncReasonPullToRefresh
		if l.status == domain.SyncStatusNone {
			reason = domain.SyncReasonInitial
			if err := l.projection.PerformFetch(ctx); err != nil {
				l.logger.Warn("initial projection fetch failed", "error", err)
			}
		}

		l.coordinator.SynchronizeFirstPage(ctx, reason)
		l.firstPagePending = true
		l.status = l.recompute()
		l.publish("")
	})
}

// EnsureNextPageIsSynchronized is called with the last visible row index and
// fetches the next page, or retries a failed one, when it is close enough
// to the end of the loaded rows.
func (l *PaginatedList) EnsureNextPageIsSynchronized(ctx context.Context, lastVisibleIndex int) (domain.ListEvent, error) {
	return l.onExecutor(ctx, func() {
		req, ok := l.coordinator.EnsureNextPageIsSynchronized(ctx, lastVisibleIndex)
		if !ok {
			return
		}
		if req.PageNumber == 1 {
			l.firstPagePending = true
			l.status = l.recompute()
		}
		l.publish("")
	})
}

// PageSyncStarted implements SyncListener
func (l *PaginatedList) PageSyncStarted(req domain.PageRequest) {
	l.lastPage = req.PageNumber
}

// PageSyncCompleted implements SyncListener. The projection is refetched
// after every completion, including ones of a superseded cycle, since their
// records were persisted as well.
func (l *PaginatedList) PageSyncCompleted(req domain.PageRequest, result domain.PageResult, err error) {
	current := req.Generation == l.coordinator.Generation()
	if current && req.PageNumber == 1 {
		l.firstPagePending = false
	}
	l.lastPage = req.PageNumber

	var errMsg string
	if err != nil && current {
		errMsg = err.Error()
		l.logger.Warn("page sync failed", "page", req.PageNumber, "error", err)
	}

	if fetchErr := l.projection.PerformFetch(context.Background()); fetchErr != nil && errMsg == "" {
		errMsg = fetchErr.Error()
	}

	l.status = l.recompute()
	l.publish(errMsg)
}

// refresh re-reads the projection after a store change made elsewhere.
func (l *PaginatedList) refresh() {
	if err := l.projection.PerformFetch(context.Background()); err != nil {
		l.publish(err.Error())
		return
	}
	l.status = l.recompute()
	l.publish("")
}

func (l *PaginatedList) recompute() domain.SyncStatus {
	switch {
	case l.status == domain.SyncStatusNone && !l.firstPagePending:
		return domain.SyncStatusNone
	case !l.projection.IsEmpty():
		return domain.SyncStatusResults
	case l.firstPagePending:
		return domain.SyncStatusFirstPageSync
	default:
		return domain.SyncStatusEmpty
	}
}

func (l *PaginatedList) event(errMsg string) domain.ListEvent {
	return domain.ListEvent{
		List:         l.name,
		SiteID:       l.siteID,
		Status:       l.status,
		Rows:         l.projection.Rows(),
		HasMoreItems: l.coordinator.HasMoreItems(),
		Syncing:      l.coordinator.IsSyncing(),
		Page:         l.lastPage,
		Error:        errMsg,
		At:           time.Now(),
	}
}

func (l *PaginatedList) publish(errMsg string) {
	ev := l.event(errMsg)
	l.mu.Lock()
	l.snapshot = ev
	l.mu.Unlock()
	l.events.Publish(ev)
}

// onExecutor runs fn on the executor and returns the state right after it.
func (l *PaginatedList) onExecutor(ctx context.Context, fn func()) (domain.ListEvent, error) {
	done := make(chan domain.ListEvent, 1)
	if !l.executor.Dispatch(func() {
		fn()
		done <- l.Snapshot()
	}) {
		return l.Snapshot(), fmt.Errorf("list %s: %w", l.name, domain.ErrClosed)
	}
	select {
	case ev := <-done:
		return ev, nil
	case <-ctx.Done():
		return l.Snapshot(), ctx.Err()
	}
}

// Watch keeps the list current with store changes made by other writers,
// such as another list of the same kind. It blocks until ctx is done.
func (l *PaginatedList) Watch(ctx context.Context) {
	l.projection.Watch(ctx, func() {
		l.executor.Dispatch(l.refresh)
	})
}

// Snapshot returns the latest published state
func (l *PaginatedList) Snapshot() domain.ListEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snapshot
}

// Status returns the current sync status
func (l *PaginatedList) Status() domain.SyncStatus {
	return l.Snapshot().Status
}

// Rows returns the current projection rows
func (l *PaginatedList) Rows() []*domain.Record {
	return l.Snapshot().Rows
}

// HasMoreItems reports whether further pages may exist
func (l *PaginatedList) HasMoreItems() bool {
	return l.Snapshot().HasMoreItems
}

// Name returns the list name
func (l *PaginatedList) Name() domain.ListName { return l.name }

// SiteID returns the site the list belongs to
func (l *PaginatedList) SiteID() int64 { return l.siteID }

// Subscribe returns a subscription receiving every state change
func (l *PaginatedList) Subscribe() *pubsub.Subscription[domain.ListEvent] {
	return l.events.Subscribe()
}

// Close ends every subscription
func (l *PaginatedList) Close() {
	l.events.Close()
	l.projection.Close()
}
