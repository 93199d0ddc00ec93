package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/custodia-labs/storesync/internal/core/domain"
)

// PageSyncer fetches one remote page and persists it. It reports the number
// of remote items returned so the coordinator can detect the last page.
type PageSyncer interface {
	SyncPage(ctx context.Context, req domain.PageRequest) (domain.PageResult, error)
}

// PageSyncerFunc adapts a function to PageSyncer
type PageSyncerFunc func(ctx context.Context, req domain.PageRequest) (domain.PageResult, error)

func (f PageSyncerFunc) SyncPage(ctx context.Context, req domain.PageRequest) (domain.PageResult, error) {
	return f(ctx, req)
}

// SyncListener is notified on the owning executor when a page fetch starts
// and when it completes.
type SyncListener interface {
	PageSyncStarted(req domain.PageRequest)
	PageSyncCompleted(req domain.PageRequest, result domain.PageResult, err error)
}

// Executor runs functions serially on the owning execution context.
// worker.Executor implements it.
type Executor interface {
	Dispatch(fn func()) bool
}

// SyncCoordinator issues page fetches decided by a PageTracker, runs them
// off the owning context and marshals every completion back onto it.
//
// All methods must be called on the executor.
type SyncCoordinator struct {
	tracker      *PageTracker
	syncer       PageSyncer
	executor     Executor
	listener     SyncListener
	logger       *slog.Logger
	fetchTimeout time.Duration
}

// SyncCoordinatorConfig holds configuration for the coordinator.
type SyncCoordinatorConfig struct {
	Syncer       PageSyncer
	Executor     Executor
	Listener     SyncListener // Optional
	Logger       *slog.Logger
	PageSize     int
	Threshold    int           // Prefetch distance in items; negative selects PageSize/5
	FetchTimeout time.Duration // Upper bound of one page fetch (default: 60s)
}

// NewSyncCoordinator creates a new coordinator.
func NewSyncCoordinator(cfg SyncCoordinatorConfig) (*SyncCoordinator, error) {
	if cfg.Syncer == nil {
		return nil, fmt.Errorf("%w: syncer is required", domain.ErrInvalidInput)
	}
	if cfg.Executor == nil {
		return nil, fmt.Errorf("%w: executor is required", domain.ErrInvalidInput)
	}

	tracker, err := NewPageTracker(cfg.PageSize, cfg.Threshold)
	if err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	fetchTimeout := cfg.FetchTimeout
	if fetchTimeout <= 0 {
		fetchTimeout = 60 * time.Second
	}

	return &SyncCoordinator{
		tracker:      tracker,
		syncer:       cfg.Syncer,
		executor:     cfg.Executor,
		listener:     cfg.Listener,
		logger:       logger,
		fetchTimeout: fetchTimeout,
	}, nil
}

// SynchronizeFirstPage restarts syncing from page 1. A fetch of the previous
// cycle that is still running is not cancelled; its result is persisted but
// no longer affects page tracking.
func (c *SyncCoordinator) SynchronizeFirstPage(ctx context.Context, reason domain.SyncReason) domain.PageRequest {
	req := c.tracker.SynchronizeFirstPage(reason)
	c.start(ctx, req)
	return req
}

// EnsureNextPageIsSynchronized fetches the next page, or re-fetches a failed
// one, once lastVisibleIndex comes close enough to the end of the loaded data.
func (c *SyncCoordinator) EnsureNextPageIsSynchronized(ctx context.Context, lastVisibleIndex int) (domain.PageRequest, bool) {
	req, ok := c.tracker.EnsureNextPageIsSynchronized(lastVisibleIndex)
	if !ok {
		return domain.PageRequest{}, false
	}
	c.start(ctx, req)
	return req, true
}

func (c *SyncCoordinator) start(ctx context.Context, req domain.PageRequest) {
	c.logger.Debug("page sync started",
		"page", req.PageNumber,
		"reason", req.Reason,
		"generation", req.Generation,
	)
	if c.listener != nil {
		c.listener.PageSyncStarted(req)
	}

	// The fetch outlives the call that triggered it
	fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.fetchTimeout)
	go func() {
		defer cancel()
		startTime := time.Now()
		result, err := c.syncer.SyncPage(fetchCtx, req)
		duration := time.Since(startTime)

		if !c.executor.Dispatch(func() { c.complete(req, result, err, duration) }) {
			c.logger.Warn("executor stopped, dropping page completion",
				"page", req.PageNumber,
				"generation", req.Generation,
			)
		}
	}()
}

func (c *SyncCoordinator) complete(req domain.PageRequest, result domain.PageResult, err error, duration time.Duration) {
	current := c.tracker.Complete(req, result.ItemCount, err)

	if err != nil {
		c.logger.Warn("page sync failed",
			"page", req.PageNumber,
			"generation", req.Generation,
			"current", current,
			"duration", duration,
			"error", err,
		)
	} else {
		c.logger.Debug("page sync completed",
			"page", req.PageNumber,
			"generation", req.Generation,
			"current", current,
			"items", result.ItemCount,
			"inserted", result.Stats.Inserted,
			"updated", result.Stats.Updated,
			"duration", duration,
		)
	}

	if c.listener != nil {
		c.listener.PageSyncCompleted(req, result, err)
	}
}

// HasMoreItems reports whether further pages may exist
func (c *SyncCoordinator) HasMoreItems() bool {
	return !c.tracker.ReachedLastPage() || c.tracker.HasFailedPages()
}

// IsSyncing reports whether a fetch of the current cycle is outstanding
func (c *SyncCoordinator) IsSyncing() bool {
	return c.tracker.InFlight() > 0
}

// HighestPageBeingSynced returns the highest page requested in this cycle, 0 if none
func (c *SyncCoordinator) HighestPageBeingSynced() int {
	return c.tracker.HighestPageBeingSynced()
}

// Generation returns the current sync cycle
func (c *SyncCoordinator) Generation() uint64 {
	return c.tracker.Generation()
}

// PageSize returns the configured page size
func (c *SyncCoordinator) PageSize() int {
	return c.tracker.PageSize()
}
