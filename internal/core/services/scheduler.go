package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/custodia-labs/storesync/internal/core/domain"
	"github.com/custodia-labs/storesync/internal/core/ports/driven"
	"github.com/custodia-labs/storesync/internal/core/ports/driving"
)

// Scheduler periodically re-syncs the first page of configured lists, the
// way a pull to refresh would.
//
// For multi-instance deployments, configure a DistributedLock so one
// instance refreshes a given list per interval.
type Scheduler struct {
	lists  driving.ListService
	lock   driven.DistributedLock
	logger *slog.Logger
	sites  []int64
	names  []domain.ListName

	// Internal state
	mu       sync.RWMutex
	running  bool
	stopCh   chan struct{}
	doneCh   chan struct{}
	interval time.Duration
}

// SchedulerConfig holds configuration for the scheduler.
type SchedulerConfig struct {
	Lists     driving.ListService
	Lock      driven.DistributedLock // Optional: skip lists refreshed by another instance
	Logger    *slog.Logger
	SiteIDs   []int64
	ListNames []domain.ListName // Default: every list
	Interval  time.Duration     // How often lists are refreshed (default: 5m)
}

// NewScheduler creates a new scheduler.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	interval := cfg.Interval
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	names := cfg.ListNames
	if len(names) == 0 {
		names = domain.ListNames()
	}

	return &Scheduler{
		lists:    cfg.Lists,
		lock:     cfg.Lock,
		logger:   logger,
		sites:    cfg.SiteIDs,
		names:    names,
		interval: interval,
	}
}

// Start begins the scheduler loop.
// It runs until Stop is called or context is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	s.logger.Info("scheduler starting", "interval", s.interval, "sites", len(s.sites))

	go s.run(ctx)

	return nil
}

// Stop gracefully stops the scheduler.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	close(s.stopCh)
	s.mu.Unlock()

	<-s.doneCh

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	s.logger.Info("scheduler stopped")
}

// IsRunning reports whether the loop is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// run is the main scheduler loop.
func (s *Scheduler) run(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Run immediately on start
	s.RefreshAll(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler context cancelled")
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.RefreshAll(ctx)
		}
	}
}

// RefreshAll triggers a first page sync of every configured list and
// returns how many were triggered.
func (s *Scheduler) RefreshAll(ctx context.Context) int {
	triggered := 0
	for _, siteID := range s.sites {
		for _, name := range s.names {
			if ctx.Err() != nil {
				return triggered
			}
			if s.refresh(ctx, siteID, name) {
				triggered++
			}
		}
	}
	return triggered
}

func (s *Scheduler) refresh(ctx context.Context, siteID int64, name domain.ListName) bool {
	logger := s.logger.With("site_id", siteID, "list", name)

	// The lock is left to expire so other instances skip this list until
	// the next interval.
	if s.lock != nil {
		acquired, err := s.lock.Acquire(ctx, lockName(siteID, name), s.interval)
		if err != nil {
			logger.Warn("failed to acquire refresh lock", "error", err)
			return false
		}
		if !acquired {
			logger.Debug("list refreshed by another instance, skipping")
			return false
		}
	}

	ev, err := s.lists.SyncFirstPage(ctx, siteID, name)
	if err != nil {
		logger.Error("failed to refresh list", "error", err)
		return false
	}

	logger.Info("list refresh triggered", "status", ev.Status, "rows", len(ev.Rows))
	return true
}

func lockName(siteID int64, name domain.ListName) string {
	return fmt.Sprintf("refresh:%d:%s", siteID, name)
}
