package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/custodia-labs/storesync/internal/core/domain"
	"github.com/custodia-labs/storesync/internal/core/ports/driven"
	"github.com/custodia-labs/storesync/internal/pubsub"
)

// ResultsProjection is a filtered, sorted view over the entity store.
// Rows are replaced as a whole on every successful fetch and published to
// subscribers; a failed fetch leaves the previous rows in place.
type ResultsProjection struct {
	store     driven.EntityStore
	predicate domain.Predicate
	sort      []domain.SortDescriptor
	logger    *slog.Logger

	// degraded projections were built from a malformed predicate and
	// always yield no rows
	degraded bool

	mu      sync.RWMutex
	rows    []*domain.Record
	fetched bool

	updates *pubsub.Subject[[]*domain.Record]
}

// ResultsProjectionConfig holds configuration for a projection.
type ResultsProjectionConfig struct {
	Store     driven.EntityStore
	Predicate domain.Predicate
	Sort      []domain.SortDescriptor
	Logger    *slog.Logger

	// StrictMode rejects malformed predicates instead of degrading to an
	// always empty projection.
	StrictMode bool
}

// NewResultsProjection creates a projection. Rows are empty until the first
// PerformFetch.
func NewResultsProjection(cfg ResultsProjectionConfig) (*ResultsProjection, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("%w: store is required", domain.ErrInvalidInput)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	p := &ResultsProjection{
		store:     cfg.Store,
		predicate: cfg.Predicate,
		sort:      append([]domain.SortDescriptor(nil), cfg.Sort...),
		logger:    logger.With("kind", cfg.Predicate.Kind, "site_id", cfg.Predicate.SiteID),
		updates:   pubsub.NewSubject[[]*domain.Record](pubsub.DefaultBuffer),
	}

	err := cfg.Predicate.Validate()
	if err == nil {
		err = domain.ValidateSort(cfg.Sort)
	}
	if err != nil {
		if cfg.StrictMode {
			return nil, &domain.ProjectionError{Kind: cfg.Predicate.Kind, Err: err}
		}
		p.logger.Error("malformed projection, serving no rows", "error", err)
		p.degraded = true
	}

	return p, nil
}

// PerformFetch re-runs the query and replaces the rows. On failure the
// previous rows are kept and a *domain.ProjectionError is returned.
func (p *ResultsProjection) PerformFetch(ctx context.Context) error {
	if p.degraded {
		p.replace(nil)
		return nil
	}

	rows, err := p.store.Query(ctx, p.predicate, p.sort)
	if err != nil {
		p.logger.Error("projection fetch failed", "error", err)
		return &domain.ProjectionError{Kind: p.predicate.Kind, Err: err}
	}

	p.replace(rows)
	return nil
}

func (p *ResultsProjection) replace(rows []*domain.Record) {
	if rows == nil {
		rows = []*domain.Record{}
	}
	p.mu.Lock()
	p.rows = rows
	p.fetched = true
	p.mu.Unlock()

	p.updates.Publish(rows)
}

// Watch reacts to store changes that may affect the projection. With a nil
// onChange it re-fetches directly; otherwise onChange is called and is
// expected to arrange the fetch on the owning context. It blocks until ctx
// is done or the store closes.
func (p *ResultsProjection) Watch(ctx context.Context, onChange func()) {
	sub := p.store.Subscribe()
	defer sub.Cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case change, ok := <-sub.C():
			if !ok {
				return
			}
			if !p.affectedBy(change) {
				continue
			}
			if onChange != nil {
				onChange()
				continue
			}
			if err := p.PerformFetch(ctx); err != nil {
				p.logger.Warn("refetch after store change failed", "error", err)
			}
		}
	}
}

func (p *ResultsProjection) affectedBy(change domain.StoreChange) bool {
	return change.Kind == p.predicate.Kind && change.SiteID == p.predicate.SiteID
}

// Rows returns the current rows. The slice must not be modified.
func (p *ResultsProjection) Rows() []*domain.Record {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.rows
}

// Len returns the number of rows
func (p *ResultsProjection) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.rows)
}

// IsEmpty reports whether the projection has no rows
func (p *ResultsProjection) IsEmpty() bool {
	return p.Len() == 0
}

// Fetched reports whether a fetch has succeeded at least once
func (p *ResultsProjection) Fetched() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.fetched
}

// Degraded reports whether the projection was built from a malformed predicate
func (p *ResultsProjection) Degraded() bool {
	return p.degraded
}

// Predicate returns the projection predicate
func (p *ResultsProjection) Predicate() domain.Predicate {
	return p.predicate
}

// Subscribe returns a subscription receiving every new row snapshot
func (p *ResultsProjection) Subscribe() *pubsub.Subscription[[]*domain.Record] {
	return p.updates.Subscribe()
}

// Close ends every subscription
func (p *ResultsProjection) Close() {
	p.updates.Close()
}
