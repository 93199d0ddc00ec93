package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/custodia-labs/storesync/internal/core/domain"
	"github.com/custodia-labs/storesync/internal/core/ports/driven"
)

// Verify interface compliance
var _ PageSyncer = (*EntitySyncer)(nil)

// EntitySyncer fetches pages of one entity kind from the remote store and
// upserts them into the entity store.
type EntitySyncer struct {
	transport driven.RemoteTransport
	store     driven.EntityStore
	kind      domain.EntityKind
	siteID    int64
	filters   map[string]string
	reset     *domain.Predicate
	order     []domain.SortDescriptor
	logger    *slog.Logger

	// latest is the highest generation seen by SyncPage. First pages of
	// older generations never prune.
	latest atomic.Uint64

	// Serialises pruning and saving so a prune never interleaves with
	// another page's upsert.
	writeMu sync.Mutex
}

// EntitySyncerConfig holds configuration for an entity syncer.
type EntitySyncerConfig struct {
	Transport driven.RemoteTransport
	Store     driven.EntityStore
	Kind      domain.EntityKind
	SiteID    int64
	Filters   map[string]string // Remote query filters, e.g. status
	Logger    *slog.Logger

	// ResetOnFirstPage, when set, prunes cached records it matches that a
	// first page proves deleted remotely: records missing from the page
	// that sort ahead of its last row (all missing records on a short
	// page). Later pages keep their rows whatever the completion order.
	ResetOnFirstPage *domain.Predicate

	// Order is the remote collection order, used to bound the prune
	Order []domain.SortDescriptor
}

// NewEntitySyncer creates a new EntitySyncer.
func NewEntitySyncer(cfg EntitySyncerConfig) (*EntitySyncer, error) {
	if cfg.Transport == nil || cfg.Store == nil {
		return nil, fmt.Errorf("%w: transport and store are required", domain.ErrInvalidInput)
	}
	if !cfg.Kind.IsValid() {
		return nil, fmt.Errorf("%w: unknown kind %q", domain.ErrInvalidInput, cfg.Kind)
	}
	if cfg.ResetOnFirstPage != nil {
		if err := cfg.ResetOnFirstPage.Validate(); err != nil {
			return nil, err
		}
		if err := domain.ValidateSort(cfg.Order); err != nil {
			return nil, err
		}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &EntitySyncer{
		transport: cfg.Transport,
		store:     cfg.Store,
		kind:      cfg.Kind,
		siteID:    cfg.SiteID,
		filters:   cfg.Filters,
		reset:     cfg.ResetOnFirstPage,
		order:     cfg.Order,
		logger:    logger.With("kind", cfg.Kind, "site_id", cfg.SiteID),
	}, nil
}

// SyncPage implements PageSyncer. ItemCount is the number of remote items,
// duplicates included, so short pages are detected correctly.
func (s *EntitySyncer) SyncPage(ctx context.Context, req domain.PageRequest) (domain.PageResult, error) {
	s.observe(req.Generation)

	records, err := s.transport.FetchPage(ctx, driven.RemotePageRequest{
		Kind:     s.kind,
		SiteID:   s.siteID,
		Page:     req.PageNumber,
		PageSize: req.PageSize,
		Filters:  s.filters,
	})
	if err != nil {
		return domain.PageResult{}, fmt.Errorf("fetch %s page %d: %w", s.kind, req.PageNumber, err)
	}

	for _, r := range records {
		r.Kind = s.kind
		r.SiteID = s.siteID
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if req.PageNumber == 1 && s.reset != nil {
		if req.Generation < s.latest.Load() {
			s.logger.Debug("superseded first page, skipping prune", "generation", req.Generation)
		} else if err := s.prune(ctx, records, req.PageSize); err != nil {
			return domain.PageResult{}, fmt.Errorf("prune %s before first page: %w", s.kind, err)
		}
	}

	result := domain.PageResult{ItemCount: len(records)}
	if len(records) == 0 {
		return result, nil
	}

	stats, err := s.store.Upsert(ctx, records)
	if err != nil {
		return domain.PageResult{}, fmt.Errorf("save %s page %d: %w", s.kind, req.PageNumber, err)
	}
	result.Stats = stats

	s.logger.Debug("page saved",
		"page", req.PageNumber,
		"items", len(records),
		"inserted", stats.Inserted,
		"updated", stats.Updated,
		"children_deleted", stats.ChildrenDeleted,
	)
	return result, nil
}

func (s *EntitySyncer) observe(generation uint64) {
	for {
		cur := s.latest.Load()
		if generation <= cur || s.latest.CompareAndSwap(cur, generation) {
			return
		}
	}
}

// prune deletes cached records within the range covered by a first page
// that the page does not contain.
func (s *EntitySyncer) prune(ctx context.Context, page []*domain.Record, pageSize int) error {
	cached, err := s.store.Query(ctx, *s.reset, s.order)
	if err != nil {
		return err
	}

	received := make(map[int64]struct{}, len(page))
	for _, r := range page {
		received[r.ID] = struct{}{}
	}

	// A full page only speaks for rows ahead of its last one
	var last *domain.Record
	if len(page) >= pageSize && len(page) > 0 {
		sorted := make([]*domain.Record, len(page))
		copy(sorted, page)
		domain.SortRecords(sorted, s.order)
		last = sorted[len(sorted)-1]
	}

	var stale []any
	for _, r := range cached {
		if _, ok := received[r.ID]; ok {
			continue
		}
		if last != nil && !domain.SortsBefore(r, last, s.order) {
			continue
		}
		stale = append(stale, r.ID)
	}
	if len(stale) == 0 {
		return nil
	}

	deleted, err := s.store.Delete(ctx, s.reset.Where("id", domain.OpIn, stale...))
	if err != nil {
		return err
	}
	s.logger.Debug("pruned records missing from first page", "deleted", deleted)
	return nil
}
