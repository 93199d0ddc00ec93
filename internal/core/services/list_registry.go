package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/custodia-labs/storesync/internal/core/domain"
	"github.com/custodia-labs/storesync/internal/core/ports/driven"
	"github.com/custodia-labs/storesync/internal/core/ports/driving"
)

// Ensure ListRegistry implements ListService
var _ driving.ListService = (*ListRegistry)(nil)

type listKey struct {
	siteID int64
	name   domain.ListName
}

// ListRegistry builds and owns the paginated lists of every site. Lists are
// built on first use from the current site settings.
type ListRegistry struct {
	store        driven.EntityStore
	transport    driven.RemoteTransport
	settings     driving.SettingsService
	executor     Executor
	logger       *slog.Logger
	strict       bool
	watch        bool
	fetchTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	lists   map[listKey]*PaginatedList
	cancels map[listKey]context.CancelFunc
	closed  bool
}

// ListRegistryConfig holds the dependencies shared by every list.
type ListRegistryConfig struct {
	Store     driven.EntityStore
	Transport driven.RemoteTransport
	Settings  driving.SettingsService
	Executor  Executor
	Logger    *slog.Logger

	StrictProjections bool          // Fail on malformed list predicates instead of serving no rows
	WatchStore        bool          // Keep lists current with writes made by other lists
	FetchTimeout      time.Duration // Upper bound of one page fetch
}

// NewListRegistry creates a new registry.
func NewListRegistry(cfg ListRegistryConfig) (*ListRegistry, error) {
	if cfg.Store == nil || cfg.Transport == nil || cfg.Settings == nil || cfg.Executor == nil {
		return nil, fmt.Errorf("%w: store, transport, settings and executor are required", domain.ErrInvalidInput)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &ListRegistry{
		store:        cfg.Store,
		transport:    cfg.Transport,
		settings:     cfg.Settings,
		executor:     cfg.Executor,
		logger:       logger,
		strict:       cfg.StrictProjections,
		watch:        cfg.WatchStore,
		fetchTimeout: cfg.FetchTimeout,
		ctx:          ctx,
		cancel:       cancel,
		lists:        make(map[listKey]*PaginatedList),
		cancels:      make(map[listKey]context.CancelFunc),
	}, nil
}

// List returns the list of a site, building it if needed.
func (r *ListRegistry) List(ctx context.Context, siteID int64, name domain.ListName) (*PaginatedList, error) {
	if !name.IsValid() {
		return nil, fmt.Errorf("%w: %s", domain.ErrListNotFound, name)
	}
	key := listKey{siteID: siteID, name: name}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, domain.ErrClosed
	}
	if list, ok := r.lists[key]; ok {
		r.mu.Unlock()
		return list, nil
	}
	r.mu.Unlock()

	list, err := r.build(ctx, siteID, name)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		list.Close()
		return nil, domain.ErrClosed
	}
	// Another caller may have built it meanwhile
	if existing, ok := r.lists[key]; ok {
		list.Close()
		return existing, nil
	}
	r.lists[key] = list
	if r.watch {
		watchCtx, cancel := context.WithCancel(r.ctx)
		r.cancels[key] = cancel
		go list.Watch(watchCtx)
	}
	return list, nil
}

func (r *ListRegistry) build(ctx context.Context, siteID int64, name domain.ListName) (*PaginatedList, error) {
	settings, err := r.settings.Get(ctx, siteID)
	if err != nil {
		return nil, err
	}
	def, err := defineList(name, siteID, settings)
	if err != nil {
		return nil, err
	}

	logger := r.logger.With("list", name, "site_id", siteID)

	projection, err := NewResultsProjection(ResultsProjectionConfig{
		Store:      r.store,
		Predicate:  def.predicate,
		Sort:       def.sort,
		Logger:     logger,
		StrictMode: r.strict,
	})
	if err != nil {
		return nil, err
	}

	syncerCfg := EntitySyncerConfig{
		Transport: r.transport,
		Store:     r.store,
		Kind:      name.Kind(),
		SiteID:    siteID,
		Filters:   def.filters,
		Logger:    logger,
	}
	if def.resetOnFirstPage {
		reset := def.predicate
		syncerCfg.ResetOnFirstPage = &reset
		syncerCfg.Order = def.sort
	}
	syncer, err := NewEntitySyncer(syncerCfg)
	if err != nil {
		return nil, err
	}

	list, err := NewPaginatedList(PaginatedListConfig{
		Name:         name,
		SiteID:       siteID,
		Projection:   projection,
		Syncer:       syncer,
		Executor:     r.executor,
		Logger:       r.logger,
		PageSize:     def.pageSize,
		Threshold:    settings.PrefetchThreshold,
		FetchTimeout: r.fetchTimeout,
	})
	if err != nil {
		return nil, err
	}

	logger.Info("list built", "page_size", def.pageSize, "threshold", settings.PrefetchThreshold)
	return list, nil
}

// State returns the latest state of a list
func (r *ListRegistry) State(ctx context.Context, siteID int64, name domain.ListName) (domain.ListEvent, error) {
	list, err := r.List(ctx, siteID, name)
	if err != nil {
		return domain.ListEvent{}, err
	}
	return list.Snapshot(), nil
}

// SyncFirstPage starts a sync of a list from page 1
func (r *ListRegistry) SyncFirstPage(ctx context.Context, siteID int64, name domain.ListName) (domain.ListEvent, error) {
	list, err := r.List(ctx, siteID, name)
	if err != nil {
		return domain.ListEvent{}, err
	}
	return list.SyncFirstPage(ctx)
}

// EnsureVisible forwards the last visible row index to a list
func (r *ListRegistry) EnsureVisible(ctx context.Context, siteID int64, name domain.ListName, lastVisibleIndex int) (domain.ListEvent, error) {
	list, err := r.List(ctx, siteID, name)
	if err != nil {
		return domain.ListEvent{}, err
	}
	return list.EnsureNextPageIsSynchronized(ctx, lastVisibleIndex)
}

// Invalidate drops the lists of a site. Cached records stay in the store.
func (r *ListRegistry) Invalidate(siteID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, list := range r.lists {
		if key.siteID != siteID {
			continue
		}
		r.drop(key, list)
	}
}

func (r *ListRegistry) drop(key listKey, list *PaginatedList) {
	if cancel, ok := r.cancels[key]; ok {
		cancel()
		delete(r.cancels, key)
	}
	list.Close()
	delete(r.lists, key)
}

// Lists returns every built list ordered by site and name
func (r *ListRegistry) Lists() []*PaginatedList {
	r.mu.Lock()
	out := make([]*PaginatedList, 0, len(r.lists))
	for _, list := range r.lists {
		out = append(out, list)
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].SiteID() != out[j].SiteID() {
			return out[i].SiteID() < out[j].SiteID()
		}
		return out[i].Name() < out[j].Name()
	})
	return out
}

// Close drops every list
func (r *ListRegistry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	for key, list := range r.lists {
		r.drop(key, list)
	}
	r.cancel()
}
