package services

import (
	"fmt"
	"sort"

	"github.com/custodia-labs/storesync/internal/core/domain"
)

// PageTracker tracks which pages of a remote collection have been requested
// and whether the last page has been reached.
//
// It is not safe for concurrent use; its owner serialises access.
type PageTracker struct {
	pageSize  int
	threshold int

	highestPageBeingSynced int // 0 before any sync
	reachedLastPage        bool

	// generation identifies the current sync cycle and changes on every
	// first page sync. Completions of older cycles are ignored.
	generation uint64
	inFlight   map[int]struct{}
	failed     map[int]struct{}
}

// NewPageTracker creates a tracker for pages of pageSize items. threshold is
// the number of trailing items of the last known page that trigger a
// prefetch of the next one; a negative threshold selects pageSize/5.
func NewPageTracker(pageSize, threshold int) (*PageTracker, error) {
	if pageSize <= 0 {
		return nil, fmt.Errorf("%w: page size must be positive", domain.ErrInvalidInput)
	}
	if threshold < 0 {
		threshold = pageSize / 5
	}
	if threshold >= pageSize {
		threshold = pageSize - 1
	}
	return &PageTracker{
		pageSize:  pageSize,
		threshold: threshold,
		inFlight:  make(map[int]struct{}),
		failed:    make(map[int]struct{}),
	}, nil
}

// SynchronizeFirstPage restarts tracking from page 1 and returns the request
// for it. Requests of the previous cycle that are still in flight are no
// longer tracked.
func (t *PageTracker) SynchronizeFirstPage(reason domain.SyncReason) domain.PageRequest {
	t.generation++
	t.reachedLastPage = false
	t.highestPageBeingSynced = 1
	t.inFlight = map[int]struct{}{1: {}}
	t.failed = make(map[int]struct{})
	return t.request(1, reason)
}

// EnsureNextPageIsSynchronized returns the request to issue, if any, once
// lastVisibleIndex (0-based) comes within the threshold of the end of the
// last known page. A failed page is re-issued before any later page.
func (t *PageTracker) EnsureNextPageIsSynchronized(lastVisibleIndex int) (domain.PageRequest, bool) {
	if lastVisibleIndex < 0 || t.highestPageBeingSynced == 0 {
		return domain.PageRequest{}, false
	}

	if page, ok := t.lowestFailedPage(); ok {
		if _, busy := t.inFlight[page]; !busy && lastVisibleIndex >= t.triggerIndex(page-1) {
			t.inFlight[page] = struct{}{}
			return t.request(page, domain.SyncReasonRetry), true
		}
	}

	if t.reachedLastPage {
		return domain.PageRequest{}, false
	}

	next := t.highestPageBeingSynced + 1
	if _, busy := t.inFlight[next]; busy {
		return domain.PageRequest{}, false
	}
	if lastVisibleIndex < t.triggerIndex(t.highestPageBeingSynced) {
		return domain.PageRequest{}, false
	}

	t.highestPageBeingSynced = next
	t.inFlight[next] = struct{}{}
	return t.request(next, domain.SyncReasonNextPage), true
}

// Complete records the outcome of a request. It returns false when the
// request belongs to a superseded cycle or was not in flight.
func (t *PageTracker) Complete(req domain.PageRequest, itemCount int, err error) bool {
	if req.Generation != t.generation {
		return false
	}
	if _, ok := t.inFlight[req.PageNumber]; !ok {
		return false
	}
	delete(t.inFlight, req.PageNumber)

	if err != nil {
		t.failed[req.PageNumber] = struct{}{}
		return true
	}

	delete(t.failed, req.PageNumber)
	if itemCount < t.pageSize {
		t.reachedLastPage = true
	}
	return true
}

// triggerIndex is the lowest visible index that prefetches the page after
// page. Page 0 means the failed page is the first one.
func (t *PageTracker) triggerIndex(page int) int {
	return page*t.pageSize - 1 - t.threshold
}

func (t *PageTracker) lowestFailedPage() (int, bool) {
	if len(t.failed) == 0 {
		return 0, false
	}
	pages := make([]int, 0, len(t.failed))
	for p := range t.failed {
		pages = append(pages, p)
	}
	sort.Ints(pages)
	return pages[0], true
}

func (t *PageTracker) request(page int, reason domain.SyncReason) domain.PageRequest {
	return domain.PageRequest{
		PageNumber: page,
		PageSize:   t.pageSize,
		Reason:     reason,
		Generation: t.generation,
	}
}

// PageSize returns the configured page size
func (t *PageTracker) PageSize() int { return t.pageSize }

// Threshold returns the prefetch threshold
func (t *PageTracker) Threshold() int { return t.threshold }

// HighestPageBeingSynced returns the highest page requested in this cycle, 0 if none
func (t *PageTracker) HighestPageBeingSynced() int { return t.highestPageBeingSynced }

// ReachedLastPage reports whether a page came back shorter than the page size
func (t *PageTracker) ReachedLastPage() bool { return t.reachedLastPage }

// Generation returns the current sync cycle
func (t *PageTracker) Generation() uint64 { return t.generation }

// InFlight returns the number of outstanding requests of this cycle
func (t *PageTracker) InFlight() int { return len(t.inFlight) }

// IsInFlight reports whether page has an outstanding request in this cycle
func (t *PageTracker) IsInFlight(page int) bool {
	_, ok := t.inFlight[page]
	return ok
}

// HasFailedPages reports whether a page of this cycle failed and was not retried successfully
func (t *PageTracker) HasFailedPages() bool { return len(t.failed) > 0 }
