package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/custodia-labs/storesync/internal/core/domain"
)

// manualExecutor queues dispatched functions until the test runs them, which
// makes the test goroutine the owning execution context.
type manualExecutor struct {
	mu      sync.Mutex
	stopped bool
	ch      chan func()
}

func newManualExecutor() *manualExecutor {
	return &manualExecutor{ch: make(chan func(), 256)}
}

func (e *manualExecutor) Dispatch(fn func()) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return false
	}
	e.ch <- fn
	return true
}

func (e *manualExecutor) stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopped = true
}

// runNext waits for one dispatched function and runs it.
func (e *manualExecutor) runNext(t *testing.T) {
	t.Helper()
	select {
	case fn := <-e.ch:
		fn()
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a dispatched function")
	}
}

// runPending runs whatever is queued without waiting.
func (e *manualExecutor) runPending() int {
	n := 0
	for {
		select {
		case fn := <-e.ch:
			fn()
			n++
		default:
			return n
		}
	}
}

// goExecutor runs every dispatched function on a single goroutine.
type goExecutor struct {
	ch   chan func()
	done chan struct{}
}

func newGoExecutor(t *testing.T) *goExecutor {
	e := &goExecutor{ch: make(chan func(), 256), done: make(chan struct{})}
	go func() {
		for {
			select {
			case fn := <-e.ch:
				fn()
			case <-e.done:
				return
			}
		}
	}()
	t.Cleanup(func() { close(e.done) })
	return e
}

func (e *goExecutor) Dispatch(fn func()) bool {
	e.ch <- fn
	return true
}

// call runs fn on the executor and waits for it.
func (e *goExecutor) call(fn func()) {
	done := make(chan struct{})
	e.Dispatch(func() {
		fn()
		close(done)
	})
	<-done
}

type syncCall struct {
	req    domain.PageRequest
	result domain.PageResult
	err    error
}

// recordingListener records coordinator notifications
type recordingListener struct {
	mu        sync.Mutex
	started   []domain.PageRequest
	completed []syncCall
}

func (l *recordingListener) PageSyncStarted(req domain.PageRequest) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.started = append(l.started, req)
}

func (l *recordingListener) PageSyncCompleted(req domain.PageRequest, result domain.PageResult, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.completed = append(l.completed, syncCall{req: req, result: result, err: err})
}

// scriptedSyncer returns per-page results and records requests
type scriptedSyncer struct {
	mu       sync.Mutex
	counts   map[int]int
	errs     map[int]error
	requests []domain.PageRequest
	gate     chan struct{}
}

func newScriptedSyncer() *scriptedSyncer {
	return &scriptedSyncer{counts: make(map[int]int), errs: make(map[int]error)}
}

func (s *scriptedSyncer) SyncPage(ctx context.Context, req domain.PageRequest) (domain.PageResult, error) {
	if s.gate != nil {
		<-s.gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if err, ok := s.errs[req.PageNumber]; ok {
		delete(s.errs, req.PageNumber)
		return domain.PageResult{}, err
	}
	return domain.PageResult{ItemCount: s.counts[req.PageNumber]}, nil
}

func (s *scriptedSyncer) requestCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func product(siteID, id int64, name string, menuOrder float64) *domain.Record {
	return &domain.Record{
		Kind:   domain.EntityKindProduct,
		SiteID: siteID,
		ID:     id,
		Fields: map[string]any{
			"name":         name,
			"status":       domain.ProductStatusPublish,
			"product_type": domain.ProductTypeSimple,
			"menu_order":   menuOrder,
		},
	}
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out: %s", msg)
}
