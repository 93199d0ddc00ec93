// Package worker provides the single owning execution context of the sync
// layer. Every mutation of page tracking, list status and projection rows is
// marshalled onto an Executor so completions arriving from transport
// goroutines never race with each other.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Executor runs dispatched functions one at a time, in dispatch order, on a
// single goroutine.
type Executor struct {
	logger *slog.Logger
	name   string

	mu      sync.Mutex
	queue   []func()
	running bool
	stopped bool
	wakeCh  chan struct{}
	stopCh  chan struct{}
	doneCh  chan struct{}

	// slowTask is the duration above which a task is logged as slow
	slowTask time.Duration
}

// ExecutorConfig holds configuration for the executor.
type ExecutorConfig struct {
	Name     string
	Logger   *slog.Logger
	SlowTask time.Duration // Warn when a task runs longer (default: 1s)
}

// NewExecutor creates a new serial executor.
func NewExecutor(cfg ExecutorConfig) *Executor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	name := cfg.Name
	if name == "" {
		name = "main"
	}

	slowTask := cfg.SlowTask
	if slowTask <= 0 {
		slowTask = time.Second
	}

	return &Executor{
		logger:   logger.With("executor", name),
		name:     name,
		wakeCh:   make(chan struct{}, 1),
		slowTask: slowTask,
	}
}

// Start begins the executor loop.
// It runs until Stop is called or context is cancelled.
func (e *Executor) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil
	}
	if e.stopped {
		e.mu.Unlock()
		return fmt.Errorf("executor %s: cannot restart after stop", e.name)
	}
	e.running = true
	e.stopCh = make(chan struct{})
	e.doneCh = make(chan struct{})
	e.mu.Unlock()

	e.logger.Info("executor starting")

	go e.processLoop(ctx)

	return nil
}

// Stop gracefully stops the executor. Functions already dispatched are run
// before it returns; later dispatches are rejected.
func (e *Executor) Stop() {
	e.mu.Lock()
	if !e.running || e.stopped {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	close(e.stopCh)
	e.mu.Unlock()

	<-e.doneCh

	e.mu.Lock()
	e.running = false
	e.mu.Unlock()

	e.logger.Info("executor stopped")
}

// Wait blocks until the executor loop exits.
func (e *Executor) Wait() {
	e.mu.Lock()
	doneCh := e.doneCh
	e.mu.Unlock()
	if doneCh == nil {
		return
	}
	<-doneCh
}

// Dispatch queues fn to run on the executor goroutine. It never blocks and
// returns false if the executor has been stopped.
func (e *Executor) Dispatch(fn func()) bool {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return false
	}
	e.queue = append(e.queue, fn)
	e.mu.Unlock()

	select {
	case e.wakeCh <- struct{}{}:
	default:
	}
	return true
}

// Pending returns the number of queued functions.
func (e *Executor) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.queue)
}

// processLoop is the main processing loop.
func (e *Executor) processLoop(ctx context.Context) {
	defer close(e.doneCh)

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("executor context cancelled")
			e.mu.Lock()
			e.stopped = true
			e.mu.Unlock()
			e.drain()
			return
		case <-e.stopCh:
			e.drain()
			return
		case <-e.wakeCh:
			e.drain()
		}
	}
}

// drain runs every queued function, including ones dispatched while draining.
func (e *Executor) drain() {
	for {
		e.mu.Lock()
		batch := e.queue
		e.queue = nil
		e.mu.Unlock()

		if len(batch) == 0 {
			return
		}
		for _, fn := range batch {
			e.run(fn)
		}
	}
}

func (e *Executor) run(fn func()) {
	startTime := time.Now()
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("task panicked", "panic", r)
		}
		if d := time.Since(startTime); d > e.slowTask {
			e.logger.Warn("slow task", "duration", d)
		}
	}()
	fn()
}

// Health is the health status of the executor.
type Health struct {
	Running bool `json:"running"`
	Pending int  `json:"pending"`
}

// Health returns the health status of the executor.
func (e *Executor) Health() Health {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Health{
		Running: e.running && !e.stopped,
		Pending: len(e.queue),
	}
}
