// Package pubsub provides the observer abstraction used by stores and lists
// to publish state changes without depending on any UI framework.
package pubsub

import "sync"

// DefaultBuffer is the channel capacity of a subscription
const DefaultBuffer = 16

// Subject fans out published values to its subscribers.
// Publish never blocks: when a subscriber falls behind, its oldest pending
// value is dropped so the newest one is always delivered.
type Subject[T any] struct {
	mu     sync.Mutex
	subs   map[uint64]*Subscription[T]
	nextID uint64
	buffer int
	closed bool
}

// NewSubject creates a subject whose subscriptions buffer up to buffer values
func NewSubject[T any](buffer int) *Subject[T] {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Subject[T]{
		subs:   make(map[uint64]*Subscription[T]),
		buffer: buffer,
	}
}

// Subscribe registers a new subscriber
func (s *Subject[T]) Subscribe() *Subscription[T] {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub := &Subscription[T]{ch: make(chan T, s.buffer)}
	if s.closed {
		close(sub.ch)
		sub.done = true
		return sub
	}

	id := s.nextID
	s.nextID++
	s.subs[id] = sub
	sub.cancel = func() { s.remove(id) }
	return sub
}

// Publish delivers v to every subscriber
func (s *Subject[T]) Publish(v T) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sub := range s.subs {
		select {
		case sub.ch <- v:
			continue
		default:
		}
		// Full: drop the oldest value and retry once
		select {
		case <-sub.ch:
		default:
		}
		select {
		case sub.ch <- v:
		default:
		}
	}
}

// Len returns the number of active subscribers
func (s *Subject[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// Close closes every subscription channel. Later subscriptions are closed
// immediately.
func (s *Subject[T]) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	for id, sub := range s.subs {
		close(sub.ch)
		sub.done = true
		delete(s.subs, id)
	}
}

func (s *Subject[T]) remove(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subs[id]
	if !ok {
		return
	}
	delete(s.subs, id)
	if !sub.done {
		close(sub.ch)
		sub.done = true
	}
}

// Subscription receives values published on a Subject
type Subscription[T any] struct {
	ch     chan T
	cancel func()
	done   bool // guarded by the owning subject's mutex
}

// C returns the channel values are delivered on. It is closed on Cancel or
// when the subject closes.
func (s *Subscription[T]) C() <-chan T {
	return s.ch
}

// Cancel unsubscribes. Safe to call more than once.
func (s *Subscription[T]) Cancel() {
	if s.cancel != nil {
		s.cancel()
	}
}
