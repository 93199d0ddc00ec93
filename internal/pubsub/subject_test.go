package pubsub

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain[T any](sub *Subscription[T]) []T {
	var out []T
	for {
		select {
		case v, ok := <-sub.C():
			if !ok {
				return out
			}
			out = append(out, v)
		default:
			return out
		}
	}
}

func TestSubject_FanOut(t *testing.T) {
	s := NewSubject[int](4)
	a := s.Subscribe()
	b := s.Subscribe()
	require.Equal(t, 2, s.Len())

	s.Publish(1)
	s.Publish(2)

	assert.Equal(t, []int{1, 2}, drain(a))
	assert.Equal(t, []int{1, 2}, drain(b))
}

func TestSubject_SlowSubscriberKeepsNewest(t *testing.T) {
	s := NewSubject[int](2)
	sub := s.Subscribe()

	for i := 1; i <= 5; i++ {
		s.Publish(i)
	}

	assert.Equal(t, []int{4, 5}, drain(sub))
}

func TestSubject_DefaultBuffer(t *testing.T) {
	s := NewSubject[int](0)
	sub := s.Subscribe()
	assert.Equal(t, DefaultBuffer, cap(sub.ch))
}

func TestSubscription_Cancel(t *testing.T) {
	s := NewSubject[string](1)
	sub := s.Subscribe()

	sub.Cancel()
	sub.Cancel()

	assert.Equal(t, 0, s.Len())
	_, ok := <-sub.C()
	assert.False(t, ok, "channel closed after cancel")

	s.Publish("ignored")
}

func TestSubject_Close(t *testing.T) {
	s := NewSubject[string](1)
	sub := s.Subscribe()

	s.Close()
	s.Close()

	_, ok := <-sub.C()
	assert.False(t, ok)
	assert.Equal(t, 0, s.Len())
	sub.Cancel()

	late := s.Subscribe()
	_, ok = <-late.C()
	assert.False(t, ok, "subscriptions after close are closed immediately")
	late.Cancel()
}
