// Package pubsub provides the per-service subscription registry used to push
// collection snapshots to listeners.
package pubsub

import (
	"sync"
)

// Registry broadcasts values of type T to a set of subscriptions. Each
// subscription is served by its own goroutine, so a slow callback never blocks
// Publish; when a subscriber falls behind only the latest value is kept.
type Registry[T any] struct {
	mu   sync.Mutex
	next uint64
	subs map[uint64]*Subscription[T]
}

// NewRegistry returns an empty registry.
func NewRegistry[T any]() *Registry[T] {
	return &Registry[T]{subs: make(map[uint64]*Subscription[T])}
}

// Register delivers initial to fn synchronously, then starts asynchronous
// delivery of every later Publish until the subscription is cancelled.
func (r *Registry[T]) Register(initial T, fn func(T)) *Subscription[T] {
	sub := r.Add(fn)
	sub.Start(initial)
	return sub
}

// Add registers fn without delivering anything. Values published before
// Start are kept as pending; only the latest survives.
func (r *Registry[T]) Add(fn func(T)) *Subscription[T] {
	sub := &Subscription[T]{
		fn:       fn,
		registry: r,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}

	r.mu.Lock()
	r.next++
	sub.id = r.next
	r.subs[sub.id] = sub
	r.mu.Unlock()

	return sub
}

// Publish hands v to every active subscription. Delivery order across
// subscribers is unspecified.
func (r *Registry[T]) Publish(v T) {
	r.mu.Lock()
	subs := make([]*Subscription[T], 0, len(r.subs))
	for _, sub := range r.subs {
		subs = append(subs, sub)
	}
	r.mu.Unlock()

	for _, sub := range subs {
		sub.offer(v)
	}
}

// Len returns the number of active subscriptions.
func (r *Registry[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

// Close cancels every active subscription.
func (r *Registry[T]) Close() {
	r.mu.Lock()
	subs := make([]*Subscription[T], 0, len(r.subs))
	for _, sub := range r.subs {
		subs = append(subs, sub)
	}
	r.mu.Unlock()

	for _, sub := range subs {
		sub.Cancel()
	}
}

func (r *Registry[T]) remove(id uint64) {
	r.mu.Lock()
	delete(r.subs, id)
	r.mu.Unlock()
}

// Subscription is the handle returned by Register.
type Subscription[T any] struct {
	id       uint64
	registry *Registry[T]
	fn       func(T)

	mu         sync.Mutex
	pending    T
	hasPending bool

	wake chan struct{}
	done chan struct{}
	once sync.Once
}

// Cancel stops further delivery. It is safe to call more than once.
func (s *Subscription[T]) Cancel() {
	s.once.Do(func() {
		close(s.done)
		if s.registry != nil {
			s.registry.remove(s.id)
		}
	})
}

// Start hands initial to the callback synchronously, then delivers pending
// and later values from a dedicated goroutine. Call it once per Add.
func (s *Subscription[T]) Start(initial T) {
	s.fn(initial)
	go s.loop()
}

// Done is closed once the subscription is cancelled.
func (s *Subscription[T]) Done() <-chan struct{} {
	return s.done
}

func (s *Subscription[T]) offer(v T) {
	s.mu.Lock()
	s.pending = v
	s.hasPending = true
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Subscription[T]) loop() {
	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}

		s.mu.Lock()
		v, ok := s.pending, s.hasPending
		var zero T
		s.pending, s.hasPending = zero, false
		s.mu.Unlock()

		if !ok {
			continue
		}

		select {
		case <-s.done:
			return
		default:
		}
		s.fn(v)
	}
}
