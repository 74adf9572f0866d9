// Package collection holds the per-collection state every data service owns:
// the pagination cursor and the snapshot feed pushed to subscribers.
package collection

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/mamadbah2/pharmacy/internal/domain/models"
	"github.com/mamadbah2/pharmacy/internal/pubsub"
	"github.com/mamadbah2/pharmacy/internal/storage"
)

// Cursor walks a collection page by page. Calls are serialized by an internal
// mutex, so concurrent ListPage callers observe pages in a single order but
// cannot choose which page they receive.
type Cursor[T any] struct {
	mu    sync.Mutex
	token string
	done  bool
}

// PageAt reads the page addressed by token without touching any cursor. It
// returns the token of the following page, "" after the last one.
func PageAt[T any](ctx context.Context, store storage.Reader[T], token string, size int) ([]T, string, error) {
	if size <= 0 {
		return nil, "", models.NewValidationError("pageSize", "must be positive")
	}
	if _, err := storage.ParsePageToken(token); err != nil {
		return nil, "", models.NewValidationError("pageToken", err.Error())
	}

	docs, next, err := store.GetPage(ctx, token, size)
	if err != nil {
		return nil, "", fmt.Errorf("load page: %w", err)
	}
	return docs, next, nil
}

// Next returns the next page of at most size documents. refresh restarts from
// the first page. Once the end is passed it keeps returning an empty page.
func (c *Cursor[T]) Next(ctx context.Context, store storage.Reader[T], size int, refresh bool) ([]T, error) {
	if size <= 0 {
		return nil, models.NewValidationError("pageSize", "must be positive")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if refresh {
		c.token, c.done = "", false
	}
	if c.done {
		return []T{}, nil
	}

	docs, next, err := PageAt(ctx, store, c.token, size)
	if err != nil {
		return nil, err
	}

	c.token = next
	c.done = next == ""
	return docs, nil
}

// Feed broadcasts full collection snapshots to subscribers. Snapshot loads and
// registrations are serialized, so a subscriber never misses a change that
// committed after its initial snapshot was read, and published snapshots are
// never older than one published before them.
type Feed[T any] struct {
	mu     sync.Mutex
	store  storage.Reader[T]
	subs   *pubsub.Registry[[]T]
	logger *zap.Logger
}

// NewFeed builds a feed reading snapshots from store.
func NewFeed[T any](store storage.Reader[T], logger *zap.Logger) *Feed[T] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Feed[T]{store: store, subs: pubsub.NewRegistry[[]T](), logger: logger}
}

// Subscribe loads the current snapshot, hands it to onChange before returning,
// and keeps delivering new snapshots until the subscription is cancelled.
func (f *Feed[T]) Subscribe(ctx context.Context, onChange func([]T)) (*pubsub.Subscription[[]T], error) {
	f.mu.Lock()
	snapshot, err := f.store.GetAll(ctx)
	if err != nil {
		f.mu.Unlock()
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	sub := f.subs.Add(onChange)
	f.mu.Unlock()

	// onChange runs outside the lock: it may mutate the collection, which
	// notifies this feed again.
	sub.Start(snapshot)
	return sub, nil
}

// Notify reloads the collection and publishes it. It is a no-op without
// subscribers. A failed reload is logged, never returned: the mutation that
// triggered it has already been committed.
func (f *Feed[T]) Notify(ctx context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.subs.Len() == 0 {
		return
	}
	snapshot, err := f.store.GetAll(context.WithoutCancel(ctx))
	if err != nil {
		f.logger.Warn("snapshot reload failed", zap.Error(err))
		return
	}
	f.subs.Publish(snapshot)
}

// Publish pushes an externally obtained snapshot, e.g. from a store change stream.
func (f *Feed[T]) Publish(snapshot []T) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs.Publish(snapshot)
}

// Subscribers returns the number of active subscriptions.
func (f *Feed[T]) Subscribers() int {
	return f.subs.Len()
}

// Close cancels every subscription.
func (f *Feed[T]) Close() {
	f.subs.Close()
}
