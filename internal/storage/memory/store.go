// Package memory provides an in-memory implementation of the storage
// collection contract used for tests and ephemeral runs.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/mamadbah2/pharmacy/internal/pubsub"
	"github.com/mamadbah2/pharmacy/internal/storage"
)

// Collection keeps documents in a map keyed by id.
type Collection[T any] struct {
	mu   sync.RWMutex
	docs map[string]T
	subs *pubsub.Registry[[]T]
}

var _ storage.Collection[struct{}] = (*Collection[struct{}])(nil)

// NewCollection returns an empty collection.
func NewCollection[T any]() *Collection[T] {
	return &Collection[T]{
		docs: make(map[string]T),
		subs: pubsub.NewRegistry[[]T](),
	}
}

// GetAll returns every document ordered by id.
func (c *Collection[T]) GetAll(ctx context.Context) ([]T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshotLocked(), nil
}

// GetPage returns one offset-addressed page ordered by id.
func (c *Collection[T]) GetPage(ctx context.Context, pageToken string, size int) ([]T, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	offset, err := storage.ParsePageToken(pageToken)
	if err != nil {
		return nil, "", err
	}

	c.mu.RLock()
	all := c.snapshotLocked()
	c.mu.RUnlock()

	if offset >= len(all) || size <= 0 {
		return []T{}, "", nil
	}
	end := offset + size
	if end > len(all) {
		end = len(all)
	}
	page := all[offset:end]
	return page, storage.NextPageToken(offset, len(page), size), nil
}

// GetByID returns nil when id is unknown.
func (c *Collection[T]) GetByID(ctx context.Context, id string) (*T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	doc, ok := c.docs[id]
	if !ok {
		return nil, nil
	}
	return &doc, nil
}

// Put stores doc under id and notifies subscribers.
func (c *Collection[T]) Put(ctx context.Context, id string, doc T) (T, error) {
	if err := ctx.Err(); err != nil {
		var zero T
		return zero, err
	}
	c.mu.Lock()
	c.docs[id] = doc
	snapshot := c.snapshotLocked()
	c.mu.Unlock()

	c.subs.Publish(snapshot)
	return doc, nil
}

// Delete removes id if present and notifies subscribers.
func (c *Collection[T]) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	_, existed := c.docs[id]
	delete(c.docs, id)
	snapshot := c.snapshotLocked()
	c.mu.Unlock()

	if existed {
		c.subs.Publish(snapshot)
	}
	return nil
}

// Subscribe registers onChange and replays the current content immediately.
func (c *Collection[T]) Subscribe(ctx context.Context, onChange func([]T)) (storage.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	snapshot := c.snapshotLocked()
	c.mu.RUnlock()

	return c.subs.Register(snapshot, onChange), nil
}

// Len returns the number of stored documents.
func (c *Collection[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.docs)
}

func (c *Collection[T]) snapshotLocked() []T {
	ids := make([]string, 0, len(c.docs))
	for id := range c.docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]T, 0, len(ids))
	for _, id := range ids {
		out = append(out, c.docs[id])
	}
	return out
}
