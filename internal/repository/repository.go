// Package repository exposes the per-family façades consumed by the
// application layer on top of the data services.
package repository

import (
	"errors"
	"fmt"
	"sync"

	"github.com/mamadbah2/pharmacy/internal/domain/models"
	"github.com/mamadbah2/pharmacy/internal/pubsub"
)

// ErrUnavailable marks failures of the backing store, as opposed to caller errors.
var ErrUnavailable = errors.New("inventory storage unavailable")

// Page is one result of FetchPage or FetchPageAt. For FetchPage HasMore is
// inferred from a full page; FetchPageAt also sets NextToken.
type Page[T any] struct {
	Items     []T
	HasMore   bool
	NextToken string
}

func newPage[T any](items []T, limit int) Page[T] {
	return Page[T]{Items: items, HasMore: len(items) == limit && limit > 0}
}

// translate attaches the operation name and tags store failures with
// ErrUnavailable. Validation and not-found errors keep their identity.
func translate(op string, err error) error {
	if err == nil {
		return nil
	}
	if models.IsTransport(err) {
		return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// listener holds the single active subscription of a repository.
type listener[T any] struct {
	mu  sync.Mutex
	sub *pubsub.Subscription[T]
}

func (l *listener[T]) replace(sub *pubsub.Subscription[T]) {
	l.mu.Lock()
	previous := l.sub
	l.sub = sub
	l.mu.Unlock()

	if previous != nil {
		previous.Cancel()
	}
}

func (l *listener[T]) stop() {
	l.replace(nil)
}

func (l *listener[T]) active() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sub != nil
}
