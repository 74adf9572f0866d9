// Package storage defines the backing store adapter contract shared by the
// MongoDB and in-memory implementations.
package storage

import (
	"context"
	"fmt"
	"strconv"
)

// Collection names persisted by the application.
const (
	MedicinesCollection = "medicines"
	AislesCollection    = "aisles"
	HistoryCollection   = "history"
)

// Reader is the read-only subset of Collection.
type Reader[T any] interface {
	// GetAll returns every document ordered by id.
	GetAll(ctx context.Context) ([]T, error)
	// GetPage returns up to size documents starting at pageToken ("" is the first
	// page) and the token of the following page, "" when there is none.
	GetPage(ctx context.Context, pageToken string, size int) ([]T, string, error)
	// GetByID returns nil, nil when the document does not exist.
	GetByID(ctx context.Context, id string) (*T, error)
}

// Collection is the minimal capability set the data services need from the
// remote document store.
type Collection[T any] interface {
	Reader[T]
	// Put creates or replaces the document stored under id.
	Put(ctx context.Context, id string, doc T) (T, error)
	// Delete removes the document. Deleting a missing id is not an error here.
	Delete(ctx context.Context, id string) error
	// Subscribe delivers the full collection on registration and after every
	// change until the returned handle is cancelled.
	Subscribe(ctx context.Context, onChange func([]T)) (Subscription, error)
}

// Subscription stops delivery when cancelled.
type Subscription interface {
	Cancel()
}

// ParsePageToken converts an opaque page token into an offset.
func ParsePageToken(token string) (int, error) {
	if token == "" {
		return 0, nil
	}
	offset, err := strconv.Atoi(token)
	if err != nil || offset < 0 {
		return 0, fmt.Errorf("invalid page token %q", token)
	}
	return offset, nil
}

// NextPageToken returns the token following a page read at offset. A short
// page ends the sequence.
func NextPageToken(offset, got, size int) string {
	if got < size {
		return ""
	}
	return strconv.Itoa(offset + got)
}
