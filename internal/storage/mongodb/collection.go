package mongodb

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/mamadbah2/pharmacy/internal/domain/models"
	"github.com/mamadbah2/pharmacy/internal/storage"
)

var byID = bson.D{{Key: "_id", Value: 1}}

// Collection implements storage.Collection on top of a MongoDB collection.
// Documents are decoded into T through its bson tags; T must map its id to "_id".
type Collection[T any] struct {
	coll   *mongo.Collection
	name   string
	logger *zap.Logger
}

var _ storage.Collection[struct{}] = (*Collection[struct{}])(nil)

// NewCollection wraps coll.
func NewCollection[T any](coll *mongo.Collection, logger *zap.Logger) *Collection[T] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collection[T]{coll: coll, name: coll.Name(), logger: logger}
}

// OpenCollection returns the adapter for the named collection of c.
func OpenCollection[T any](c *Client, name string) *Collection[T] {
	return NewCollection[T](c.db.Collection(name), c.logger.With(zap.String("collection", name)))
}

func (c *Collection[T]) transportErr(op string, err error) error {
	return &models.TransportError{Collection: c.name, Op: op, Err: err}
}

// GetAll returns every document ordered by id.
func (c *Collection[T]) GetAll(ctx context.Context) ([]T, error) {
	cursor, err := c.coll.Find(ctx, bson.D{}, options.Find().SetSort(byID))
	if err != nil {
		return nil, c.transportErr("find", err)
	}

	docs := []T{}
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, c.transportErr("decode", err)
	}
	return docs, nil
}

// GetPage returns one offset-addressed page ordered by id.
func (c *Collection[T]) GetPage(ctx context.Context, pageToken string, size int) ([]T, string, error) {
	offset, err := storage.ParsePageToken(pageToken)
	if err != nil {
		return nil, "", err
	}
	if size <= 0 {
		return []T{}, "", nil
	}

	opts := options.Find().
		SetSort(byID).
		SetSkip(int64(offset)).
		SetLimit(int64(size))

	cursor, err := c.coll.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, "", c.transportErr("find page", err)
	}

	docs := []T{}
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, "", c.transportErr("decode page", err)
	}
	return docs, storage.NextPageToken(offset, len(docs), size), nil
}

// GetByID returns nil when no document has this id.
func (c *Collection[T]) GetByID(ctx context.Context, id string) (*T, error) {
	var doc T
	err := c.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, c.transportErr("find one", err)
	}
	return &doc, nil
}

// Put upserts doc under id.
func (c *Collection[T]) Put(ctx context.Context, id string, doc T) (T, error) {
	_, err := c.coll.ReplaceOne(ctx, bson.M{"_id": id}, doc, options.Replace().SetUpsert(true))
	if mongo.IsDuplicateKeyError(err) {
		var zero T
		return zero, fmt.Errorf("%s put %s: %w", c.name, id, models.ErrConflict)
	}
	if err != nil {
		var zero T
		return zero, c.transportErr("replace", err)
	}
	return doc, nil
}

// Delete removes the document with this id, if any.
func (c *Collection[T]) Delete(ctx context.Context, id string) error {
	res, err := c.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return c.transportErr("delete", err)
	}
	c.logger.Debug("document deleted", zap.String("id", id), zap.Int64("count", res.DeletedCount))
	return nil
}

// Subscribe opens a change stream and re-reads the whole collection on every
// change event. The current content is delivered before Subscribe returns.
// Change streams need a replica set or sharded cluster.
func (c *Collection[T]) Subscribe(ctx context.Context, onChange func([]T)) (storage.Subscription, error) {
	stream, err := c.coll.Watch(ctx, mongo.Pipeline{})
	if err != nil {
		return nil, c.transportErr("watch", err)
	}

	snapshot, err := c.GetAll(ctx)
	if err != nil {
		_ = stream.Close(ctx)
		return nil, err
	}

	watchCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sub := &watchSubscription{cancel: cancel, done: make(chan struct{})}

	onChange(snapshot)

	go func() {
		defer close(sub.done)
		defer func() { _ = stream.Close(context.Background()) }()

		for stream.Next(watchCtx) {
			docs, err := c.GetAll(watchCtx)
			if err != nil {
				c.logger.Warn("reload after change event failed", zap.Error(err))
				continue
			}
			onChange(docs)
		}

		if err := stream.Err(); err != nil && watchCtx.Err() == nil {
			c.logger.Error("change stream stopped", zap.Error(err))
		}
	}()

	return sub, nil
}

type watchSubscription struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Cancel stops the change stream. It does not wait for the watcher goroutine,
// so it may be called from inside a delivery callback.
func (s *watchSubscription) Cancel() {
	s.cancel()
}
