package storage

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mamadbah2/pharmacy/internal/metrics"
)

var tracer = otel.Tracer("pharmacy-storage")

// Instrumented wraps a Collection with one span and one metric sample per call.
type Instrumented[T any] struct {
	next    Collection[T]
	name    string
	metrics *metrics.Metrics
}

var _ Collection[struct{}] = (*Instrumented[struct{}])(nil)

// Instrument decorates c. m may be nil.
func Instrument[T any](c Collection[T], name string, m *metrics.Metrics) *Instrumented[T] {
	return &Instrumented[T]{next: c, name: name, metrics: m}
}

func (i *Instrumented[T]) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span, time.Time) {
	attrs = append(attrs, attribute.String("db.collection", i.name))
	ctx, span := tracer.Start(ctx, "store."+op, trace.WithAttributes(attrs...))
	return ctx, span, time.Now()
}

func (i *Instrumented[T]) finish(span trace.Span, op string, started time.Time, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
	i.metrics.ObserveStore(i.name, op, started, err)
}

// GetAll with tracing
func (i *Instrumented[T]) GetAll(ctx context.Context) ([]T, error) {
	ctx, span, started := i.start(ctx, "GetAll")
	docs, err := i.next.GetAll(ctx)
	if err == nil {
		span.SetAttributes(attribute.Int("result.count", len(docs)))
	}
	i.finish(span, "GetAll", started, err)
	return docs, err
}

// GetPage with tracing
func (i *Instrumented[T]) GetPage(ctx context.Context, pageToken string, size int) ([]T, string, error) {
	ctx, span, started := i.start(ctx, "GetPage",
		attribute.String("page.token", pageToken),
		attribute.Int("page.size", size),
	)
	docs, next, err := i.next.GetPage(ctx, pageToken, size)
	if err == nil {
		span.SetAttributes(attribute.Int("result.count", len(docs)))
	}
	i.finish(span, "GetPage", started, err)
	return docs, next, err
}

// GetByID with tracing
func (i *Instrumented[T]) GetByID(ctx context.Context, id string) (*T, error) {
	ctx, span, started := i.start(ctx, "GetByID", attribute.String("document.id", id))
	doc, err := i.next.GetByID(ctx, id)
	if err == nil {
		span.SetAttributes(attribute.Bool("result.found", doc != nil))
	}
	i.finish(span, "GetByID", started, err)
	return doc, err
}

// Put with tracing
func (i *Instrumented[T]) Put(ctx context.Context, id string, doc T) (T, error) {
	ctx, span, started := i.start(ctx, "Put", attribute.String("document.id", id))
	saved, err := i.next.Put(ctx, id, doc)
	i.finish(span, "Put", started, err)
	return saved, err
}

// Delete with tracing
func (i *Instrumented[T]) Delete(ctx context.Context, id string) error {
	ctx, span, started := i.start(ctx, "Delete", attribute.String("document.id", id))
	err := i.next.Delete(ctx, id)
	i.finish(span, "Delete", started, err)
	return err
}

// Subscribe traces the registration only; deliveries are not spans.
func (i *Instrumented[T]) Subscribe(ctx context.Context, onChange func([]T)) (Subscription, error) {
	ctx, span, started := i.start(ctx, "Subscribe")
	sub, err := i.next.Subscribe(ctx, onChange)
	i.finish(span, "Subscribe", started, err)
	return sub, err
}
