package inventory

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/freshtrack/freshtrack/internal/observe"
)

// instrumented decorates a Store with spans and metrics.
type instrumented struct {
	next    Store
	backend string
	metrics *observe.Metrics
}

// Instrument wraps s so that every call is traced and failures are counted.
// backend labels the metrics ("memory", "postgres", "redis").
func Instrument(s Store, backend string, m *observe.Metrics) Store {
	return &instrumented{next: s, backend: backend, metrics: m}
}

func (i *instrumented) span(ctx context.Context, op, owner string) (context.Context, trace.Span) {
	return observe.StartSpan(ctx, "inventory."+op, trace.WithAttributes(
		attribute.String("inventory.backend", i.backend),
		attribute.String("inventory.owner", owner),
	))
}

func (i *instrumented) done(ctx context.Context, span trace.Span, op string, err error) {
	observe.EndSpan(span, err)
	if err != nil && !errors.Is(err, ErrNotFound) {
		i.metrics.RecordStoreError(ctx, i.backend, op)
	}
}

func (i *instrumented) Add(ctx context.Context, item *Item) (err error) {
	ctx, span := i.span(ctx, "add", item.OwnerID)
	defer func() { i.done(ctx, span, "add", err) }()
	if err = i.next.Add(ctx, item); err != nil {
		return err
	}
	i.metrics.RecordItemAdded(ctx, i.backend, item.Source)
	return nil
}

func (i *instrumented) Get(ctx context.Context, owner, id string) (it Item, err error) {
	ctx, span := i.span(ctx, "get", owner)
	defer func() { i.done(ctx, span, "get", err) }()
	return i.next.Get(ctx, owner, id)
}

func (i *instrumented) List(ctx context.Context, owner string, opts ListOptions) (items []Item, err error) {
	ctx, span := i.span(ctx, "list", owner)
	defer func() { i.done(ctx, span, "list", err) }()
	items, err = i.next.List(ctx, owner, opts)
	span.SetAttributes(attribute.Int("inventory.count", len(items)))
	return items, err
}

func (i *instrumented) Remove(ctx context.Context, owner, id string) (err error) {
	ctx, span := i.span(ctx, "remove", owner)
	defer func() { i.done(ctx, span, "remove", err) }()
	return i.next.Remove(ctx, owner, id)
}

func (i *instrumented) Ping(ctx context.Context) error {
	return i.next.Ping(ctx)
}
