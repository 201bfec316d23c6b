package docstore

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"friendchat-service/internal/observability"
)

const tracerName = "friendchat-service/docstore"

// Instrumented decorates a Store with metrics and spans.
type Instrumented struct {
	next   Store
	tracer trace.Tracer
}

// Instrument wraps next.
func Instrument(next Store) *Instrumented {
	return &Instrumented{next: next, tracer: otel.Tracer(tracerName)}
}

func (s *Instrumented) observe(ctx context.Context, collection, op string) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "docstore."+op, trace.WithAttributes(
		attribute.String("docstore.collection", collection),
	))
	return ctx, func(err error) {
		result := resultLabel(err)
		observability.ObserveStoreOp(collection, op, result, time.Since(start))
		if err != nil && result != "not_found" {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	case errors.Is(err, ErrConflict):
		return "conflict"
	default:
		return "error"
	}
}

func (s *Instrumented) Get(ctx context.Context, collection, id string) (Document, error) {
	ctx, done := s.observe(ctx, collection, "get")
	doc, err := s.next.Get(ctx, collection, id)
	done(err)
	return doc, err
}

func (s *Instrumented) Create(ctx context.Context, collection string, data any) (string, error) {
	ctx, done := s.observe(ctx, collection, "create")
	id, err := s.next.Create(ctx, collection, data)
	done(err)
	return id, err
}

func (s *Instrumented) Set(ctx context.Context, collection, id string, data any) error {
	ctx, done := s.observe(ctx, collection, "set")
	err := s.next.Set(ctx, collection, id, data)
	done(err)
	return err
}

func (s *Instrumented) Update(ctx context.Context, collection, id string, fn UpdateFunc) error {
	ctx, done := s.observe(ctx, collection, "update")
	err := s.next.Update(ctx, collection, id, fn)
	done(err)
	return err
}

func (s *Instrumented) Delete(ctx context.Context, collection, id string) error {
	ctx, done := s.observe(ctx, collection, "delete")
	err := s.next.Delete(ctx, collection, id)
	done(err)
	return err
}

func (s *Instrumented) Find(ctx context.Context, collection string, q Query) ([]Document, error) {
	ctx, done := s.observe(ctx, collection, "find")
	docs, err := s.next.Find(ctx, collection, q)
	done(err)
	return docs, err
}

func (s *Instrumented) Close() error {
	return s.next.Close()
}

var _ Store = (*Instrumented)(nil)
