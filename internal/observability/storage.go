package observability

import (
	"context"
	"errors"
	"time"

	"keygate/internal/models"
	"keygate/internal/storage"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentedStorage wraps a storage.Storage implementation with
// OpenTelemetry tracing and metrics instrumentation. Spans identify records
// by key ID only, never by the full hash.
type InstrumentedStorage struct {
	inner    storage.Storage
	tracer   trace.Tracer
	duration metric.Float64Histogram
	errors   metric.Int64Counter
}

// NewInstrumentedStorage creates a new storage wrapper that records trace spans,
// operation latency histograms, and error counters for every storage method call.
func NewInstrumentedStorage(inner storage.Storage) (*InstrumentedStorage, error) {
	tracer := otel.Tracer("keygate/storage")
	meter := otel.Meter("keygate/storage")

	duration, err := meter.Float64Histogram(
		"storage.operation.duration",
		metric.WithDescription("Duration of storage operations in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	errCounter, err := meter.Int64Counter(
		"storage.operation.errors",
		metric.WithDescription("Number of storage operation errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	return &InstrumentedStorage{
		inner:    inner,
		tracer:   tracer,
		duration: duration,
		errors:   errCounter,
	}, nil
}

func (s *InstrumentedStorage) startSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := s.tracer.Start(ctx, "storage."+operation,
		trace.WithAttributes(append([]attribute.KeyValue{
			attribute.String("storage.operation", operation),
		}, attrs...)...),
	)
	return ctx, span
}

func (s *InstrumentedStorage) record(ctx context.Context, span trace.Span, operation string, start time.Time, err error) {
	elapsed := time.Since(start).Seconds()
	attrs := metric.WithAttributes(attribute.String("operation", operation))

	s.duration.Record(ctx, elapsed, attrs)

	// A missing record is an answer, not a failure.
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		s.errors.Add(ctx, 1, attrs)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}

	span.End()
}

func (s *InstrumentedStorage) Keys(ctx context.Context) ([]*models.CredentialRecord, error) {
	ctx, span := s.startSpan(ctx, "Keys")
	start := time.Now()
	result, err := s.inner.Keys(ctx)
	if err == nil {
		span.SetAttributes(attribute.Int("key.count", len(result)))
	}
	s.record(ctx, span, "Keys", start, err)
	return result, err
}

func (s *InstrumentedStorage) GetKey(ctx context.Context, hash string) (*models.CredentialRecord, error) {
	ctx, span := s.startSpan(ctx, "GetKey", attribute.String("key_id", models.KeyID(hash)))
	start := time.Now()
	result, err := s.inner.GetKey(ctx, hash)
	span.SetAttributes(attribute.Bool("key.found", err == nil))
	s.record(ctx, span, "GetKey", start, err)
	return result, err
}

func (s *InstrumentedStorage) SaveKey(ctx context.Context, rec *models.CredentialRecord) error {
	ctx, span := s.startSpan(ctx, "SaveKey", attribute.String("key_id", models.KeyID(rec.KeyHash)))
	start := time.Now()
	err := s.inner.SaveKey(ctx, rec)
	s.record(ctx, span, "SaveKey", start, err)
	return err
}

func (s *InstrumentedStorage) DeleteKey(ctx context.Context, hash string) (bool, error) {
	ctx, span := s.startSpan(ctx, "DeleteKey", attribute.String("key_id", models.KeyID(hash)))
	start := time.Now()
	deleted, err := s.inner.DeleteKey(ctx, hash)
	span.SetAttributes(attribute.Bool("key.deleted", deleted))
	s.record(ctx, span, "DeleteKey", start, err)
	return deleted, err
}

func (s *InstrumentedStorage) Ping(ctx context.Context) error {
	ctx, span := s.startSpan(ctx, "Ping")
	start := time.Now()
	err := s.inner.Ping(ctx)
	s.record(ctx, span, "Ping", start, err)
	return err
}

func (s *InstrumentedStorage) Close() error {
	return s.inner.Close()
}

var _ storage.Storage = (*InstrumentedStorage)(nil)
