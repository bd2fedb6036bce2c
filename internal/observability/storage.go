package observability

import (
	"context"
	"errors"
	"time"

	"metricgovernor/internal/models"
	"metricgovernor/internal/storage"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentedStorage wraps a storage.Storage implementation with
// OpenTelemetry tracing and metrics instrumentation.
type InstrumentedStorage struct {
	inner    storage.Storage
	tracer   trace.Tracer
	duration metric.Float64Histogram
	errors   metric.Int64Counter
}

// NewInstrumentedStorage creates a new storage wrapper that records trace spans,
// operation latency histograms, and error counters for every storage method call.
func NewInstrumentedStorage(inner storage.Storage) (*InstrumentedStorage, error) {
	tracer := otel.Tracer("metricgovernor/storage")
	meter := otel.Meter("metricgovernor/storage")

	duration, err := meter.Float64Histogram(
		"storage.operation.duration",
		metric.WithDescription("Duration of report store operations in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	errCounter, err := meter.Int64Counter(
		"storage.operation.errors",
		metric.WithDescription("Number of report store operation errors"),
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
	return s.tracer.Start(ctx, "storage."+operation,
		trace.WithAttributes(append([]attribute.KeyValue{
			attribute.String("storage.operation", operation),
		}, attrs...)...),
	)
}

func (s *InstrumentedStorage) record(ctx context.Context, span trace.Span, operation string, start time.Time, err error) {
	attrs := metric.WithAttributes(attribute.String("operation", operation))
	s.duration.Record(ctx, time.Since(start).Seconds(), attrs)

	// A missing report is an answer, not a failure.
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		s.errors.Add(ctx, 1, attrs)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}

	span.End()
}

func (s *InstrumentedStorage) SaveReport(ctx context.Context, report *models.StatusReport) error {
	ctx, span := s.startSpan(ctx, "SaveReport",
		attribute.String("report.id", report.ID),
		attribute.String("report.source", report.Source),
		attribute.Int("report.limiters", len(report.Limiters)),
	)
	start := time.Now()
	err := s.inner.SaveReport(ctx, report)
	s.record(ctx, span, "SaveReport", start, err)
	return err
}

func (s *InstrumentedStorage) Reports(ctx context.Context, source string, limit int) ([]*models.StatusReport, error) {
	ctx, span := s.startSpan(ctx, "Reports",
		attribute.String("report.source", source),
		attribute.Int("limit", limit),
	)
	start := time.Now()
	result, err := s.inner.Reports(ctx, source, limit)
	s.record(ctx, span, "Reports", start, err)
	return result, err
}

func (s *InstrumentedStorage) LatestReport(ctx context.Context, source string) (*models.StatusReport, error) {
	ctx, span := s.startSpan(ctx, "LatestReport", attribute.String("report.source", source))
	start := time.Now()
	result, err := s.inner.LatestReport(ctx, source)
	s.record(ctx, span, "LatestReport", start, err)
	return result, err
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
