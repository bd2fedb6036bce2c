package observability

import (
	"context"
	"strings"

	"metricgovernor/internal/governor"
	"metricgovernor/internal/models"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// GovernorMetrics records submission decisions and collected limiter status
// as OpenTelemetry instruments. It implements governor.Observer.
type GovernorMetrics struct {
	submissions       metric.Int64Counter
	blocked           metric.Int64Counter
	scopeCardinal     metric.Int64Histogram
	overflowingScopes metric.Int64Gauge
	reports           metric.Int64Counter
}

var _ governor.Observer = (*GovernorMetrics)(nil)

// NewGovernorMetrics creates the governor instruments on mp, or on the global
// meter provider when mp is nil.
func NewGovernorMetrics(mp metric.MeterProvider) (*GovernorMetrics, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter("metricgovernor/governor")

	submissions, err := meter.Int64Counter(
		"governor.submissions",
		metric.WithDescription("Metric submissions by governor decision"),
		metric.WithUnit("{submission}"),
	)
	if err != nil {
		return nil, err
	}

	blocked, err := meter.Int64Counter(
		"governor.blocked",
		metric.WithDescription("Submissions blocked per limiter, counted at status collection"),
		metric.WithUnit("{submission}"),
	)
	if err != nil {
		return nil, err
	}

	scopeCardinal, err := meter.Int64Histogram(
		"governor.limiter.scope_cardinality",
		metric.WithDescription("Distinct scopes seen by a limiter during one reporting interval"),
		metric.WithUnit("{scope}"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 50, 100, 500, 1000, 5000, 10000),
	)
	if err != nil {
		return nil, err
	}

	overflowing, err := meter.Int64Gauge(
		"governor.limiter.overflowing_scopes",
		metric.WithDescription("Scopes that reached their selection limit in the last reporting interval"),
		metric.WithUnit("{scope}"),
	)
	if err != nil {
		return nil, err
	}

	reports, err := meter.Int64Counter(
		"governor.reports",
		metric.WithDescription("Status reports collected"),
		metric.WithUnit("{report}"),
	)
	if err != nil {
		return nil, err
	}

	return &GovernorMetrics{
		submissions:       submissions,
		blocked:           blocked,
		scopeCardinal:     scopeCardinal,
		overflowingScopes: overflowing,
		reports:           reports,
	}, nil
}

// ObserveDecision counts one submission.
func (m *GovernorMetrics) ObserveDecision(ctx context.Context, source string, decision governor.Decision) {
	m.submissions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("governor", source),
		attribute.String("decision", decision.String()),
	))
}

// RecordReport records the per-limiter traces of a collected report.
func (m *GovernorMetrics) RecordReport(ctx context.Context, report *models.StatusReport) {
	m.reports.Add(ctx, 1, metric.WithAttributes(attribute.String("governor", report.Source)))

	for _, status := range report.Limiters {
		attrs := metric.WithAttributes(
			attribute.String("governor", report.Source),
			attribute.String("scope", strings.Join(status.Definition.Scope, ",")),
			attribute.String("selection", strings.Join(status.Definition.Selection, ",")),
		)
		if status.Trace.BlockedMetrics > 0 {
			m.blocked.Add(ctx, status.Trace.BlockedMetrics, attrs)
		}
		m.scopeCardinal.Record(ctx, int64(status.Trace.ScopeCardinal), attrs)
		m.overflowingScopes.Record(ctx, int64(status.Trace.ScopeOverflowCardinal), attrs)
	}
}
