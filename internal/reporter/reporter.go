// Package reporter periodically collects governor status, persists it as a
// report and records it as telemetry. Collecting resets the governor's
// counters, so each report covers the interval since the previous one.
package reporter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"metricgovernor/internal/limiter"
	"metricgovernor/internal/models"
	"metricgovernor/internal/storage"

	"github.com/robfig/cron/v3"
)

// DefaultSchedule collects once a minute.
const DefaultSchedule = "@every 1m"

// ErrAlreadyStarted is returned by Start on a running reporter.
var ErrAlreadyStarted = errors.New("reporter already started")

// StatusSource is anything whose status can be read and reset, such as a
// *governor.Governor.
type StatusSource interface {
	Name() string
	Status() []limiter.Status
}

// Recorder receives every collected report, such as
// *observability.GovernorMetrics.
type Recorder interface {
	RecordReport(ctx context.Context, report *models.StatusReport)
}

// Option configures a Reporter.
type Option func(*Reporter)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reporter) { r.logger = logger }
}

// WithRecorder sets the telemetry recorder.
func WithRecorder(rec Recorder) Option {
	return func(r *Reporter) { r.recorder = rec }
}

// WithInstanceID tags reports with the id of this process.
func WithInstanceID(id string) Option {
	return func(r *Reporter) { r.instanceID = id }
}

// WithSchedule sets the cron spec used by Start. Standard five-field specs
// and descriptors such as "@every 30s" are accepted.
func WithSchedule(spec string) Option {
	return func(r *Reporter) { r.schedule = spec }
}

// WithClock overrides the report timestamp source.
func WithClock(now func() time.Time) Option {
	return func(r *Reporter) { r.now = now }
}

// Reporter collects status from one source into a store.
type Reporter struct {
	source     StatusSource
	store      storage.Storage
	recorder   Recorder
	logger     *slog.Logger
	instanceID string
	schedule   string
	now        func() time.Time

	// collectMu serializes Collect so reports are stored in collection order.
	collectMu sync.Mutex

	mu   sync.Mutex
	cron *cron.Cron
}

// New creates a reporter for source. A nil store keeps reports out of
// storage; they are still logged and recorded.
func New(source StatusSource, store storage.Storage, opts ...Option) *Reporter {
	r := &Reporter{
		source:   source,
		store:    store,
		logger:   slog.Default(),
		schedule: DefaultSchedule,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ValidateSchedule reports whether spec is a schedule Start accepts.
func ValidateSchedule(spec string) error {
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("invalid reporting schedule %q: %w", spec, err)
	}
	return nil
}

// Collect reads and resets the source status and stores the resulting report.
// The report is returned even when saving fails.
func (r *Reporter) Collect(ctx context.Context) (*models.StatusReport, error) {
	r.collectMu.Lock()
	defer r.collectMu.Unlock()

	report := models.NewStatusReport(r.source.Name(), r.instanceID, r.source.Status(), r.now())

	if r.recorder != nil {
		r.recorder.RecordReport(ctx, report)
	}

	r.log(ctx, report)

	if r.store == nil {
		return report, nil
	}
	if err := r.store.SaveReport(ctx, report); err != nil {
		r.logger.ErrorContext(ctx, "Failed to save status report",
			"report_id", report.ID,
			"source", report.Source,
			"error", err,
		)
		return report, fmt.Errorf("failed to save status report: %w", err)
	}
	return report, nil
}

func (r *Reporter) log(ctx context.Context, report *models.StatusReport) {
	blocked := report.BlockedMetrics()
	attrs := []any{
		"report_id", report.ID,
		"source", report.Source,
		"limiters", len(report.Limiters),
		"blocked_metrics", blocked,
		"overflowing_scopes", report.OverflowingScopes(),
	}
	if blocked == 0 {
		r.logger.DebugContext(ctx, "Governor status collected", attrs...)
		return
	}

	r.logger.WarnContext(ctx, "Governor suppressed metric submissions", attrs...)
	for i, status := range report.Limiters {
		if status.Trace.BlockedMetrics == 0 {
			continue
		}
		r.logger.WarnContext(ctx, "Limiter blocked submissions",
			"source", report.Source,
			"limiter", i,
			"scope", status.Definition.Scope,
			"selection", status.Definition.Selection,
			"blocked_metrics", status.Trace.BlockedMetrics,
			"scope_overflow_cardinal", status.Trace.ScopeOverflowCardinal,
			"max_selection_scope", status.Trace.MaxSelectionScope,
			"max_selection_cardinal", status.Trace.MaxSelectionCardinal,
		)
	}
}

// Start runs Collect on the configured schedule until Stop is called. ctx is
// passed to every collection.
func (r *Reporter) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cron != nil {
		return ErrAlreadyStarted
	}

	cl := cronLogger{logger: r.logger}
	c := cron.New(cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)), cron.WithLogger(cl))
	_, err := c.AddFunc(r.schedule, func() {
		// Save failures are already logged by Collect.
		_, _ = r.Collect(ctx)
	})
	if err != nil {
		return fmt.Errorf("invalid reporting schedule %q: %w", r.schedule, err)
	}

	c.Start()
	r.cron = c
	r.logger.InfoContext(ctx, "Status reporter started", "source", r.source.Name(), "schedule", r.schedule)
	return nil
}

// Stop halts the schedule and waits for a running collection to finish.
func (r *Reporter) Stop() {
	r.mu.Lock()
	c := r.cron
	r.cron = nil
	r.mu.Unlock()

	if c == nil {
		return
	}
	<-c.Stop().Done()
	r.logger.Info("Status reporter stopped", "source", r.source.Name())
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
