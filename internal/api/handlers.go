package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"metricgovernor/internal/aggregator"
	"metricgovernor/internal/governor"
	"metricgovernor/internal/limiter"
	"metricgovernor/internal/models"
	"metricgovernor/internal/storage"
	"metricgovernor/internal/version"
)

const (
	defaultReportLimit = 100
	maxReportLimit     = 1000
	maxRequestBody     = 1 << 20
)

// LimiterSource exposes the limiters a governor enforces.
type LimiterSource interface {
	Name() string
	Definitions() []limiter.Definition
}

// Collector collects a status report on demand.
type Collector interface {
	Collect(ctx context.Context) (*models.StatusReport, error)
}

// MetricSubmitter submits metric samples through a governor.
type MetricSubmitter interface {
	SubmitMetric(ctx context.Context, m aggregator.Metric) (governor.Decision, error)
}

// Dependencies wires the handlers to the running governor. Collector and
// Submitter may be nil, which disables their endpoints.
type Dependencies struct {
	Limiters  LimiterSource
	Store     storage.Storage
	Collector Collector
	Submitter MetricSubmitter
	Version   version.Info
}

// Handlers contains HTTP handlers for the governor API
type Handlers struct {
	limiters  LimiterSource
	store     storage.Storage
	collector Collector
	submitter MetricSubmitter
	version   version.Info
}

// NewHandlers creates a new handlers instance
func NewHandlers(deps Dependencies) *Handlers {
	return &Handlers{
		limiters:  deps.Limiters,
		store:     deps.Store,
		collector: deps.Collector,
		submitter: deps.Submitter,
		version:   deps.Version,
	}
}

// HealthCheck handles health check requests
// GET /health
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := models.NewHealthCheckResponse(models.StatusHealthy)
	response.Version = h.version.Version
	response.InstanceID = h.version.InstanceID

	response.AddComponent("api", models.StatusHealthy, "API is operational")

	if h.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.store.Ping(ctx); err != nil {
			response.AddComponent("storage", models.StatusUnhealthy, err.Error())
		} else {
			response.AddComponent("storage", models.StatusHealthy, "Storage is operational")
		}
	}

	if h.limiters != nil {
		response.AddMetric("governor", h.limiters.Name())
		response.AddMetric("limiters", len(h.limiters.Definitions()))
	}

	if s, ok := h.submitter.(interface{ Stats() aggregator.Stats }); ok {
		stats := s.Stats()
		response.AddMetric("accepted_metrics", stats.Accepted)
		response.AddMetric("suppressed_metrics", stats.Suppressed)
	}

	h.writeJSONResponse(w, http.StatusOK, response)
}

// ListLimiters returns the limiter definitions currently enforced
// GET /api/v1/limiters
func (h *Handlers) ListLimiters(w http.ResponseWriter, r *http.Request) {
	if h.limiters == nil {
		h.writeErrorResponse(w, r, http.StatusServiceUnavailable, models.ErrorCodeServiceUnavailable, "No governor configured")
		return
	}

	defs := h.limiters.Definitions()
	if defs == nil {
		defs = []limiter.Definition{}
	}
	h.writeJSONResponse(w, http.StatusOK, models.LimitersResponse{
		Governor: h.limiters.Name(),
		Limiters: defs,
	})
}

// ListReports returns stored status reports, newest first
// GET /api/v1/reports?source=&limit=
func (h *Handlers) ListReports(w http.ResponseWriter, r *http.Request) {
	limit := defaultReportLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > maxReportLimit {
			h.writeErrorResponse(w, r, http.StatusBadRequest, models.ErrorCodeInvalidRequest,
				"limit must be an integer between 1 and "+strconv.Itoa(maxReportLimit))
			return
		}
		limit = parsed
	}

	reports, err := h.store.Reports(r.Context(), r.URL.Query().Get("source"), limit)
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to list reports", "error", err)
		h.writeErrorResponse(w, r, http.StatusInternalServerError, models.ErrorCodeInternalError, "Failed to list reports")
		return
	}

	h.writeJSONResponse(w, http.StatusOK, models.ReportsResponse{
		Reports: reports,
		Count:   len(reports),
	})
}

// LatestReport returns the newest stored report
// GET /api/v1/reports/latest?source=
func (h *Handlers) LatestReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.store.LatestReport(r.Context(), r.URL.Query().Get("source"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			h.writeErrorResponse(w, r, http.StatusNotFound, models.ErrorCodeNotFound, "No report found")
			return
		}
		slog.ErrorContext(r.Context(), "Failed to read latest report", "error", err)
		h.writeErrorResponse(w, r, http.StatusInternalServerError, models.ErrorCodeInternalError, "Failed to read latest report")
		return
	}

	h.writeJSONResponse(w, http.StatusOK, report)
}

// CollectReport collects governor status now. This resets the governor's
// counters exactly like a scheduled collection.
// POST /api/v1/reports/collect
func (h *Handlers) CollectReport(w http.ResponseWriter, r *http.Request) {
	if h.collector == nil {
		h.writeErrorResponse(w, r, http.StatusServiceUnavailable, models.ErrorCodeServiceUnavailable, "Reporting is disabled")
		return
	}

	report, err := h.collector.Collect(r.Context())
	if err != nil {
		h.writeErrorResponse(w, r, http.StatusInternalServerError, models.ErrorCodeInternalError, err.Error())
		return
	}

	h.writeJSONResponse(w, http.StatusCreated, report)
}

// SubmitMetrics passes one metric or an array of metrics through the governor
// POST /api/v1/metrics
func (h *Handlers) SubmitMetrics(w http.ResponseWriter, r *http.Request) {
	if h.submitter == nil {
		h.writeErrorResponse(w, r, http.StatusServiceUnavailable, models.ErrorCodeServiceUnavailable, "Metric submission is disabled")
		return
	}

	metrics, err := decodeMetrics(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err != nil {
		h.writeErrorResponse(w, r, http.StatusBadRequest, models.ErrorCodeBadRequest, err.Error())
		return
	}

	response := models.SubmitMetricsResponse{Results: make([]models.SubmissionResult, 0, len(metrics))}
	for i, m := range metrics {
		result := models.SubmissionResult{Index: i, Name: m.Name}

		decision, err := h.submitter.SubmitMetric(r.Context(), m)
		result.Decision = decision.String()
		switch {
		case err != nil:
			result.Error = err.Error()
		case decision == governor.Allowed:
			response.Allowed++
		default:
			response.Suppressed++
		}
		response.Results = append(response.Results, result)
	}

	h.writeJSONResponse(w, http.StatusOK, response)
}

// decodeMetrics accepts a single JSON object or a non-empty JSON array.
func decodeMetrics(body io.Reader) ([]aggregator.Metric, error) {
	var raw json.RawMessage
	if err := json.NewDecoder(body).Decode(&raw); err != nil {
		return nil, errors.New("invalid JSON body: " + err.Error())
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var metrics []aggregator.Metric
		if err := json.Unmarshal(trimmed, &metrics); err != nil {
			return nil, errors.New("invalid metric array: " + err.Error())
		}
		if len(metrics) == 0 {
			return nil, errors.New("no metrics submitted")
		}
		return metrics, nil
	}

	var m aggregator.Metric
	if err := json.Unmarshal(trimmed, &m); err != nil {
		return nil, errors.New("invalid metric: " + err.Error())
	}
	return []aggregator.Metric{m}, nil
}

// writeJSONResponse writes a JSON response
func (h *Handlers) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers are already written; only log.
		slog.Error("Error encoding JSON response", "error", err)
	}
}

// writeErrorResponse writes an error response tagged with the request ID
func (h *Handlers) writeErrorResponse(w http.ResponseWriter, r *http.Request, statusCode int, errorCode, message string) {
	errorResp := models.NewErrorResponse(message, errorCode)
	errorResp.RequestID = RequestID(r.Context())
	h.writeJSONResponse(w, statusCode, errorResp)
}
