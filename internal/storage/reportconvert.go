package storage

import (
	"encoding/json"
	"fmt"

	"metricgovernor/internal/limiter"
	"metricgovernor/internal/models"
)

// marshalLimiters converts limiter statuses to JSON bytes.
func marshalLimiters(statuses []limiter.Status) ([]byte, error) {
	if statuses == nil {
		statuses = []limiter.Status{}
	}
	return json.Marshal(statuses)
}

// unmarshalLimiters converts JSON bytes to limiter statuses.
func unmarshalLimiters(data []byte) ([]limiter.Status, error) {
	statuses := []limiter.Status{}
	if len(data) == 0 {
		return statuses, nil
	}
	if err := json.Unmarshal(data, &statuses); err != nil {
		return nil, fmt.Errorf("failed to unmarshal limiters: %w", err)
	}
	return statuses, nil
}

func marshalReport(report *models.StatusReport) ([]byte, error) {
	data, err := json.Marshal(report)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal report %s: %w", report.ID, err)
	}
	return data, nil
}

func unmarshalReport(data []byte) (*models.StatusReport, error) {
	var report models.StatusReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to unmarshal report: %w", err)
	}
	if report.Limiters == nil {
		report.Limiters = []limiter.Status{}
	}
	return &report, nil
}

// newestFirst returns copies of the reports in history (oldest first) that
// match source, newest first, capped at limit when limit > 0.
func newestFirst(history []*models.StatusReport, source string, limit int) []*models.StatusReport {
	result := []*models.StatusReport{}
	for i := len(history) - 1; i >= 0; i-- {
		if source != "" && history[i].Source != source {
			continue
		}
		result = append(result, history[i].Clone())
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result
}

// trimRetention drops the oldest reports of source beyond retention.
func trimRetention(history []*models.StatusReport, source string, retention int) []*models.StatusReport {
	if retention <= 0 {
		return history
	}
	kept := 0
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Source != source {
			continue
		}
		kept++
		if kept > retention {
			history = append(history[:i], history[i+1:]...)
		}
	}
	return history
}
