package models

import (
	"slices"
	"time"

	"metricgovernor/internal/limiter"

	"github.com/google/uuid"
)

// StatusReport is one collected governor status: the limiter snapshots for
// the interval that ended at CollectedAt.
type StatusReport struct {
	ID          string           `json:"id"`
	Source      string           `json:"source"`
	InstanceID  string           `json:"instance_id"`
	CollectedAt time.Time        `json:"collected_at"`
	Limiters    []limiter.Status `json:"limiters"`
}

// NewStatusReport creates a report with a fresh ID.
func NewStatusReport(source, instanceID string, statuses []limiter.Status, collectedAt time.Time) *StatusReport {
	if statuses == nil {
		statuses = []limiter.Status{}
	}
	return &StatusReport{
		ID:          uuid.New().String(),
		Source:      source,
		InstanceID:  instanceID,
		CollectedAt: collectedAt.UTC(),
		Limiters:    statuses,
	}
}

// BlockedMetrics sums blocked submissions over all limiters.
func (r *StatusReport) BlockedMetrics() int64 {
	var total int64
	for _, s := range r.Limiters {
		total += s.Trace.BlockedMetrics
	}
	return total
}

// OverflowingScopes sums scopes that reached their limit over all limiters.
func (r *StatusReport) OverflowingScopes() int {
	total := 0
	for _, s := range r.Limiters {
		total += s.Trace.ScopeOverflowCardinal
	}
	return total
}

// Clone returns a copy whose limiter slice can be modified independently.
func (r *StatusReport) Clone() *StatusReport {
	c := *r
	c.Limiters = slices.Clone(r.Limiters)
	return &c
}
