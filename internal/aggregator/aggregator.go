// Package aggregator is a minimal metrics aggregator whose submission path is
// guarded by a governor. Accepted samples are buffered until flushed.
package aggregator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"metricgovernor/internal/governor"
	"metricgovernor/internal/limiter"
)

// Schema names the positional arguments of the submission path.
var Schema = governor.NewSchema(
	"name", "value", "type", "tags", "hostname", "device_name", "timestamp", "sample_rate",
)

// ErrInvalidMetric is returned for a sample without a name.
var ErrInvalidMetric = errors.New("metric name is required")

// Metric is one sample as emitted by a check.
type Metric struct {
	Name       string   `json:"name"`
	Value      float64  `json:"value"`
	Type       string   `json:"type,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	Hostname   string   `json:"hostname,omitempty"`
	DeviceName string   `json:"device_name,omitempty"`
	Timestamp  float64  `json:"timestamp,omitempty"`
	SampleRate float64  `json:"sample_rate,omitempty"`
	Check      string   `json:"check,omitempty"`
	Instance   string   `json:"instance,omitempty"`
}

// positional returns the sample in Schema order. Empty optional fields are
// passed as nil so they match rules the same way an absent value does.
func (m Metric) positional() []any {
	var tags any
	if len(m.Tags) > 0 {
		tags = m.Tags
	}
	return []any{
		m.Name,
		m.Value,
		optional(m.Type),
		tags,
		optional(m.Hostname),
		optional(m.DeviceName),
		m.Timestamp,
		m.SampleRate,
	}
}

func (m Metric) named() limiter.Attributes {
	return limiter.Attributes{
		limiter.AtomCheck:    optional(m.Check),
		limiter.AtomInstance: optional(m.Instance),
	}
}

func optional(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// metricFromAttributes rebuilds a sample from governor attributes.
func metricFromAttributes(attrs limiter.Attributes) Metric {
	str := func(key string) string {
		s, _ := attrs[key].(string)
		return s
	}
	num := func(key string) float64 {
		f, _ := attrs[key].(float64)
		return f
	}
	tags, _ := attrs["tags"].([]string)

	return Metric{
		Name:       str("name"),
		Value:      num("value"),
		Type:       str("type"),
		Tags:       tags,
		Hostname:   str("hostname"),
		DeviceName: str("device_name"),
		Timestamp:  num("timestamp"),
		SampleRate: num("sample_rate"),
		Check:      str("check"),
		Instance:   str("instance"),
	}
}

// Stats counts submissions since the aggregator was created.
type Stats struct {
	Accepted   uint64 `json:"accepted"`
	Suppressed uint64 `json:"suppressed"`
	Buffered   int    `json:"buffered"`
}

// Aggregator buffers samples accepted by its governor.
type Aggregator struct {
	gov *governor.Governor

	mu     sync.Mutex
	buffer []Metric

	accepted   atomic.Uint64
	suppressed atomic.Uint64
}

// New creates an aggregator and installs its submission path as the
// governor's target.
func New(gov *governor.Governor) *Aggregator {
	a := &Aggregator{gov: gov}
	gov.SetTarget(a.submit, Schema)
	return a
}

// Governor returns the governor guarding the aggregator.
func (a *Aggregator) Governor() *governor.Governor {
	return a.gov
}

func (a *Aggregator) submit(ctx context.Context, attrs limiter.Attributes) error {
	m := metricFromAttributes(attrs)
	a.mu.Lock()
	a.buffer = append(a.buffer, m)
	a.mu.Unlock()
	return nil
}

// SubmitMetric passes m through the governor. A suppressed sample is dropped
// without error.
func (a *Aggregator) SubmitMetric(ctx context.Context, m Metric) (governor.Decision, error) {
	if m.Name == "" {
		return governor.Suppressed, ErrInvalidMetric
	}

	decision, err := a.gov.Call(ctx, m.positional(), m.named())
	if err != nil {
		return decision, err
	}

	if decision == governor.Allowed {
		a.accepted.Add(1)
	} else {
		a.suppressed.Add(1)
	}
	return decision, nil
}

// Flush returns the buffered samples in submission order and empties the
// buffer.
func (a *Aggregator) Flush() []Metric {
	a.mu.Lock()
	defer a.mu.Unlock()
	flushed := a.buffer
	a.buffer = nil
	return flushed
}

// Stats returns the submission counters.
func (a *Aggregator) Stats() Stats {
	a.mu.Lock()
	buffered := len(a.buffer)
	a.mu.Unlock()
	return Stats{
		Accepted:   a.accepted.Load(),
		Suppressed: a.suppressed.Load(),
		Buffered:   buffered,
	}
}
