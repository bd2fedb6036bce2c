// Package governor guards a metric submission call site with a set of
// cardinality limiters.
//
// Each Governor owns private copies of the limiter templates it was built
// from, so governors created from the same templates never share counters.
// Reading status returns a snapshot of every limiter and resets the governor
// to fresh copies of the current templates.
package governor

import (
	"context"
	"errors"
	"sync"

	"metricgovernor/internal/limiter"
)

// ErrNoTarget is returned when a submission reaches a governor with no target.
var ErrNoTarget = errors.New("governor has no submission target")

// Decision is the outcome of a governed submission.
type Decision int

const (
	// Allowed means every limiter passed and the target was invoked.
	Allowed Decision = iota
	// Suppressed means a limiter blocked the submission; the target was not invoked.
	Suppressed
)

func (d Decision) String() string {
	if d == Allowed {
		return "allowed"
	}
	return "suppressed"
}

// MarshalText renders the decision as allowed or suppressed.
func (d Decision) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Target is the guarded submission function.
type Target func(ctx context.Context, attrs limiter.Attributes) error

// Observer is notified of every decision.
type Observer interface {
	ObserveDecision(ctx context.Context, source string, decision Decision)
}

// Option configures a Governor.
type Option func(*Governor)

// WithName sets the name used to identify the governor in reports.
func WithName(name string) Option {
	return func(g *Governor) {
		g.name = name
	}
}

// WithObserver registers an observer for submission decisions.
func WithObserver(o Observer) Option {
	return func(g *Governor) {
		g.observer = o
	}
}

// Governor runs every submission through its limiters before invoking the
// target. It is safe for concurrent use.
type Governor struct {
	name      string
	templates Templates
	observer  Observer

	mu       sync.RWMutex
	limiters []*limiter.Limiter
	target   Target
	schema   Schema
}

// New creates a Governor holding private copies of templates. A nil Templates
// yields a permissive governor.
func New(templates Templates, opts ...Option) *Governor {
	g := &Governor{
		name:      "default",
		templates: templates,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.limiters = g.cloneTemplates()
	return g
}

func (g *Governor) cloneTemplates() []*limiter.Limiter {
	if g.templates == nil {
		return nil
	}
	templates := g.templates.Limiters()
	limiters := make([]*limiter.Limiter, len(templates))
	for i, t := range templates {
		limiters[i] = t.Fresh()
	}
	return limiters
}

// Name returns the governor name.
func (g *Governor) Name() string {
	return g.name
}

// SetTarget attaches the guarded submission function and the schema naming
// its positional arguments.
func (g *Governor) SetTarget(target Target, schema Schema) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.target = target
	g.schema = schema
}

// Call names positional arguments with the target schema, overlays named
// arguments and submits the result.
func (g *Governor) Call(ctx context.Context, positional []any, named limiter.Attributes) (Decision, error) {
	g.mu.RLock()
	schema := g.schema
	g.mu.RUnlock()

	attrs, err := schema.Name(positional, named)
	if err != nil {
		return Suppressed, err
	}
	return g.Submit(ctx, attrs)
}

// Submit checks attrs against every limiter and invokes the target only when
// all of them allow it. A blocked submission returns Suppressed with a nil
// error. With no limiters the target is invoked unconditionally.
func (g *Governor) Submit(ctx context.Context, attrs limiter.Attributes) (Decision, error) {
	g.mu.RLock()
	target := g.target
	if target == nil {
		g.mu.RUnlock()
		return Suppressed, ErrNoTarget
	}
	allowed := true
	for _, l := range g.limiters {
		if !l.Check(attrs) {
			allowed = false
		}
	}
	g.mu.RUnlock()

	decision := Allowed
	if !allowed {
		decision = Suppressed
	}
	if g.observer != nil {
		g.observer.ObserveDecision(ctx, g.name, decision)
	}
	if decision == Suppressed {
		return Suppressed, nil
	}
	return Allowed, target(ctx, attrs)
}

// Status returns a snapshot of every limiter, in template order, and resets
// the governor to fresh copies of the current templates. No concurrent
// submission is counted in both the snapshot and the fresh state, nor lost.
func (g *Governor) Status() []limiter.Status {
	fresh := g.cloneTemplates()

	g.mu.Lock()
	statuses := make([]limiter.Status, len(g.limiters))
	for i, l := range g.limiters {
		statuses[i] = l.Status()
	}
	g.limiters = fresh
	g.mu.Unlock()

	return statuses
}

// Definitions returns the definitions of the limiters currently enforced.
func (g *Governor) Definitions() []limiter.Definition {
	g.mu.RLock()
	defer g.mu.RUnlock()
	defs := make([]limiter.Definition, len(g.limiters))
	for i, l := range g.limiters {
		defs[i] = l.Definition()
	}
	return defs
}
