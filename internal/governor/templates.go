package governor

import (
	"sync/atomic"

	"metricgovernor/internal/limiter"
)

// Templates supplies the limiter definitions a Governor clones on
// construction and on every status reset. Returned limiters are templates and
// must not be checked against.
type Templates interface {
	Limiters() []*limiter.Limiter
}

// RuleSet is an immutable, ordered set of limiter templates.
type RuleSet struct {
	limiters []*limiter.Limiter
}

// NewRuleSet stores empty copies of the given limiters.
func NewRuleSet(limiters []*limiter.Limiter) *RuleSet {
	templates := make([]*limiter.Limiter, len(limiters))
	for i, l := range limiters {
		templates[i] = l.Fresh()
	}
	return &RuleSet{limiters: templates}
}

// ParseRuleSet parses rules with parser into a RuleSet.
func ParseRuleSet(parser *limiter.Parser, rules []limiter.Rule) (*RuleSet, error) {
	limiters, err := parser.Parse(rules)
	if err != nil {
		return nil, err
	}
	return &RuleSet{limiters: limiters}, nil
}

// Limiters returns the templates.
func (r *RuleSet) Limiters() []*limiter.Limiter {
	if r == nil {
		return nil
	}
	return r.limiters
}

// Len returns the number of templates.
func (r *RuleSet) Len() int {
	if r == nil {
		return 0
	}
	return len(r.limiters)
}

// Definitions returns the static definitions of the templates, in order.
func (r *RuleSet) Definitions() []limiter.Definition {
	defs := make([]limiter.Definition, 0, r.Len())
	for _, l := range r.Limiters() {
		defs = append(defs, l.Definition())
	}
	return defs
}

// Registry holds the current RuleSet and lets it be replaced at runtime.
// Governors built on a Registry pick up a replacement at their next reset.
type Registry struct {
	current atomic.Pointer[RuleSet]
}

// NewRegistry creates a registry holding initial, or an empty set if nil.
func NewRegistry(initial *RuleSet) *Registry {
	r := &Registry{}
	r.Update(initial)
	return r
}

// Update replaces the current RuleSet.
func (r *Registry) Update(rs *RuleSet) {
	if rs == nil {
		rs = &RuleSet{}
	}
	r.current.Store(rs)
}

// RuleSet returns the current RuleSet.
func (r *Registry) RuleSet() *RuleSet {
	return r.current.Load()
}

// Limiters returns the current templates.
func (r *Registry) Limiters() []*limiter.Limiter {
	return r.current.Load().Limiters()
}
