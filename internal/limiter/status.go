package limiter

import "sort"

// Definition is the static configuration of a limiter. A nil Limit means
// unbounded.
type Definition struct {
	Scope     []string `json:"scope" yaml:"scope"`
	Selection []string `json:"selection" yaml:"selection"`
	Limit     *int     `json:"limit" yaml:"limit"`
}

// Trace summarizes limiter state since the last reset.
type Trace struct {
	ScopeCardinal         int   `json:"scope_cardinal"`
	BlockedMetrics        int64 `json:"blocked_metrics"`
	ScopeOverflowCardinal int   `json:"scope_overflow_cardinal"`
	MaxSelectionScope     []any `json:"max_selection_scope"`
	MaxSelectionCardinal  int   `json:"max_selection_cardinal"`
}

// Status is a point-in-time snapshot of a limiter.
type Status struct {
	Definition Definition `json:"definition"`
	Trace      Trace      `json:"trace"`
}

type scopeSnapshot struct {
	seq     uint64
	display []any
	size    int
}

// Status returns a snapshot of the limiter. It does not reset state.
// When several scopes share the largest selection count, the one inserted
// first is reported.
func (l *Limiter) Status() Status {
	var scopes []scopeSnapshot
	for i := range l.shards {
		sh := &l.shards[i]
		sh.mu.Lock()
		for _, entry := range sh.scopes {
			scopes = append(scopes, scopeSnapshot{
				seq:     entry.seq,
				display: entry.display,
				size:    len(entry.selections),
			})
		}
		sh.mu.Unlock()
	}
	sort.Slice(scopes, func(i, j int) bool { return scopes[i].seq < scopes[j].seq })

	trace := Trace{
		ScopeCardinal:  len(scopes),
		BlockedMetrics: l.blocked.Load(),
	}
	for _, s := range scopes {
		if l.limit != Unbounded && s.size >= l.limit {
			trace.ScopeOverflowCardinal++
		}
		if s.size > trace.MaxSelectionCardinal {
			trace.MaxSelectionCardinal = s.size
			trace.MaxSelectionScope = s.display
		}
	}

	return Status{
		Definition: l.Definition(),
		Trace:      trace,
	}
}
