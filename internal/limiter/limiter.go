// Package limiter tracks metric cardinality for one scope/selection rule.
//
// A Limiter partitions submissions by the values of its scope attributes and
// counts the distinct values of its selection attributes within each
// partition. Once a partition holds limit distinct selections, novel
// selections are blocked while already known ones keep passing.
package limiter

import (
	"slices"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
)

// Unbounded disables the cardinality ceiling.
const Unbounded = 0

const shardCount = 16

// scopeEntry is the selection set tracked for one scope key.
type scopeEntry struct {
	seq        uint64
	display    []any
	selections map[string]struct{}
}

type shard struct {
	mu     sync.Mutex
	scopes map[string]*scopeEntry
}

// Limiter enforces a cardinality ceiling on selections per scope. It is safe
// for concurrent use; the check-then-insert decision is atomic per scope key.
type Limiter struct {
	scope     []string
	selection []string
	limit     int

	shards  [shardCount]shard
	seq     atomic.Uint64
	blocked atomic.Int64
}

// New creates a Limiter after validating scope and selection against atoms.
// A limit of Unbounded disables blocking; negative limits are rejected.
func New(scope, selection []string, limit int, atoms AtomSet) (*Limiter, error) {
	if err := validateAtoms(FieldScope, scope, atoms); err != nil {
		return nil, err
	}
	if err := validateAtoms(FieldSelection, selection, atoms); err != nil {
		return nil, err
	}
	if limit < 0 {
		return nil, &ConfigError{Index: -1, Field: FieldLimit, Reason: "must be a positive integer"}
	}
	return newLimiter(scope, selection, limit), nil
}

func newLimiter(scope, selection []string, limit int) *Limiter {
	l := &Limiter{
		scope:     slices.Clone(scope),
		selection: slices.Clone(selection),
		limit:     limit,
	}
	for i := range l.shards {
		l.shards[i].scopes = make(map[string]*scopeEntry)
	}
	return l
}

func validateAtoms(field string, names []string, atoms AtomSet) error {
	if len(names) == 0 {
		return &ConfigError{Index: -1, Field: field, Reason: "is required"}
	}
	for _, n := range names {
		if !atoms.Contains(n) {
			return &ConfigError{Index: -1, Field: field, Atom: n, Reason: "unknown atom"}
		}
	}
	return nil
}

// Check records the submission described by attrs and reports whether it is
// allowed. A selection already known for its scope is always allowed. A novel
// selection is blocked once the scope holds limit selections.
func (l *Limiter) Check(attrs Attributes) bool {
	scopeKey := tupleKey(attrs, l.scope)
	selectionKey := tupleKey(attrs, l.selection)

	sh := l.shardFor(scopeKey)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	entry, exists := sh.scopes[scopeKey]
	if exists {
		if _, seen := entry.selections[selectionKey]; seen {
			return true
		}
		if l.limit != Unbounded && len(entry.selections) >= l.limit {
			l.blocked.Add(1)
			return false
		}
	} else {
		entry = &scopeEntry{
			seq:        l.seq.Add(1),
			display:    tupleDisplay(attrs, l.scope),
			selections: make(map[string]struct{}),
		}
		sh.scopes[scopeKey] = entry
	}

	entry.selections[selectionKey] = struct{}{}
	return true
}

func (l *Limiter) shardFor(scopeKey string) *shard {
	return &l.shards[xxhash.Sum64String(scopeKey)%shardCount]
}

// Definition returns the static configuration of the limiter.
func (l *Limiter) Definition() Definition {
	d := Definition{
		Scope:     slices.Clone(l.scope),
		Selection: slices.Clone(l.selection),
	}
	if l.limit != Unbounded {
		limit := l.limit
		d.Limit = &limit
	}
	return d
}

// Fresh returns a limiter with the same definition and empty state.
func (l *Limiter) Fresh() *Limiter {
	return newLimiter(l.scope, l.selection, l.limit)
}

// Clone returns a deep copy of the limiter, state included.
func (l *Limiter) Clone() *Limiter {
	c := newLimiter(l.scope, l.selection, l.limit)
	for i := range l.shards {
		src := &l.shards[i]
		src.mu.Lock()
		for key, entry := range src.scopes {
			selections := make(map[string]struct{}, len(entry.selections))
			for s := range entry.selections {
				selections[s] = struct{}{}
			}
			c.shards[i].scopes[key] = &scopeEntry{
				seq:        entry.seq,
				display:    entry.display,
				selections: selections,
			}
		}
		src.mu.Unlock()
	}
	c.seq.Store(l.seq.Load())
	c.blocked.Store(l.blocked.Load())
	return c
}
