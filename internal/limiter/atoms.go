package limiter

import "sort"

// Recognized attribute names.
const (
	AtomName     = "name"
	AtomInstance = "instance"
	AtomCheck    = "check"
	AtomTags     = "tags"
)

// AtomSet is the fixed set of attribute names a limiter may reference in its
// scope or selection.
type AtomSet map[string]struct{}

// NewAtomSet builds an AtomSet from the given names. Blank names are skipped.
func NewAtomSet(atoms ...string) AtomSet {
	set := make(AtomSet, len(atoms))
	for _, a := range atoms {
		if a == "" {
			continue
		}
		set[a] = struct{}{}
	}
	return set
}

// DefaultAtoms returns the atom set used by the agent's metric submission path.
func DefaultAtoms() AtomSet {
	return NewAtomSet(AtomName, AtomInstance, AtomCheck, AtomTags)
}

// Contains reports whether atom is recognized.
func (s AtomSet) Contains(atom string) bool {
	_, ok := s[atom]
	return ok
}

// Names returns the recognized atoms in lexical order.
func (s AtomSet) Names() []string {
	names := make([]string, 0, len(s))
	for a := range s {
		names = append(names, a)
	}
	sort.Strings(names)
	return names
}
