package limiter

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidConfig is matched by every ConfigError.
var ErrInvalidConfig = errors.New("invalid limiter configuration")

// Fields named by ConfigError.
const (
	FieldScope     = "scope"
	FieldSelection = "selection"
	FieldLimit     = "limit"
)

// ConfigError describes an invalid limiter definition.
type ConfigError struct {
	Index  int    // position in the limiter list, -1 outside a list
	Field  string // scope, selection or limit
	Atom   string // offending atom, if any
	Reason string
}

func (e *ConfigError) Error() string {
	var b strings.Builder
	if e.Index >= 0 {
		fmt.Fprintf(&b, "limiters[%d]", e.Index)
	} else {
		b.WriteString("limiter")
	}
	if e.Field != "" {
		b.WriteByte('.')
		b.WriteString(e.Field)
	}
	b.WriteString(": ")
	b.WriteString(e.Reason)
	if e.Atom != "" || e.Reason == "unknown atom" {
		fmt.Fprintf(&b, " %q", e.Atom)
	}
	return b.String()
}

// Unwrap makes errors.Is(err, ErrInvalidConfig) hold.
func (e *ConfigError) Unwrap() error {
	return ErrInvalidConfig
}
