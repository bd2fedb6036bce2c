package governor

import (
	"errors"
	"fmt"

	"metricgovernor/internal/limiter"
)

// ErrTooManyArguments is returned when a call carries more positional
// arguments than its schema names.
var ErrTooManyArguments = errors.New("more positional arguments than schema attributes")

// Schema names the positional arguments of a submission call site, in order.
type Schema []string

// NewSchema builds a Schema from attribute names.
func NewSchema(names ...string) Schema {
	return Schema(names)
}

// Name merges positional and named arguments into one attribute mapping.
// Positional argument i is named schema[i]; named arguments take precedence
// on conflict.
func (s Schema) Name(positional []any, named limiter.Attributes) (limiter.Attributes, error) {
	if len(positional) > len(s) {
		return nil, fmt.Errorf("%w: got %d, schema has %d", ErrTooManyArguments, len(positional), len(s))
	}

	attrs := make(limiter.Attributes, len(positional)+len(named))
	for i, v := range positional {
		attrs[s[i]] = v
	}
	for k, v := range named {
		attrs[k] = v
	}
	return attrs, nil
}
