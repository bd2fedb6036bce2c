package storage

import "errors"

// ErrNotFound is returned when no report matches a lookup.
var ErrNotFound = errors.New("report not found")
