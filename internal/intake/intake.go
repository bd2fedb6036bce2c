// Package intake decodes metric samples from JSON-lines streams such as
// replay files or stdin.
package intake

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"metricgovernor/internal/aggregator"
)

// maxLineSize bounds a single JSON line.
const maxLineSize = 1 << 20

// ErrStop may be returned by the callback to end decoding early without error.
var ErrStop = errors.New("stop decoding")

// LineError reports a line that could not be decoded.
type LineError struct {
	Line int
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *LineError) Unwrap() error {
	return e.Err
}

// Decode reads one JSON metric per line from r and calls fn for each. Blank
// lines are skipped. Decoding stops at the first malformed line, returning a
// *LineError, or at the first error from fn, which is returned as is.
func Decode(r io.Reader, fn func(aggregator.Metric) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	line := 0
	for scanner.Scan() {
		line++
		data := bytes.TrimSpace(scanner.Bytes())
		if len(data) == 0 {
			continue
		}

		var m aggregator.Metric
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&m); err != nil {
			return &LineError{Line: line, Err: err}
		}
		if m.Name == "" {
			return &LineError{Line: line, Err: aggregator.ErrInvalidMetric}
		}

		if err := fn(m); err != nil {
			if errors.Is(err, ErrStop) {
				return nil
			}
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read input after line %d: %w", line, err)
	}
	return nil
}
