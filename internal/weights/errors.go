package weights

import (
	"errors"
	"fmt"
)

// Common errors.
var (
	ErrUnsupportedVersion = errors.New("unsupported weight file version")
	ErrTruncated          = errors.New("weight file ends before all tensors are read")
	ErrTrailingData       = errors.New("weight file has content after the last tensor")
)

// ConfigError reports an invalid network configuration. It is returned
// before any file I/O happens.
type ConfigError struct {
	Field  string // Configuration field (e.g., "filters")
	Value  int
	Reason string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid network configuration: %s=%d: %s", e.Field, e.Value, e.Reason)
}

// FormatError reports a structural problem in a weight file: wrong version,
// wrong line count, wrong token count, or an unparsable value. Tensor is the
// zero-based slot in topology order (-1 when the error precedes any tensor,
// such as a bad version line); Line is the one-based line in the file.
type FormatError struct {
	Line   int
	Tensor int
	Reason string
	Err    error // Underlying error, if any
}

// Error implements the error interface.
func (e *FormatError) Error() string {
	msg := fmt.Sprintf("weight file line %d", e.Line)
	if e.Tensor >= 0 {
		msg += fmt.Sprintf(" (tensor %d)", e.Tensor)
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *FormatError) Unwrap() error {
	return e.Err
}

// invariant panics with a formatted message. It marks topology/codec
// mismatches that callers cannot recover from: a missing permutation rule,
// a non-positive folded variance, mismatched slice lengths.
func invariant(format string, args ...any) {
	panic("weights: invariant violation: " + fmt.Sprintf(format, args...))
}
