package datanorm

import (
	"errors"
	"fmt"
)

var (
	// ErrCancelled is returned by Ingest when its context is done before
	// parsing finished. The returned error also matches ctx.Err().
	ErrCancelled = errors.New("ingest cancelled")

	// ErrUnsupportedFile is returned by IngestFile for non-.csv paths.
	ErrUnsupportedFile = errors.New("unsupported file type, expected .csv")
)

// FormatError reports a file that cannot be read as comma-delimited
// tabular data. Line is 0 when the problem is not tied to a line.
type FormatError struct {
	Reason string
	Line   int
	Err    error
}

func (e *FormatError) Error() string {
	msg := "csv format error: " + e.Reason
	if e.Line > 0 {
		msg = fmt.Sprintf("%s (line %d)", msg, e.Line)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FormatError) Unwrap() error { return e.Err }

// IsFormatError reports whether err is or wraps a *FormatError.
func IsFormatError(err error) bool {
	var fe *FormatError
	return errors.As(err, &fe)
}

// ContractViolation reports a caller passing a structurally invalid value
// between pipeline steps. It indicates a programming error, not bad data.
type ContractViolation struct {
	Op     string
	Reason string
}

func (e *ContractViolation) Error() string {
	return fmt.Sprintf("%s: contract violation: %s", e.Op, e.Reason)
}

// IsContractViolation reports whether err is or wraps a *ContractViolation.
func IsContractViolation(err error) bool {
	var cv *ContractViolation
	return errors.As(err, &cv)
}
