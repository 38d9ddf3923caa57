package engine

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes engine errors.
type ErrorCode string

const (
	// ErrCodeInvalidArgument indicates a missing or nil combinator argument
	// (selector, predicate, source node).
	ErrCodeInvalidArgument ErrorCode = "INVALID_ARGUMENT"

	// ErrCodeInvalidStructure indicates a structure definition that is not a
	// field mapping.
	ErrCodeInvalidStructure ErrorCode = "INVALID_STRUCTURE"

	// ErrCodeUnknownDelta indicates a collection delta whose kind is not
	// added, removed, or cleared.
	ErrCodeUnknownDelta ErrorCode = "UNKNOWN_DELTA"

	// ErrCodeNotADelta indicates a delta source emitted something that is
	// neither a delta nor a list of deltas.
	ErrCodeNotADelta ErrorCode = "NOT_A_DELTA"

	// ErrCodeUnhashableKey indicates a delta key that cannot be used as a
	// collection key.
	ErrCodeUnhashableKey ErrorCode = "UNHASHABLE_KEY"

	// ErrCodeNotSummable indicates a sum over values that are neither all
	// integers nor all strings.
	ErrCodeNotSummable ErrorCode = "NOT_SUMMABLE"
)

// ConstructionError is a graph definition failure. It is reported when the
// graph is built, never deferred to dispatch.
type ConstructionError struct {
	Code    ErrorCode
	Op      string
	Message string
}

// Error implements the error interface.
func (e *ConstructionError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Op, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// InvariantError is an internal invariant violation detected during a
// reduction. It aborts the dispatch; the store keeps its previous state.
type InvariantError struct {
	Code    ErrorCode
	Message string

	// Address is the memo path of the node that failed, e.g. "ROOT/SOURCE".
	Address string
}

// Error implements the error interface.
func (e *InvariantError) Error() string {
	if e.Address != "" {
		return fmt.Sprintf("%s: %s (at %s)", e.Code, e.Message, e.Address)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewConstructionError creates a ConstructionError for op.
func NewConstructionError(code ErrorCode, op, format string, args ...any) *ConstructionError {
	return &ConstructionError{Code: code, Op: op, Message: fmt.Sprintf(format, args...)}
}

// IsConstructionError reports whether err is or wraps a ConstructionError.
func IsConstructionError(err error) bool {
	var ce *ConstructionError
	return errors.As(err, &ce)
}

// IsInvariantError reports whether err is or wraps an InvariantError.
func IsInvariantError(err error) bool {
	var ie *InvariantError
	return errors.As(err, &ie)
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code ErrorCode) bool {
	var ce *ConstructionError
	if errors.As(err, &ce) {
		return ce.Code == code
	}
	var ie *InvariantError
	if errors.As(err, &ie) {
		return ie.Code == code
	}
	return false
}
