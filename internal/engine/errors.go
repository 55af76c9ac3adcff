package engine

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by Apply after Close.
var ErrClosed = errors.New("timeline closed")

// DispatchError reports an edit record the engine could not interpret.
// Edits that were understood but rejected return an *ir.EditError instead.
type DispatchError struct {
	// Code identifies the error category.
	Code DispatchErrorCode

	// Op is the record's op.
	Op string

	// Message is a human-readable description.
	Message string
}

// DispatchErrorCode categorizes dispatch errors.
type DispatchErrorCode string

const (
	// ErrCodeUnknownOp indicates an op the engine does not implement.
	ErrCodeUnknownOp DispatchErrorCode = "UNKNOWN_OP"

	// ErrCodeBadArgument indicates a missing or mistyped argument.
	ErrCodeBadArgument DispatchErrorCode = "BAD_ARGUMENT"
)

// Error implements the error interface.
func (e *DispatchError) Error() string {
	return fmt.Sprintf("%s: %s (op=%s)", e.Code, e.Message, e.Op)
}

// IsUnknownOp reports whether err is an unknown-op dispatch error.
func IsUnknownOp(err error) bool {
	var de *DispatchError
	return errors.As(err, &de) && de.Code == ErrCodeUnknownOp
}

// IsBadArgument reports whether err is a bad-argument dispatch error.
func IsBadArgument(err error) bool {
	var de *DispatchError
	return errors.As(err, &de) && de.Code == ErrCodeBadArgument
}

func badArgument(op string, err error) *DispatchError {
	return &DispatchError{Code: ErrCodeBadArgument, Op: op, Message: err.Error()}
}
