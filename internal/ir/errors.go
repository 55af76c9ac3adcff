package ir

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes edit failures.
type ErrorCode string

const (
	// CodeInvalidRange covers non-positive durations, negative starts and
	// in-points outside the asset bounds.
	CodeInvalidRange ErrorCode = "INVALID_RANGE"

	// CodePriorityConflict covers ambiguous equal priorities. Reported as a
	// warning for single-element edits and as a rejection for
	// reprioritization transactions.
	CodePriorityConflict ErrorCode = "PRIORITY_CONFLICT"

	// CodeInvalidSplitPoint indicates a split time not strictly inside
	// every member's span.
	CodeInvalidSplitPoint ErrorCode = "INVALID_SPLIT_POINT"

	// CodeNotFound indicates an unknown id or a missing keyframe point.
	CodeNotFound ErrorCode = "NOT_FOUND"
)

// EditError is returned by every rejected edit. A rejected edit leaves the
// timeline untouched.
type EditError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// ID is the element, object, layer or track the edit targeted.
	ID string

	// Details contains additional context.
	Details map[string]string
}

// Sentinels for errors.Is matching. Only the Code is compared.
var (
	ErrInvalidRange      = &EditError{Code: CodeInvalidRange}
	ErrPriorityConflict  = &EditError{Code: CodePriorityConflict}
	ErrInvalidSplitPoint = &EditError{Code: CodeInvalidSplitPoint}
	ErrNotFound          = &EditError{Code: CodeNotFound}
)

// Error implements the error interface.
func (e *EditError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Code)
	}
	if e.ID != "" {
		return fmt.Sprintf("%s: %s (id=%s)", e.Code, msg, e.ID)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

// Is matches any EditError with the same code, so wrapped errors satisfy
// errors.Is(err, ir.ErrNotFound).
func (e *EditError) Is(target error) bool {
	var t *EditError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// NewInvalidRange creates an INVALID_RANGE error.
func NewInvalidRange(id string, format string, args ...any) *EditError {
	return &EditError{Code: CodeInvalidRange, ID: id, Message: fmt.Sprintf(format, args...)}
}

// NewNotFound creates a NOT_FOUND error for the given entity kind.
func NewNotFound(entity, id string) *EditError {
	return &EditError{
		Code:    CodeNotFound,
		ID:      id,
		Message: entity + " not found",
		Details: map[string]string{"entity": entity},
	}
}

// NewPriorityConflict creates a PRIORITY_CONFLICT error.
func NewPriorityConflict(id string, format string, args ...any) *EditError {
	return &EditError{Code: CodePriorityConflict, ID: id, Message: fmt.Sprintf(format, args...)}
}

// NewInvalidSplitPoint creates an INVALID_SPLIT_POINT error.
func NewInvalidSplitPoint(id string, format string, args ...any) *EditError {
	return &EditError{Code: CodeInvalidSplitPoint, ID: id, Message: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the error code, or "" if err is not an EditError.
func CodeOf(err error) ErrorCode {
	var ee *EditError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return ""
}

// IsNotFound returns true if the error is a NOT_FOUND edit error.
func IsNotFound(err error) bool { return CodeOf(err) == CodeNotFound }

// IsInvalidRange returns true if the error is an INVALID_RANGE edit error.
func IsInvalidRange(err error) bool { return CodeOf(err) == CodeInvalidRange }

// IsPriorityConflict returns true if the error is a PRIORITY_CONFLICT edit error.
func IsPriorityConflict(err error) bool { return CodeOf(err) == CodePriorityConflict }

// IsInvalidSplitPoint returns true if the error is an INVALID_SPLIT_POINT edit error.
func IsInvalidSplitPoint(err error) bool { return CodeOf(err) == CodeInvalidSplitPoint }

// Warning is a non-fatal diagnostic attached to an accepted edit.
type Warning struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	IDs     []string  `json:"ids,omitempty"`
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %s %v", w.Code, w.Message, w.IDs)
}
