// Package toolerrors provides a structured error chain used across this
// module for tool and transport failures that must still flow back into a
// conversation as data rather than abort the run. It supports errors.Is and
// errors.As via Unwrap so callers can inspect specific causes while still
// presenting a single human-readable message at the top.
package toolerrors

import "fmt"

// ToolError is a structured, chainable error. Message is the human-readable
// description at this level; Cause, if non-nil, is the underlying ToolError.
type ToolError struct {
	Message string
	Cause   *ToolError
}

// New constructs a ToolError with no cause.
func New(message string) *ToolError {
	return &ToolError{Message: message}
}

// NewWithCause constructs a ToolError wrapping an existing ToolError.
func NewWithCause(message string, cause *ToolError) *ToolError {
	return &ToolError{Message: message, Cause: cause}
}

// FromError wraps a plain error as a ToolError leaf.
func FromError(err error) *ToolError {
	if err == nil {
		return nil
	}
	if te, ok := err.(*ToolError); ok {
		return te
	}
	return &ToolError{Message: err.Error()}
}

// Errorf constructs a ToolError using fmt.Sprintf semantics.
func Errorf(format string, args ...any) *ToolError {
	return &ToolError{Message: fmt.Sprintf(format, args...)}
}

// Error implements the error interface, walking the cause chain.
func (e *ToolError) Error() string {
	if e == nil {
		return ""
	}
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Message, e.Cause.Error())
}

// Unwrap returns the underlying cause, enabling errors.Is/errors.As.
func (e *ToolError) Unwrap() error {
	if e == nil || e.Cause == nil {
		return nil
	}
	return e.Cause
}
