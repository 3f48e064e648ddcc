package toolerrors

import "errors"

// Kind enumerates the error kinds named in the error handling design: tool
// and model errors are data, not exceptions. Only FatalConfigError and
// Cancelled are true non-recoverable errors; the rest become data flowing
// back into the conversation or a normal loop termination.
type Kind string

const (
	KindTransport        Kind = "transport_error"
	KindToolExecution    Kind = "tool_execution_error"
	KindArgumentParse    Kind = "argument_parse_error"
	KindModelCallTimeout Kind = "model_call_timeout"
	KindModelCallError   Kind = "model_call_error"
	KindBudgetExhausted  Kind = "budget_exhausted"
	KindCancelled        Kind = "cancelled"
	KindFatalConfig      Kind = "fatal_config_error"
)

// KindError pairs a Kind with a ToolError so callers can dispatch on kind via
// errors.As while still getting the chained message from ToolError.Error.
type KindError struct {
	Kind Kind
	*ToolError
}

// NewKind constructs a KindError of the given kind and message.
func NewKind(kind Kind, message string) *KindError {
	return &KindError{Kind: kind, ToolError: New(message)}
}

// NewKindWithCause constructs a KindError of the given kind wrapping cause.
func NewKindWithCause(kind Kind, message string, cause error) *KindError {
	return &KindError{Kind: kind, ToolError: NewWithCause(message, FromError(cause))}
}

// Is reports whether target is a *KindError with the same Kind, enabling
// errors.Is(err, toolerrors.NewKind(KindTransport, "")) style checks when
// target carries only the Kind sentinel.
func (e *KindError) Is(target error) bool {
	var ke *KindError
	if !errors.As(target, &ke) {
		return false
	}
	return ke.Kind == e.Kind
}

// IsKind reports whether err is (or wraps) a KindError of the given kind.
func IsKind(err error, kind Kind) bool {
	var ke *KindError
	if !errors.As(err, &ke) {
		return false
	}
	return ke.Kind == kind
}
