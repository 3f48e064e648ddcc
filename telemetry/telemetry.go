// Package telemetry defines the logging, metrics, and tracing capability
// bundle threaded through every component constructor in this module. No
// component reaches for a package-level logger singleton; each is handed a
// Logger/Metrics/Tracer explicitly at construction time.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Logger captures structured logging used throughout the runtime.
// Implementations typically delegate to Clue but the interface is
// intentionally small so tests can provide lightweight stubs.
type Logger interface {
	Debug(ctx context.Context, msg string, keyvals ...any)
	Info(ctx context.Context, msg string, keyvals ...any)
	Warn(ctx context.Context, msg string, keyvals ...any)
	Error(ctx context.Context, msg string, keyvals ...any)
}

// Metrics exposes counter, timer, and gauge helpers for runtime instrumentation.
type Metrics interface {
	IncCounter(name string, value float64, tags ...string)
	RecordTimer(name string, duration time.Duration, tags ...string)
	RecordGauge(name string, value float64, tags ...string)
}

// Tracer abstracts span creation so runtime code stays agnostic of the
// underlying OpenTelemetry provider.
type Tracer interface {
	Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, Span)
	Span(ctx context.Context) Span
}

// Span represents an in-flight tracing span.
type Span interface {
	End(opts ...trace.SpanEndOption)
	AddEvent(name string, attrs ...any)
	SetStatus(code codes.Code, description string)
	RecordError(err error, opts ...trace.EventOption)
}

// Bundle groups the three capabilities passed to every component. A
// zero-value Bundle is not usable; use Noop() for a fully inert bundle.
type Bundle struct {
	Log Logger
	Met Metrics
	Trc Tracer
}

// Noop returns a Bundle whose every capability discards its inputs.
func Noop() Bundle {
	return Bundle{Log: NewNoopLogger(), Met: NewNoopMetrics(), Trc: NewNoopTracer()}
}
