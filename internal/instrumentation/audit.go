package instrumentation

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/teemow/calsync/internal/logging"
)

// CallableInvocation captures one call of a callable operation for the audit log.
type CallableInvocation struct {
	Callable string
	Surface  string // http or mcp
	UserID   string

	started   time.Time
	Duration  time.Duration
	Success   bool
	Code      string // error code when the call failed
	Error     string

	TraceID string
	SpanID  string
}

// NewCallableInvocation creates a CallableInvocation with timing started.
// Call Complete when the operation finishes.
func NewCallableInvocation(callable, surface string) *CallableInvocation {
	return &CallableInvocation{
		Callable: callable,
		Surface:  surface,
		started:  time.Now(),
	}
}

// WithUser sets the caller's user id.
func (ci *CallableInvocation) WithUser(userID string) *CallableInvocation {
	ci.UserID = userID
	return ci
}

// WithSpanContext extracts trace context from the current span.
func (ci *CallableInvocation) WithSpanContext(ctx context.Context) *CallableInvocation {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		ci.TraceID = span.SpanContext().TraceID().String()
		ci.SpanID = span.SpanContext().SpanID().String()
	}
	return ci
}

// Complete marks the invocation as finished. code is the typed error code
// of a failed call and is ignored when err is nil.
func (ci *CallableInvocation) Complete(err error, code string) *CallableInvocation {
	ci.Duration = time.Since(ci.started)
	ci.Success = err == nil
	if err != nil {
		ci.Error = err.Error()
		ci.Code = code
	}
	return ci
}

// Status returns "success" or "error" based on the Success field.
func (ci *CallableInvocation) Status() string {
	if ci.Success {
		return StatusSuccess
	}
	return StatusError
}

// LogAttrs returns slog attributes for the invocation. The user id is hashed
// unless includePII is set.
func (ci *CallableInvocation) LogAttrs(includePII bool) []slog.Attr {
	attrs := []slog.Attr{
		slog.String("callable", ci.Callable),
		slog.String("surface", ci.Surface),
		slog.Duration("duration", ci.Duration),
		slog.Bool("success", ci.Success),
	}

	if ci.UserID != "" {
		if includePII {
			attrs = append(attrs, logging.UserID(ci.UserID))
		} else {
			attrs = append(attrs, logging.UserHash(ci.UserID))
		}
	}
	if ci.TraceID != "" {
		attrs = append(attrs, slog.String("trace_id", ci.TraceID), slog.String("span_id", ci.SpanID))
	}
	if ci.Code != "" {
		attrs = append(attrs, slog.String("code", ci.Code))
	}
	if ci.Error != "" {
		attrs = append(attrs, slog.String("error", ci.Error))
	}

	return attrs
}

// AuditLogger writes one structured record per callable invocation.
type AuditLogger struct {
	logger     *slog.Logger
	includePII bool
	enabled    bool
}

// NewAuditLogger creates an AuditLogger. Nil logger means slog.Default().
func NewAuditLogger(logger *slog.Logger, config AuditLoggingConfig) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{
		logger:     logger,
		includePII: config.IncludePII,
		enabled:    config.Enabled,
	}
}

// LogCallable logs a completed callable invocation.
func (al *AuditLogger) LogCallable(ci *CallableInvocation) {
	if al == nil || !al.enabled {
		return
	}

	attrs := ci.LogAttrs(al.includePII)
	args := make([]any, len(attrs))
	for i, attr := range attrs {
		args[i] = attr
	}

	if ci.Success {
		al.logger.Info("callable_executed", args...)
	} else {
		al.logger.Warn("callable_failed", args...)
	}
}
