package server

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/teemow/calsync/internal/calsync"
	"github.com/teemow/calsync/internal/instrumentation"
	"github.com/teemow/calsync/internal/store"
	"github.com/teemow/calsync/internal/triggers"
)

// ServerContext holds the dependencies shared by the HTTP and MCP surfaces.
type ServerContext struct {
	ctx         context.Context
	cancel      context.CancelFunc
	service     *calsync.Service
	runtime     *triggers.Runtime
	store       store.Store
	metrics     *instrumentation.Metrics
	auditLogger *instrumentation.AuditLogger
	defaultUser string
	mu          sync.RWMutex
	shutdown    bool
}

// ContextOption configures a ServerContext.
type ContextOption func(*ServerContext)

// WithRuntime sets the trigger runtime fed by the trigger webhook.
func WithRuntime(rt *triggers.Runtime) ContextOption {
	return func(sc *ServerContext) { sc.runtime = rt }
}

// WithStore sets the store checked by the readiness probe.
func WithStore(s store.Store) ContextOption {
	return func(sc *ServerContext) { sc.store = s }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *instrumentation.Metrics) ContextOption {
	return func(sc *ServerContext) { sc.metrics = m }
}

// WithAuditLogger sets the audit logger for callable invocations.
func WithAuditLogger(al *instrumentation.AuditLogger) ContextOption {
	return func(sc *ServerContext) { sc.auditLogger = al }
}

// WithDefaultUser sets the caller used by surfaces without their own
// authentication, such as MCP over stdio.
func WithDefaultUser(userID string) ContextOption {
	return func(sc *ServerContext) { sc.defaultUser = userID }
}

// NewServerContext creates a new server context
func NewServerContext(ctx context.Context, svc *calsync.Service, opts ...ContextOption) *ServerContext {
	shutdownCtx, cancel := context.WithCancel(ctx)
	sc := &ServerContext{
		ctx:     shutdownCtx,
		cancel:  cancel,
		service: svc,
	}
	for _, opt := range opts {
		opt(sc)
	}
	return sc
}

// Context returns the server context
func (sc *ServerContext) Context() context.Context {
	return sc.ctx
}

// Service returns the calendar operations service.
func (sc *ServerContext) Service() *calsync.Service {
	return sc.service
}

// Runtime returns the trigger runtime, or nil.
func (sc *ServerContext) Runtime() *triggers.Runtime {
	return sc.runtime
}

// Store returns the document store, or nil.
func (sc *ServerContext) Store() store.Store {
	return sc.store
}

// Metrics returns the metrics recorder, or nil.
func (sc *ServerContext) Metrics() *instrumentation.Metrics {
	return sc.metrics
}

// AuditLogger returns the audit logger, or nil.
func (sc *ServerContext) AuditLogger() *instrumentation.AuditLogger {
	return sc.auditLogger
}

// DefaultUser returns the configured default caller.
func (sc *ServerContext) DefaultUser() string {
	return sc.defaultUser
}

// Invoke runs a callable on behalf of callerID and records it as a span, a
// metric and an audit entry.
func (sc *ServerContext) Invoke(ctx context.Context, surface, name, callerID string, data json.RawMessage) (any, error) {
	ctx, span := instrumentation.StartCallableSpan(ctx, name, surface)
	invocation := instrumentation.NewCallableInvocation(name, surface).
		WithUser(callerID).
		WithSpanContext(ctx)

	start := time.Now()
	result, err := sc.service.Call(ctx, name, callerID, data)
	duration := time.Since(start)

	code := string(calsync.CodeOf(err))
	invocation.Complete(err, code)
	instrumentation.EndSpan(span, err)

	sc.metrics.RecordCallableInvocation(ctx, name, surface, invocation.Status(), code, duration)
	sc.auditLogger.LogCallable(invocation)

	return result, err
}

// IsShutdown returns whether the server has been shutdown
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.shutdown
}

// Shutdown shuts down the server context
func (sc *ServerContext) Shutdown() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.shutdown {
		return nil
	}

	sc.shutdown = true
	sc.cancel()
	return nil
}
