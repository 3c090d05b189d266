package triggers

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/teemow/calsync/internal/calsync"
	"github.com/teemow/calsync/internal/instrumentation"
	"github.com/teemow/calsync/internal/logging"
	"github.com/teemow/calsync/internal/records"
	"github.com/teemow/calsync/internal/store"
)

const (
	// DefaultConcurrency bounds the number of changes handled at once.
	DefaultConcurrency = 8
	// DefaultTimeout bounds a single trigger invocation.
	DefaultTimeout = 30 * time.Second
)

// Handler handles one record change. *calsync.Dispatcher implements it.
type Handler interface {
	Handle(ctx context.Context, change store.Change) (calsync.Outcome, error)
}

// Runtime runs record change triggers in the background. It implements
// store.Sink: Publish never waits for the handler, so stores may publish
// while a handler is writing back to them.
//
// Failures are logged and counted but never retried.
type Runtime struct {
	handler Handler
	sem     *semaphore.Weighted
	timeout time.Duration
	logger  *slog.Logger
	metrics *instrumentation.Metrics

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithConcurrency sets the number of changes handled concurrently.
func WithConcurrency(n int) Option {
	return func(r *Runtime) {
		if n > 0 {
			r.sem = semaphore.NewWeighted(int64(n))
		}
	}
}

// WithTimeout sets the deadline of a single invocation.
func WithTimeout(d time.Duration) Option {
	return func(r *Runtime) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithLogger sets the runtime logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runtime) { r.logger = l }
}

// WithMetrics records trigger outcomes and the in-flight count.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(r *Runtime) { r.metrics = m }
}

// New creates a Runtime dispatching to handler.
func New(handler Handler, opts ...Option) *Runtime {
	r := &Runtime{
		handler: handler,
		sem:     semaphore.NewWeighted(DefaultConcurrency),
		timeout: DefaultTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Publish schedules change for handling and returns immediately. Changes to
// collections that are not synchronized are ignored, as is everything
// published after Shutdown started.
func (r *Runtime) Publish(ctx context.Context, change store.Change) {
	if !synchronized(change.Collection) {
		return
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		logging.WithRecord(r.logger, change.UserID, change.Collection, change.RecordID).
			Warn("Dropping record change after shutdown", logging.Phase(change.Phase))
		return
	}

	r.wg.Add(1)
	go r.run(context.WithoutCancel(ctx), change)
}

// Invoke handles change synchronously and returns the outcome.
func (r *Runtime) Invoke(ctx context.Context, change store.Change) (calsync.Outcome, error) {
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return calsync.OutcomeFailed, err
	}
	defer r.sem.Release(1)
	return r.invoke(ctx, change)
}

// Shutdown stops accepting changes and waits for scheduled ones to finish.
func (r *Runtime) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("trigger runtime shutdown: %w", ctx.Err())
	}
}

func (r *Runtime) run(ctx context.Context, change store.Change) {
	defer r.wg.Done()

	if err := r.sem.Acquire(ctx, 1); err != nil {
		return
	}
	defer r.sem.Release(1)

	_, _ = r.invoke(ctx, change)
}

func (r *Runtime) invoke(ctx context.Context, change store.Change) (outcome calsync.Outcome, err error) {
	logger := logging.WithRecord(r.logger, change.UserID, change.Collection, change.RecordID)

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	ctx, span := instrumentation.StartTriggerSpan(ctx, change.Collection, change.Phase, change.RecordID)
	r.metrics.IncrementInFlight(ctx)
	start := time.Now()

	defer func() {
		if p := recover(); p != nil {
			outcome, err = calsync.OutcomeFailed, fmt.Errorf("trigger handler panicked: %v", p)
		}

		duration := time.Since(start)
		instrumentation.EndSpan(span, err)
		r.metrics.DecrementInFlight(ctx)
		r.metrics.RecordSyncTrigger(ctx, change.Collection, change.Phase, string(outcome), duration)

		if err != nil {
			logger.Error("Calendar sync failed",
				logging.Phase(change.Phase),
				logging.Err(err),
				slog.Duration(logging.KeyDuration, duration))
			return
		}
		logger.Debug("Calendar sync trigger handled",
			logging.Phase(change.Phase),
			slog.String("outcome", string(outcome)),
			slog.Duration(logging.KeyDuration, duration))
	}()

	return r.handler.Handle(ctx, change)
}

func synchronized(collection string) bool {
	for _, c := range records.Collections {
		if c == collection {
			return true
		}
	}
	return false
}
