package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/teemow/calsync/internal/instrumentation"
)

const (
	// DefaultHTTPAddr is the default address of the API server.
	DefaultHTTPAddr = ":8080"

	// DefaultHTTPReadTimeout bounds reading request headers.
	DefaultHTTPReadTimeout = 10 * time.Second

	// DefaultHTTPWriteTimeout bounds a whole callable round trip, including
	// the token refresh and the remote calendar call.
	DefaultHTTPWriteTimeout = 60 * time.Second
)

// HTTPServerConfig holds configuration for the API server.
type HTTPServerConfig struct {
	// Addr is the address to bind to (e.g., ":8080").
	Addr string

	// Authenticator validates caller tokens. Required.
	Authenticator *Authenticator

	// TriggerSecret protects the trigger webhook. Empty disables the check.
	TriggerSecret string

	Logger *slog.Logger
}

// HTTPServer exposes the callable operations, the trigger webhook and the
// health probes.
type HTTPServer struct {
	sc         *ServerContext
	health     *HealthChecker
	handler    http.Handler
	httpServer *http.Server
	addr       string
	logger     *slog.Logger
}

// NewHTTPServer creates the API server.
func NewHTTPServer(sc *ServerContext, config HTTPServerConfig) (*HTTPServer, error) {
	if sc == nil {
		return nil, errors.New("server context is required")
	}
	if config.Authenticator == nil {
		return nil, errors.New("authenticator is required")
	}
	if config.Addr == "" {
		config.Addr = DefaultHTTPAddr
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	s := &HTTPServer{
		sc:     sc,
		health: NewHealthChecker(sc),
		addr:   config.Addr,
		logger: config.Logger,
	}

	mux := http.NewServeMux()
	mux.Handle("POST /callable/{name}", config.Authenticator.Middleware(CallableHandler(sc, config.Logger)))
	mux.Handle("POST /triggers", TriggerHandler(sc, config.TriggerSecret))
	s.health.RegisterHealthEndpoints(mux)

	s.handler = requestMetrics(sc.Metrics(), mux)
	return s, nil
}

// Handler returns the root handler.
func (s *HTTPServer) Handler() http.Handler {
	return s.handler
}

// Health returns the health checker, so callers can flip readiness.
func (s *HTTPServer) Health() *HealthChecker {
	return s.health
}

// Start starts the server in a blocking manner.
func (s *HTTPServer) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.handler,
		ReadHeaderTimeout: DefaultHTTPReadTimeout,
		WriteTimeout:      DefaultHTTPWriteTimeout,
		BaseContext: func(_ net.Listener) context.Context {
			return s.sc.Context()
		},
	}

	s.logger.Info("starting HTTP server", "addr", s.addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown marks the server not ready and drains in-flight requests.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	s.health.SetReady(false)
	if s.httpServer == nil {
		return nil
	}
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// Addr returns the configured address.
func (s *HTTPServer) Addr() string {
	return s.addr
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// requestMetrics records every request by method, route pattern and status.
func requestMetrics(m *instrumentation.Metrics, next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		m.RecordHTTPRequest(r.Context(), r.Method, route, rec.status, time.Since(start))
	})
}
