// Package instrumentation provides OpenTelemetry instrumentation for calsync.
//
// # Metrics
//
// Server/HTTP Metrics:
//   - http_requests_total: Counter of HTTP requests by method, path, and status
//   - http_request_duration_seconds: Histogram of HTTP request durations
//
// Synchronization Metrics:
//   - calendar_sync_triggers_total: Counter of record change triggers by collection, phase, outcome
//   - calendar_sync_trigger_duration_seconds: Histogram of trigger handling durations
//   - calendar_sync_in_flight: Gauge of triggers currently being handled
//
// Callable Metrics:
//   - callable_invocations_total: Counter of callable invocations by callable, surface, status
//   - callable_duration_seconds: Histogram of callable durations
//
// Google API Metrics:
//   - google_api_operations_total: Counter of Google API operations by service, operation, status
//   - google_api_operation_duration_seconds: Histogram of Google API operation durations
//
// OAuth Metrics:
//   - oauth_auth_total: Counter of authorization code exchanges by result
//   - oauth_token_refresh_total: Counter of token refreshes by result
//
// # Configuration
//
// Instrumentation is configured via environment variables:
//   - CALSYNC_TELEMETRY: enable/disable metrics and tracing (default: true)
//   - CALSYNC_METRICS_EXPORTER: prometheus, otlp, stdout (default: prometheus)
//   - CALSYNC_TRACING_EXPORTER: otlp, stdout, none (default: none)
//   - CALSYNC_METRICS_DETAILED_LABELS: add error codes to callable metrics
//   - CALSYNC_METRICS_PRIME: export trigger and refresh series at zero from startup (default: true)
//   - CALSYNC_AUDIT_LOG, CALSYNC_AUDIT_LOG_PII: audit log of callable invocations
//   - OTEL_EXPORTER_OTLP_ENDPOINT, OTEL_EXPORTER_OTLP_INSECURE: OTLP collector
//   - OTEL_TRACES_SAMPLER_ARG: sampling rate (0.0 to 1.0, default: 0.1)
//   - OTEL_SERVICE_NAME, OTEL_SERVICE_INSTANCE_ID: resource attributes (default: calsync, hostname)
//
// With the Prometheus exporter each Provider scrapes from its own registry,
// served by Provider.MetricsHandler.
//
// # Example Usage
//
//	provider, err := instrumentation.NewProvider(ctx, instrumentation.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	defer provider.Shutdown(ctx)
//
//	provider.Metrics().RecordSyncTrigger(ctx, "tasks", instrumentation.PhaseCreate,
//		instrumentation.OutcomeSynced, time.Since(start))
package instrumentation
