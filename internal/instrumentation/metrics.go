package instrumentation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric attribute keys
const (
	attrMethod     = "method"
	attrPath       = "path"
	attrStatus     = "status"
	attrOperation  = "operation"
	attrService    = "service"
	attrResult     = "result"
	attrCollection = "collection"
	attrPhase      = "phase"
	attrOutcome    = "outcome"
	attrCallable   = "callable"
	attrSurface    = "surface"
	attrCode       = "code"
)

// Metrics provides methods for recording observability metrics.
type Metrics struct {
	// HTTP metrics
	httpRequestsTotal   metric.Int64Counter
	httpRequestDuration metric.Float64Histogram

	// Google API metrics
	googleAPIOperationsTotal   metric.Int64Counter
	googleAPIOperationDuration metric.Float64Histogram

	// OAuth metrics
	oauthAuthTotal         metric.Int64Counter
	oauthTokenRefreshTotal metric.Int64Counter

	// Trigger metrics
	syncTriggersTotal   metric.Int64Counter
	syncTriggerDuration metric.Float64Histogram
	syncInFlight        metric.Int64UpDownCounter

	// Callable metrics
	callableInvocationsTotal metric.Int64Counter
	callableDuration         metric.Float64Histogram

	// detailedLabels adds the error code label to callable metrics
	detailedLabels bool
}

// NewMetrics creates a new Metrics instance with all metrics initialized.
func NewMetrics(meter metric.Meter, detailedLabels bool) (*Metrics, error) {
	m := &Metrics{
		detailedLabels: detailedLabels,
	}

	var err error

	m.httpRequestsTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_requests_total counter: %w", err)
	}

	m.httpRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.01, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_request_duration_seconds histogram: %w", err)
	}

	m.googleAPIOperationsTotal, err = meter.Int64Counter(
		"google_api_operations_total",
		metric.WithDescription("Total number of Google API operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create google_api_operations_total counter: %w", err)
	}

	m.googleAPIOperationDuration, err = meter.Float64Histogram(
		"google_api_operation_duration_seconds",
		metric.WithDescription("Google API operation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create google_api_operation_duration_seconds histogram: %w", err)
	}

	m.oauthAuthTotal, err = meter.Int64Counter(
		"oauth_auth_total",
		metric.WithDescription("Total number of calendar authorization code exchanges"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create oauth_auth_total counter: %w", err)
	}

	m.oauthTokenRefreshTotal, err = meter.Int64Counter(
		"oauth_token_refresh_total",
		metric.WithDescription("Total number of OAuth token refresh attempts"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create oauth_token_refresh_total counter: %w", err)
	}

	m.syncTriggersTotal, err = meter.Int64Counter(
		"calendar_sync_triggers_total",
		metric.WithDescription("Total number of record change triggers handled, by collection, phase and outcome"),
		metric.WithUnit("{trigger}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar_sync_triggers_total counter: %w", err)
	}

	m.syncTriggerDuration, err = meter.Float64Histogram(
		"calendar_sync_trigger_duration_seconds",
		metric.WithDescription("Record change trigger handling duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar_sync_trigger_duration_seconds histogram: %w", err)
	}

	m.syncInFlight, err = meter.Int64UpDownCounter(
		"calendar_sync_in_flight",
		metric.WithDescription("Number of triggers currently being handled"),
		metric.WithUnit("{trigger}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar_sync_in_flight gauge: %w", err)
	}

	m.callableInvocationsTotal, err = meter.Int64Counter(
		"callable_invocations_total",
		metric.WithDescription("Total number of callable operation invocations"),
		metric.WithUnit("{invocation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create callable_invocations_total counter: %w", err)
	}

	m.callableDuration, err = meter.Float64Histogram(
		"callable_duration_seconds",
		metric.WithDescription("Callable operation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create callable_duration_seconds histogram: %w", err)
	}

	return m, nil
}

// RecordHTTPRequest records an HTTP request with method, path, status code, and duration.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration) {
	if m == nil || m.httpRequestsTotal == nil || m.httpRequestDuration == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrMethod, method),
		attribute.String(attrPath, path),
		attribute.String(attrStatus, strconv.Itoa(statusCode)),
	}

	m.httpRequestsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.httpRequestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordGoogleAPIOperation records a Google API operation with service, operation,
// status, and duration.
//
// Parameters:
//   - service: Google service name (calendar, oauth)
//   - operation: Operation type (create, update, delete, exchange, refresh)
//   - status: Result status ("success" or "error")
//   - duration: Time taken for the operation
func (m *Metrics) RecordGoogleAPIOperation(ctx context.Context, service, operation, status string, duration time.Duration) {
	if m == nil || m.googleAPIOperationsTotal == nil || m.googleAPIOperationDuration == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrService, service),
		attribute.String(attrOperation, operation),
		attribute.String(attrStatus, status),
	}

	m.googleAPIOperationsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.googleAPIOperationDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordOAuthAuth records an authorization code exchange with result.
// Result should be one of: "success", "failure"
func (m *Metrics) RecordOAuthAuth(ctx context.Context, result string) {
	if m == nil || m.oauthAuthTotal == nil {
		return // Instrumentation not initialized
	}

	m.oauthAuthTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrResult, result)))
}

// RecordOAuthTokenRefresh records an OAuth token refresh attempt with result.
// Result should be one of: "success", "failure", "expired"
func (m *Metrics) RecordOAuthTokenRefresh(ctx context.Context, result string) {
	if m == nil || m.oauthTokenRefreshTotal == nil {
		return // Instrumentation not initialized
	}

	m.oauthTokenRefreshTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrResult, result)))
}

// RecordSyncTrigger records one handled record change trigger.
//
// Parameters:
//   - collection: record collection (bounded via CollectionLabel)
//   - phase: create, update or delete
//   - outcome: synced, skipped or failed
//   - duration: Time taken to handle the trigger
func (m *Metrics) RecordSyncTrigger(ctx context.Context, collection, phase, outcome string, duration time.Duration) {
	if m == nil || m.syncTriggersTotal == nil || m.syncTriggerDuration == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrCollection, CollectionLabel(collection)),
		attribute.String(attrPhase, phase),
		attribute.String(attrOutcome, outcome),
	}

	m.syncTriggersTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.syncTriggerDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// IncrementInFlight increments the in-flight trigger gauge.
func (m *Metrics) IncrementInFlight(ctx context.Context) {
	if m == nil || m.syncInFlight == nil {
		return // Instrumentation not initialized
	}

	m.syncInFlight.Add(ctx, 1)
}

// DecrementInFlight decrements the in-flight trigger gauge.
func (m *Metrics) DecrementInFlight(ctx context.Context) {
	if m == nil || m.syncInFlight == nil {
		return // Instrumentation not initialized
	}

	m.syncInFlight.Add(ctx, -1)
}

// RecordCallableInvocation records a callable operation invocation.
// The error code label is only attached when detailed labels are enabled.
//
// Parameters:
//   - callable: operation name (e.g. "createCalendarEvent")
//   - surface: "http" or "mcp"
//   - status: "success" or "error"
//   - code: error code for failed calls, empty otherwise
//   - duration: Time taken for the call
func (m *Metrics) RecordCallableInvocation(ctx context.Context, callable, surface, status, code string, duration time.Duration) {
	if m == nil || m.callableInvocationsTotal == nil || m.callableDuration == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrCallable, callable),
		attribute.String(attrSurface, surface),
		attribute.String(attrStatus, status),
	}
	if m.detailedLabels && code != "" {
		attrs = append(attrs, attribute.String(attrCode, code))
	}

	m.callableInvocationsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.callableDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// Prime exports every trigger series and both token refresh results at zero,
// so dashboards see a failed rate of 0 instead of no data before the first
// failure.
func (m *Metrics) Prime(ctx context.Context) {
	if m == nil || m.syncTriggersTotal == nil || m.oauthTokenRefreshTotal == nil {
		return
	}

	for collection := range knownCollections {
		for _, phase := range []string{PhaseCreate, PhaseUpdate, PhaseDelete} {
			for _, outcome := range []string{OutcomeSynced, OutcomeSkipped, OutcomeFailed} {
				m.syncTriggersTotal.Add(ctx, 0, metric.WithAttributes(
					attribute.String(attrCollection, collection),
					attribute.String(attrPhase, phase),
					attribute.String(attrOutcome, outcome),
				))
			}
		}
	}
	for _, result := range []string{OAuthResultSuccess, OAuthResultFailure} {
		m.oauthTokenRefreshTotal.Add(ctx, 0, metric.WithAttributes(attribute.String(attrResult, result)))
	}
}
