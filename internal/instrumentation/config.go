package instrumentation

import (
	"fmt"
	"os"
	"slices"
	"strconv"
)

// Config holds the telemetry settings of a calsync process.
type Config struct {
	// ServiceName names the meter, tracer and resource (default: calsync).
	ServiceName string

	// ServiceVersion is the calsync build version.
	ServiceVersion string

	// ServiceInstanceID identifies this process; the hostname when empty.
	ServiceInstanceID string

	// Enabled turns metrics and tracing on. CALSYNC_TELEMETRY=false turns
	// both off and leaves a no-op recorder.
	Enabled bool

	// MetricsExporter is one of prometheus, otlp or stdout.
	MetricsExporter string

	// TracingExporter is one of otlp, stdout or none.
	TracingExporter string

	// OTLPEndpoint is the collector address without scheme, e.g. localhost:4318.
	OTLPEndpoint string

	// OTLPInsecure sends OTLP over plain HTTP. Local collectors only.
	OTLPInsecure bool

	// TraceSamplingRate is the ratio of sampled root spans.
	TraceSamplingRate float64

	// DetailedLabels adds the error code to callable metrics.
	DetailedLabels bool

	// PrimeSeries exports every trigger and refresh series at zero from
	// startup, so rates over synced/failed work before the first change.
	PrimeSeries bool

	// AuditLogging configures the audit log of callable invocations.
	AuditLogging AuditLoggingConfig
}

// AuditLoggingConfig holds configuration for audit logging.
type AuditLoggingConfig struct {
	// Enabled writes one audit entry per callable invocation.
	Enabled bool

	// IncludePII logs raw user ids instead of hashed ones.
	IncludePII bool
}

var (
	metricsExporters = []string{ExporterPrometheus, ExporterOTLP, ExporterStdout}
	tracingExporters = []string{ExporterOTLP, ExporterStdout, ExporterNone}
)

// DefaultConfig reads the telemetry settings from the environment.
// Standard OTEL_* variables are honoured for the collector and sampling.
func DefaultConfig() Config {
	return Config{
		ServiceName:       getEnvOrDefault("OTEL_SERVICE_NAME", "calsync"),
		ServiceVersion:    "unknown",
		ServiceInstanceID: getEnvOrDefault("OTEL_SERVICE_INSTANCE_ID", ""),
		Enabled:           getEnvBoolOrDefault("CALSYNC_TELEMETRY", true),
		MetricsExporter:   getEnvOrDefault("CALSYNC_METRICS_EXPORTER", ExporterPrometheus),
		TracingExporter:   getEnvOrDefault("CALSYNC_TRACING_EXPORTER", ExporterNone),
		OTLPEndpoint:      getEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTLPInsecure:      getEnvBoolOrDefault("OTEL_EXPORTER_OTLP_INSECURE", false),
		TraceSamplingRate: getEnvFloatOrDefault("OTEL_TRACES_SAMPLER_ARG", 0.1),
		DetailedLabels:    getEnvBoolOrDefault("CALSYNC_METRICS_DETAILED_LABELS", false),
		PrimeSeries:       getEnvBoolOrDefault("CALSYNC_METRICS_PRIME", true),
		AuditLogging: AuditLoggingConfig{
			Enabled:    getEnvBoolOrDefault("CALSYNC_AUDIT_LOG", true),
			IncludePII: getEnvBoolOrDefault("CALSYNC_AUDIT_LOG_PII", false),
		},
	}
}

// Validate checks exporter names, the sampling rate and the OTLP endpoint.
func (c *Config) Validate() error {
	if c.TraceSamplingRate < 0 || c.TraceSamplingRate > 1 {
		return fmt.Errorf("trace sampling rate must be between 0.0 and 1.0, got %f", c.TraceSamplingRate)
	}
	if c.MetricsExporter != "" && !slices.Contains(metricsExporters, c.MetricsExporter) {
		return fmt.Errorf("invalid metrics exporter %q, must be one of: prometheus, otlp, stdout", c.MetricsExporter)
	}
	if c.TracingExporter != "" && !slices.Contains(tracingExporters, c.TracingExporter) {
		return fmt.Errorf("invalid tracing exporter %q, must be one of: otlp, stdout, none", c.TracingExporter)
	}
	if c.OTLPEndpoint == "" && (c.TracingExporter == ExporterOTLP || c.MetricsExporter == ExporterOTLP) {
		return fmt.Errorf("OTLP endpoint is required when exporting over OTLP; set OTEL_EXPORTER_OTLP_ENDPOINT")
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBoolOrDefault falls back to defaultValue for unparsable values.
func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	parsed, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	parsed, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// Metric label values.
const (
	StatusSuccess = "success"
	StatusError   = "error"

	OAuthResultSuccess = "success"
	OAuthResultFailure = "failure"

	ServiceCalendar = "calendar"

	ExporterPrometheus = "prometheus"
	ExporterOTLP       = "otlp"
	ExporterStdout     = "stdout"
	ExporterNone       = "none"
)
