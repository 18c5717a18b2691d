package instrumentation

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config selects the telemetry exporters. DefaultConfig reads it from the
// OTEL_* and related environment variables.
type Config struct {
	ServiceName    string
	ServiceVersion string

	// ServiceInstanceID defaults to the hostname, which is the pod name in
	// Kubernetes.
	ServiceInstanceID string
	K8sNamespace      string
	K8sPodName        string

	// Enabled turns metrics and tracing on. INSTRUMENTATION_ENABLED=false
	// leaves a no-op recorder.
	Enabled bool

	// MetricsExporter is one of prometheus, otlp or stdout.
	MetricsExporter string

	// TracingExporter is one of otlp, stdout or none.
	TracingExporter string

	// OTLPEndpoint is host:port without a scheme.
	OTLPEndpoint string

	// OTLPInsecure disables TLS towards the collector. Spans carry user ids,
	// so keep this off outside development.
	OTLPInsecure bool

	// TraceSamplingRate is the parent-based ratio, 0.0 to 1.0.
	TraceSamplingRate float64

	PrometheusEndpoint string

	// DetailedLabels adds the store backend to store metrics and the email
	// domain to sign-in metrics. Off by default to bound cardinality.
	DetailedLabels bool

	AuditLogging AuditLoggingConfig
}

// AuditLoggingConfig controls the audit trail of sign-in, sign-out, token
// refresh and tool calls.
type AuditLoggingConfig struct {
	Enabled bool

	// IncludePII logs full email addresses instead of hashed ones.
	IncludePII bool

	// LogLevel is the slog level audit records are written at.
	LogLevel string
}

// DefaultConfig returns the configuration described by the environment.
func DefaultConfig() Config {
	return Config{
		ServiceName:        envOr("OTEL_SERVICE_NAME", "lifeassist"),
		ServiceVersion:     "unknown",
		ServiceInstanceID:  os.Getenv("OTEL_SERVICE_INSTANCE_ID"),
		K8sNamespace:       envOr("K8S_NAMESPACE", os.Getenv("POD_NAMESPACE")),
		K8sPodName:         envOr("K8S_POD_NAME", os.Getenv("HOSTNAME")),
		Enabled:            envBoolOr("INSTRUMENTATION_ENABLED", true),
		MetricsExporter:    envOr("METRICS_EXPORTER", ExporterPrometheus),
		TracingExporter:    envOr("TRACING_EXPORTER", ExporterNone),
		OTLPEndpoint:       os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		OTLPInsecure:       envBoolOr("OTEL_EXPORTER_OTLP_INSECURE", false),
		TraceSamplingRate:  envFloatOr("OTEL_TRACES_SAMPLER_ARG", 0.1),
		PrometheusEndpoint: envOr("PROMETHEUS_ENDPOINT", "/metrics"),
		DetailedLabels:     envBoolOr("METRICS_DETAILED_LABELS", false),
		AuditLogging: AuditLoggingConfig{
			Enabled:    envBoolOr("AUDIT_LOGGING_ENABLED", true),
			IncludePII: envBoolOr("AUDIT_LOGGING_INCLUDE_PII", false),
			LogLevel:   envOr("AUDIT_LOGGING_LEVEL", "info"),
		},
	}
}

// Validate rejects unknown exporters, an out of range sampling rate and
// OTLP exporters without an endpoint. A disabled config is always valid.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.TraceSamplingRate < 0 || c.TraceSamplingRate > 1 {
		return fmt.Errorf("trace sampling rate must be between 0.0 and 1.0, got %f", c.TraceSamplingRate)
	}

	switch c.MetricsExporter {
	case "", ExporterPrometheus, ExporterStdout:
	case ExporterOTLP:
		if c.OTLPEndpoint == "" {
			return fmt.Errorf("OTLP endpoint is required when using OTLP metrics exporter")
		}
	default:
		return fmt.Errorf("invalid metrics exporter %q, must be one of: prometheus, otlp, stdout", c.MetricsExporter)
	}

	switch c.TracingExporter {
	case "", ExporterNone, ExporterStdout:
	case ExporterOTLP:
		if c.OTLPEndpoint == "" {
			return fmt.Errorf("OTLP endpoint is required when using OTLP tracing exporter")
		}
	default:
		return fmt.Errorf("invalid tracing exporter %q, must be one of: otlp, stdout, none", c.TracingExporter)
	}

	return nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envBoolOr(key string, def bool) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return def
	}
	return v
}

func envFloatOr(key string, def float64) float64 {
	v, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return def
	}
	return v
}

// Constants for metric label values.
const (
	// Status values
	StatusSuccess = "success"
	StatusError   = "error"
	StatusUnknown = "unknown"

	// OAuth result values
	OAuthResultSuccess   = "success"
	OAuthResultFailure   = "failure"
	OAuthResultExpired   = "expired"
	OAuthResultCancelled = "cancelled"
	OAuthResultSilent    = "silent_required"

	// Session restore outcomes
	RestoreOutcomeRestored  = "restored"
	RestoreOutcomeSignedOut = "signed_out"
	RestoreOutcomeNoPointer = "no_pointer"
	RestoreOutcomeDebounced = "debounced"
	RestoreOutcomeFailed    = "failed"

	// Remote service names
	ServiceCalendar  = "calendar"
	ServiceOAuth     = "oauth"
	ServiceUserinfo  = "userinfo"
	ServiceAnthropic = "anthropic"

	// Credential store operations
	StoreOpSave       = "save"
	StoreOpGet        = "get"
	StoreOpGetByEmail = "get_by_email"
	StoreOpPing       = "ping"

	// Exporter types
	ExporterPrometheus = "prometheus"
	ExporterOTLP       = "otlp"
	ExporterStdout     = "stdout"
	ExporterNone       = "none"

	// Metric recording intervals
	DefaultMetricInterval = 10 * time.Second
)
