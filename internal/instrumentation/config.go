package instrumentation

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Exporter names accepted by MetricsExporter and TracingExporter.
const (
	ExporterPrometheus = "prometheus"
	ExporterOTLP       = "otlp"
	ExporterStdout     = "stdout"
	ExporterNone       = "none"
)

// Tool invocation status labels.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Config controls how the server exports metrics and traces.
type Config struct {
	ServiceName    string
	ServiceVersion string
	// ServiceInstanceID falls back to the hostname when empty.
	ServiceInstanceID string

	// Enabled turns the whole provider into a no-op when false.
	Enabled bool

	// MetricsExporter is one of prometheus, otlp or stdout.
	MetricsExporter string
	// TracingExporter is one of otlp, stdout or none.
	TracingExporter string

	// OTLPEndpoint is host:port without a scheme. TLS is used unless
	// OTLPInsecure is set.
	OTLPEndpoint string
	OTLPInsecure bool

	// TraceSamplingRate is the parent-based ratio in [0, 1].
	TraceSamplingRate float64

	// DetailedLabels adds the domain error code to tool invocation metrics.
	DetailedLabels bool

	// ResourceAttributes are extra key=value pairs attached to every
	// exported signal, e.g. the storage backend or the calendar deployment.
	ResourceAttributes map[string]string

	AuditLogging AuditLoggingConfig
}

// AuditLoggingConfig holds configuration for audit logging.
type AuditLoggingConfig struct {
	Enabled bool

	// IncludeIdentifiers adds calendar IDs, event IDs and hashed idempotency
	// keys to audit entries.
	IncludeIdentifiers bool

	// LogLevel is the slog level used for audit entries (default: info).
	LogLevel string
}

// DefaultConfig reads the instrumentation settings from the environment.
// SHAREDCAL_* variables take precedence over the standard OTEL_* names.
func DefaultConfig() Config {
	return configFromEnv(os.LookupEnv)
}

type lookupFunc func(string) (string, bool)

func configFromEnv(lookup lookupFunc) Config {
	env := envReader{lookup: lookup}

	return Config{
		ServiceName:        env.str("sharedcal", "SHAREDCAL_OTEL_SERVICE_NAME", "OTEL_SERVICE_NAME"),
		ServiceVersion:     "unknown",
		ServiceInstanceID:  env.str("", "SHAREDCAL_OTEL_INSTANCE_ID", "OTEL_SERVICE_INSTANCE_ID", "POD_NAME"),
		Enabled:            env.boolean(true, "SHAREDCAL_INSTRUMENTATION_ENABLED", "INSTRUMENTATION_ENABLED"),
		MetricsExporter:    env.str(ExporterPrometheus, "SHAREDCAL_METRICS_EXPORTER", "METRICS_EXPORTER"),
		TracingExporter:    env.str(ExporterNone, "SHAREDCAL_TRACING_EXPORTER", "TRACING_EXPORTER"),
		OTLPEndpoint:       env.str("", "SHAREDCAL_OTLP_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT"),
		OTLPInsecure:       env.boolean(false, "SHAREDCAL_OTLP_INSECURE", "OTEL_EXPORTER_OTLP_INSECURE"),
		TraceSamplingRate:  env.float(0.1, "SHAREDCAL_TRACE_SAMPLING_RATE", "OTEL_TRACES_SAMPLER_ARG"),
		DetailedLabels:     env.boolean(false, "SHAREDCAL_METRICS_DETAILED_LABELS"),
		ResourceAttributes: parseResourceAttributes(env.str("", "OTEL_RESOURCE_ATTRIBUTES")),
		AuditLogging: AuditLoggingConfig{
			Enabled:            env.boolean(true, "SHAREDCAL_AUDIT_ENABLED"),
			IncludeIdentifiers: env.boolean(false, "SHAREDCAL_AUDIT_INCLUDE_IDENTIFIERS"),
			LogLevel:           env.str("info", "SHAREDCAL_AUDIT_LEVEL"),
		},
	}
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}

	var errs []error
	if c.TraceSamplingRate < 0 || c.TraceSamplingRate > 1 {
		errs = append(errs, fmt.Errorf("trace sampling rate must be between 0 and 1, got %g", c.TraceSamplingRate))
	}
	switch c.MetricsExporter {
	case ExporterPrometheus, ExporterStdout:
	case ExporterOTLP:
		if c.OTLPEndpoint == "" {
			errs = append(errs, errors.New("an OTLP endpoint is required for the otlp metrics exporter"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown metrics exporter %q", c.MetricsExporter))
	}
	switch c.TracingExporter {
	case ExporterNone, ExporterStdout:
	case ExporterOTLP:
		if c.OTLPEndpoint == "" {
			errs = append(errs, errors.New("an OTLP endpoint is required for the otlp tracing exporter"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown tracing exporter %q", c.TracingExporter))
	}
	return errors.Join(errs...)
}

// parseResourceAttributes parses the OTEL_RESOURCE_ATTRIBUTES format,
// "k1=v1,k2=v2". Malformed pairs are skipped.
func parseResourceAttributes(raw string) map[string]string {
	attrs := map[string]string{}
	for _, pair := range strings.Split(raw, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || key == "" {
			continue
		}
		attrs[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return attrs
}

// envReader returns the first non-empty value among a list of variable
// names, falling back to a default when none parses.
type envReader struct {
	lookup lookupFunc
}

func (e envReader) first(keys []string) (string, bool) {
	for _, key := range keys {
		if value, ok := e.lookup(key); ok && value != "" {
			return value, true
		}
	}
	return "", false
}

func (e envReader) str(def string, keys ...string) string {
	if value, ok := e.first(keys); ok {
		return value
	}
	return def
}

func (e envReader) boolean(def bool, keys ...string) bool {
	if value, ok := e.first(keys); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return def
}

func (e envReader) float(def float64, keys ...string) float64 {
	if value, ok := e.first(keys); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return def
}
