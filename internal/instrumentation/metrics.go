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
	attrMethod    = "method"
	attrPath      = "path"
	attrStatus    = "status"
	attrOperation = "operation"
	attrResult    = "result"
	attrTool      = "tool"
	attrBackend   = "backend"
	attrDocument  = "document"
	attrAcquired  = "acquired"
	attrErrorCode = "error_code"
)

// Metrics records the service's observability metrics. A nil *Metrics and a
// zero Metrics are both valid no-op recorders.
type Metrics struct {
	// HTTP metrics
	httpRequestsTotal   metric.Int64Counter
	httpRequestDuration metric.Float64Histogram

	// Google Calendar API metrics
	calendarAPIRequestsTotal   metric.Int64Counter
	calendarAPIRequestDuration metric.Float64Histogram

	// OAuth metrics
	oauthTokenRefreshTotal metric.Int64Counter

	// Idempotency metrics
	idempotencyRequestsTotal metric.Int64Counter

	// Storage metrics
	storageLockWait metric.Float64Histogram

	// MCP Tool metrics
	toolInvocationsTotal metric.Int64Counter
	toolDuration         metric.Float64Histogram

	// detailedLabels adds the error code label to tool metrics
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

	m.calendarAPIRequestsTotal, err = meter.Int64Counter(
		"calendar_api_requests_total",
		metric.WithDescription("Total number of Google Calendar API requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar_api_requests_total counter: %w", err)
	}

	m.calendarAPIRequestDuration, err = meter.Float64Histogram(
		"calendar_api_request_duration_seconds",
		metric.WithDescription("Google Calendar API request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar_api_request_duration_seconds histogram: %w", err)
	}

	m.oauthTokenRefreshTotal, err = meter.Int64Counter(
		"oauth_token_refresh_total",
		metric.WithDescription("Total number of OAuth token refresh attempts"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create oauth_token_refresh_total counter: %w", err)
	}

	m.idempotencyRequestsTotal, err = meter.Int64Counter(
		"idempotency_requests_total",
		metric.WithDescription("Total number of idempotent operations by outcome"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create idempotency_requests_total counter: %w", err)
	}

	m.storageLockWait, err = meter.Float64Histogram(
		"storage_lock_wait_seconds",
		metric.WithDescription("Time spent waiting for the exclusive storage section"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 30.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage_lock_wait_seconds histogram: %w", err)
	}

	m.toolInvocationsTotal, err = meter.Int64Counter(
		"mcp_tool_invocations_total",
		metric.WithDescription("Total number of MCP tool invocations"),
		metric.WithUnit("{invocation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mcp_tool_invocations_total counter: %w", err)
	}

	m.toolDuration, err = meter.Float64Histogram(
		"mcp_tool_duration_seconds",
		metric.WithDescription("MCP tool execution duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mcp_tool_duration_seconds histogram: %w", err)
	}

	return m, nil
}

// RecordHTTPRequest records an HTTP request with method, path, status code, and duration.
// The path is normalized to keep label cardinality bounded.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration) {
	if m == nil || m.httpRequestsTotal == nil || m.httpRequestDuration == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrMethod, method),
		attribute.String(attrPath, NormalizePath(path)),
		attribute.String(attrStatus, strconv.Itoa(statusCode)),
	}

	m.httpRequestsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.httpRequestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordCalendarAPIRequest records one request to the Google Calendar API.
// statusCode is 0 when no response was received.
func (m *Metrics) RecordCalendarAPIRequest(ctx context.Context, method string, statusCode int, duration time.Duration) {
	if m == nil || m.calendarAPIRequestsTotal == nil || m.calendarAPIRequestDuration == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrMethod, method),
		attribute.String(attrStatus, StatusClass(statusCode)),
	}

	m.calendarAPIRequestsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.calendarAPIRequestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordTokenRefresh records an OAuth token refresh attempt with result.
// Result is one of "success", "error", "missing_refresh_token".
func (m *Metrics) RecordTokenRefresh(ctx context.Context, result string) {
	if m == nil || m.oauthTokenRefreshTotal == nil {
		return // Instrumentation not initialized
	}

	m.oauthTokenRefreshTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrResult, result),
	))
}

// RecordIdempotencyRequest records the outcome of an idempotent operation.
// Result is one of "executed", "replayed", "failed".
func (m *Metrics) RecordIdempotencyRequest(ctx context.Context, operation, result string) {
	if m == nil || m.idempotencyRequestsTotal == nil {
		return // Instrumentation not initialized
	}

	m.idempotencyRequestsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrOperation, operation),
		attribute.String(attrResult, result),
	))
}

// RecordStorageLockWait records how long a caller waited for a storage lock.
func (m *Metrics) RecordStorageLockWait(ctx context.Context, backend, document string, wait time.Duration, acquired bool) {
	if m == nil || m.storageLockWait == nil {
		return // Instrumentation not initialized
	}

	m.storageLockWait.Record(ctx, wait.Seconds(), metric.WithAttributes(
		attribute.String(attrBackend, backend),
		attribute.String(attrDocument, document),
		attribute.Bool(attrAcquired, acquired),
	))
}

// RecordToolInvocation records an MCP tool invocation with tool name, status, and duration.
//
// Parameters:
//   - toolName: Name of the MCP tool (e.g., "create_event")
//   - status: Result status ("success" or "error")
//   - errorCode: Domain error code for failed calls; only used with detailed labels
//   - duration: Time taken for the tool execution
func (m *Metrics) RecordToolInvocation(ctx context.Context, toolName, status, errorCode string, duration time.Duration) {
	if m == nil || m.toolInvocationsTotal == nil || m.toolDuration == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrTool, toolName),
		attribute.String(attrStatus, status),
	}
	if m.detailedLabels && errorCode != "" {
		attrs = append(attrs, attribute.String(attrErrorCode, errorCode))
	}

	m.toolInvocationsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.toolDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}
