// Package instrumentation provides OpenTelemetry metrics, tracing and audit
// logging for the sharedcal MCP server.
//
// # Metrics
//
// Server/HTTP Metrics:
//   - http_requests_total: Counter of HTTP requests by method, normalized path, and status
//   - http_request_duration_seconds: Histogram of HTTP request durations
//
// Google Calendar API Metrics:
//   - calendar_api_requests_total: Counter of API requests by method and status class
//   - calendar_api_request_duration_seconds: Histogram of API request durations
//
// Credential and State Metrics:
//   - oauth_token_refresh_total: Counter of token refresh attempts by result
//   - idempotency_requests_total: Counter of idempotent operations by operation and result
//   - storage_lock_wait_seconds: Histogram of time spent waiting for storage locks
//
// MCP Tool Metrics:
//   - mcp_tool_invocations_total: Counter of MCP tool invocations by tool name and status
//   - mcp_tool_duration_seconds: Histogram of MCP tool execution durations
//
// # Tracing
//
// Spans are created for MCP tool invocations (tool.<name>) and Google
// Calendar API calls (calendar.<method>).
//
// # Configuration
//
// DefaultConfig reads SHAREDCAL_* variables first and falls back to the
// standard OpenTelemetry names:
//   - SHAREDCAL_INSTRUMENTATION_ENABLED (default: true)
//   - SHAREDCAL_METRICS_EXPORTER / METRICS_EXPORTER: prometheus, otlp or stdout
//   - SHAREDCAL_TRACING_EXPORTER / TRACING_EXPORTER: otlp, stdout or none
//   - SHAREDCAL_OTLP_ENDPOINT / OTEL_EXPORTER_OTLP_ENDPOINT
//   - SHAREDCAL_TRACE_SAMPLING_RATE / OTEL_TRACES_SAMPLER_ARG (default: 0.1)
//   - OTEL_RESOURCE_ATTRIBUTES: extra resource attributes
//
// The stdout exporters write to standard error so they never interleave
// with the stdio MCP transport.
//
// # Example Usage
//
//	provider, err := instrumentation.NewProvider(ctx, instrumentation.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	defer provider.Shutdown(ctx)
//
//	recorder := provider.Metrics()
//	recorder.RecordToolInvocation(ctx, "create_event", "success", "", time.Since(start))
package instrumentation
