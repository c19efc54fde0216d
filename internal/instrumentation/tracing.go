package instrumentation

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the default tracer name for the sharedcal packages.
const TracerName = "github.com/teemow/sharedcal"

// Span attribute keys.
const (
	// SpanAttrTool is the MCP tool name attribute.
	SpanAttrTool = "mcp.tool"

	// SpanAttrReplayed marks responses served from the idempotency cache.
	SpanAttrReplayed = "mcp.idempotent_replay"

	// SpanAttrErrorCode is the domain error code of a failed call.
	SpanAttrErrorCode = "mcp.error_code"

	// SpanAttrHTTPMethod is the HTTP method of an outgoing API call.
	SpanAttrHTTPMethod = "http.request.method"

	// SpanAttrHTTPStatus is the HTTP status code of an outgoing API call.
	SpanAttrHTTPStatus = "http.response.status_code"

	// SpanAttrCalendarPath is the API path relative to the Calendar base URL.
	SpanAttrCalendarPath = "calendar.path"

	// SpanAttrAttempt numbers the attempt of an API call (2 after a reauth).
	SpanAttrAttempt = "calendar.attempt"
)

// StartToolSpan starts a span for an MCP tool invocation.
func StartToolSpan(ctx context.Context, toolName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := make([]attribute.KeyValue, 0, len(attrs)+1)
	allAttrs = append(allAttrs, attribute.String(SpanAttrTool, toolName))
	allAttrs = append(allAttrs, attrs...)

	tracer := otel.GetTracerProvider().Tracer(TracerName)
	return tracer.Start(ctx, "tool."+toolName,
		trace.WithAttributes(allAttrs...),
		trace.WithSpanKind(trace.SpanKindServer),
	)
}

// StartCalendarAPISpan starts a client span for one Google Calendar API request.
func StartCalendarAPISpan(ctx context.Context, method, path string, attempt int) (context.Context, trace.Span) {
	tracer := otel.GetTracerProvider().Tracer(TracerName)
	return tracer.Start(ctx, "calendar."+method,
		trace.WithAttributes(
			attribute.String(SpanAttrHTTPMethod, method),
			attribute.String(SpanAttrCalendarPath, path),
			attribute.Int(SpanAttrAttempt, attempt),
		),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

// FinishCalendarAPISpan records the outcome of an API request on span.
// status is 0 when no response arrived, in which case err describes the
// transport failure.
func FinishCalendarAPISpan(span trace.Span, status int, err error) {
	if status > 0 {
		span.SetAttributes(attribute.Int(SpanAttrHTTPStatus, status))
	}
	switch {
	case err != nil:
		SetSpanError(span, err)
	case status >= 400:
		span.SetStatus(codes.Error, StatusClass(status))
	default:
		SetSpanSuccess(span)
	}
}

// SetSpanError records err on the span. A nil err is ignored.
func SetSpanError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSpanSuccess sets the span status to OK.
func SetSpanSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

// SpanIDs returns the trace and span IDs of the span in ctx, or empty
// strings when ctx carries no sampled span context.
func SpanIDs(ctx context.Context) (traceID, spanID string) {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return "", ""
	}
	return sc.TraceID().String(), sc.SpanID().String()
}
