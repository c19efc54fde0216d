package common

import (
	"context"
	"errors"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"go.opentelemetry.io/otel/attribute"

	"github.com/teemow/sharedcal/internal/apierror"
	"github.com/teemow/sharedcal/internal/instrumentation"
	"github.com/teemow/sharedcal/internal/logging"
	"github.com/teemow/sharedcal/internal/server"
)

// ToolHandler is the signature mcp-go expects for tool handlers.
type ToolHandler = func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)

// InstrumentedToolHandler wraps a tool handler with a span, metrics and
// audit logging. Failures reported through ErrorResult count as errors and
// carry their error code; idempotency keys are recorded only as a hash.
//
// Usage:
//
//	s.AddTool(myTool, common.InstrumentedToolHandler("my_tool", sc, handler))
func InstrumentedToolHandler(toolName string, sc *server.ServerContext, handler ToolHandler) ToolHandler {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ctx, span := instrumentation.StartToolSpan(ctx, toolName)
		defer span.End()

		start := time.Now()
		args := request.GetArguments()
		invocation := instrumentation.NewToolInvocation(toolName).
			WithSpanContext(ctx).
			WithTarget(stringArg(args, "calendar_id"), stringArg(args, "event_id"))

		result, err := handler(ctx, request)
		duration := time.Since(start)

		if key := stringArg(args, "idempotency_key"); key != "" {
			replayed := IdempotentReplay(result)
			invocation.WithIdempotency(logging.HashIdempotencyKey(key), replayed)
			span.SetAttributes(attribute.Bool(instrumentation.SpanAttrReplayed, replayed))
		}

		status := instrumentation.StatusSuccess
		var errorCode string
		switch {
		case err != nil:
			status = instrumentation.StatusError
			errorCode = string(apierror.CodeOf(err))
			invocation.Complete(false, errorCode, err.Error())
			instrumentation.SetSpanError(span, err)
		case result != nil && result.IsError:
			status = instrumentation.StatusError
			var message string
			errorCode, message = ErrorDetails(result)
			invocation.Complete(false, errorCode, message)
			instrumentation.SetSpanError(span, errors.New(message))
		default:
			invocation.CompleteSuccess()
			instrumentation.SetSpanSuccess(span)
		}
		if errorCode != "" {
			span.SetAttributes(attribute.String(instrumentation.SpanAttrErrorCode, errorCode))
		}

		if metrics := sc.Metrics(); metrics != nil {
			metrics.RecordToolInvocation(ctx, toolName, status, errorCode, duration)
		}
		if auditLogger := sc.AuditLogger(); auditLogger != nil {
			auditLogger.LogToolInvocation(invocation)
		}

		return result, err
	}
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}
