package instrumentation

import (
	"context"
	"log/slog"
	"time"
)

// ToolInvocation captures what an audit trail needs to know about one MCP
// tool call.
//
// Idempotency keys are caller-chosen and may embed meaning, so only a hash
// of the key is ever recorded.
type ToolInvocation struct {
	// Tool name
	Tool string

	// Target information
	CalendarID string
	EventID    string

	// IdempotencyKeyHash is the short hash of the caller's idempotency key.
	IdempotencyKeyHash string
	Replayed           bool

	// Execution details
	StartTime time.Time
	Duration  time.Duration
	Success   bool
	ErrorCode string
	Error     string

	// Tracing context
	TraceID string
	SpanID  string
}

// Status returns "success" or "error" based on the Success field.
func (ti *ToolInvocation) Status() string {
	if ti.Success {
		return StatusSuccess
	}
	return StatusError
}

// LogAttrs returns the operational subset of the invocation: no calendar or
// event identifiers.
func (ti *ToolInvocation) LogAttrs() []slog.Attr {
	attrs := []slog.Attr{
		slog.String("tool", ti.Tool),
		slog.Duration("duration", ti.Duration),
		slog.Bool("success", ti.Success),
	}

	if ti.Replayed {
		attrs = append(attrs, slog.Bool("idempotent_replay", true))
	}
	if ti.TraceID != "" {
		attrs = append(attrs, slog.String("trace_id", ti.TraceID))
	}
	if ti.ErrorCode != "" {
		attrs = append(attrs, slog.String("error_code", ti.ErrorCode))
	}
	if ti.Error != "" {
		attrs = append(attrs, slog.String("error", ti.Error))
	}

	return attrs
}

// LogAuditAttrs returns every recorded field, including calendar and event
// identifiers.
func (ti *ToolInvocation) LogAuditAttrs() []slog.Attr {
	attrs := ti.LogAttrs()

	if ti.CalendarID != "" {
		attrs = append(attrs, slog.String("calendar_id", ti.CalendarID))
	}
	if ti.EventID != "" {
		attrs = append(attrs, slog.String("event_id", ti.EventID))
	}
	if ti.IdempotencyKeyHash != "" {
		attrs = append(attrs, slog.String("idempotency_key_hash", ti.IdempotencyKeyHash))
	}
	if ti.SpanID != "" {
		attrs = append(attrs, slog.String("span_id", ti.SpanID))
	}

	return attrs
}

// NewToolInvocation creates a new ToolInvocation with timing started.
// Call Complete() when the tool operation finishes.
func NewToolInvocation(tool string) *ToolInvocation {
	return &ToolInvocation{
		Tool:      tool,
		StartTime: time.Now(),
	}
}

// WithTarget sets the calendar and event the invocation acted on.
func (ti *ToolInvocation) WithTarget(calendarID, eventID string) *ToolInvocation {
	ti.CalendarID = calendarID
	ti.EventID = eventID
	return ti
}

// WithIdempotency records the hashed idempotency key and whether the
// response was replayed from the cache.
func (ti *ToolInvocation) WithIdempotency(keyHash string, replayed bool) *ToolInvocation {
	ti.IdempotencyKeyHash = keyHash
	ti.Replayed = replayed
	return ti
}

// WithSpanContext copies the trace and span IDs from ctx.
func (ti *ToolInvocation) WithSpanContext(ctx context.Context) *ToolInvocation {
	ti.TraceID, ti.SpanID = SpanIDs(ctx)
	return ti
}

// Complete marks the invocation as completed and calculates duration.
func (ti *ToolInvocation) Complete(success bool, errorCode, message string) *ToolInvocation {
	ti.Duration = time.Since(ti.StartTime)
	ti.Success = success
	ti.ErrorCode = errorCode
	ti.Error = message
	return ti
}

// CompleteSuccess marks the invocation as successful.
func (ti *ToolInvocation) CompleteSuccess() *ToolInvocation {
	return ti.Complete(true, "", "")
}

// AuditLogger writes one entry per tool invocation. Successful calls are
// logged at the configured level and failures at least at WARN.
type AuditLogger struct {
	logger             *slog.Logger
	level              slog.Level
	includeIdentifiers bool
	enabled            bool
}

// NewAuditLogger creates an enabled AuditLogger that omits identifiers.
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return NewAuditLoggerWithConfig(logger, AuditLoggingConfig{Enabled: true})
}

// NewAuditLoggerWithConfig creates an AuditLogger from config. An unknown
// LogLevel falls back to INFO.
func NewAuditLoggerWithConfig(logger *slog.Logger, config AuditLoggingConfig) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	level := slog.LevelInfo
	if config.LogLevel != "" {
		if err := level.UnmarshalText([]byte(config.LogLevel)); err != nil {
			level = slog.LevelInfo
		}
	}
	return &AuditLogger{
		logger:             logger,
		level:              level,
		includeIdentifiers: config.IncludeIdentifiers,
		enabled:            config.Enabled,
	}
}

// LogToolInvocation logs a tool invocation. Identifiers are included only
// when the logger was configured with IncludeIdentifiers.
func (al *AuditLogger) LogToolInvocation(ti *ToolInvocation) {
	if al == nil || !al.enabled {
		return
	}

	attrs := ti.LogAttrs()
	if al.includeIdentifiers {
		attrs = ti.LogAuditAttrs()
	}

	msg, level := "tool_executed", al.level
	if !ti.Success {
		msg = "tool_failed"
		level = max(level, slog.LevelWarn)
	}
	al.logger.LogAttrs(context.Background(), level, msg, attrs...)
}
