package instrumentation

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/teemow/lifeassist/internal/logging"
)

// ToolInvocation captures one MCP tool call for audit logging.
//
// UserEmail is PII. LogAttrs only emits its domain and a hashed user id;
// LogAuditAttrs emits the raw email and is meant for a restricted stream.
type ToolInvocation struct {
	Tool string

	// Identity resolved for the call
	UserID    string
	UserEmail string

	ServiceName string // Remote service (calendar, anthropic)
	Operation   string // Operation type (list, get, create, update, delete)

	StartTime time.Time
	Duration  time.Duration
	Success   bool
	Error     string

	TraceID string
	SpanID  string
}

// UserDomain returns the domain portion of the user's email for lower-cardinality logging.
func (ti *ToolInvocation) UserDomain() string {
	return ExtractUserDomain(ti.UserEmail)
}

// Status returns "success" or "error" based on the Success field.
func (ti *ToolInvocation) Status() string {
	if ti.Success {
		return StatusSuccess
	}
	return StatusError
}

// LogAttrs returns anonymized slog attributes for the invocation.
func (ti *ToolInvocation) LogAttrs() []slog.Attr {
	attrs := []slog.Attr{
		slog.String("tool", ti.Tool),
		slog.String("user_domain", ti.UserDomain()),
		slog.Duration("duration", ti.Duration),
		slog.Bool("success", ti.Success),
	}

	if ti.UserID != "" {
		attrs = append(attrs, logging.UserID(ti.UserID))
	}
	attrs = append(attrs, ti.commonAttrs()...)
	if ti.Error != "" {
		attrs = append(attrs, slog.String("error", ti.Error))
	}

	return attrs
}

// LogAuditAttrs returns slog attributes including the raw user email.
//
// # Security Warning
//
// This method includes PII. Route audit logs to storage with appropriate
// access controls.
func (ti *ToolInvocation) LogAuditAttrs() []slog.Attr {
	attrs := []slog.Attr{
		slog.String("tool", ti.Tool),
		slog.String("user", ti.UserEmail),
		slog.Duration("duration", ti.Duration),
		slog.Bool("success", ti.Success),
	}

	if ti.UserID != "" {
		attrs = append(attrs, slog.String("user_id", ti.UserID))
	}
	attrs = append(attrs, ti.commonAttrs()...)
	if ti.SpanID != "" {
		attrs = append(attrs, slog.String("span_id", ti.SpanID))
	}
	if ti.Error != "" {
		attrs = append(attrs, slog.String("error", ti.Error))
	}

	return attrs
}

func (ti *ToolInvocation) commonAttrs() []slog.Attr {
	var attrs []slog.Attr
	if ti.ServiceName != "" {
		attrs = append(attrs, slog.String("service", ti.ServiceName))
	}
	if ti.Operation != "" {
		attrs = append(attrs, slog.String("operation", ti.Operation))
	}
	if ti.TraceID != "" {
		attrs = append(attrs, slog.String("trace_id", ti.TraceID))
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

// WithUser sets the resolved identity.
func (ti *ToolInvocation) WithUser(userID, email string) *ToolInvocation {
	ti.UserID = userID
	ti.UserEmail = email
	return ti
}

// WithService sets the remote service and operation.
func (ti *ToolInvocation) WithService(serviceName, operation string) *ToolInvocation {
	ti.ServiceName = serviceName
	ti.Operation = operation
	return ti
}

// WithSpanContext extracts trace context from the current span.
func (ti *ToolInvocation) WithSpanContext(ctx context.Context) *ToolInvocation {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		ti.TraceID = span.SpanContext().TraceID().String()
		ti.SpanID = span.SpanContext().SpanID().String()
	}
	return ti
}

// Complete marks the invocation as completed and calculates duration.
func (ti *ToolInvocation) Complete(success bool, err error) *ToolInvocation {
	ti.Duration = time.Since(ti.StartTime)
	ti.Success = success
	if err != nil {
		ti.Error = err.Error()
	}
	return ti
}

// CompleteWithError marks the invocation as failed with the given error.
func (ti *ToolInvocation) CompleteWithError(err error) *ToolInvocation {
	return ti.Complete(false, err)
}

// CompleteSuccess marks the invocation as successful.
func (ti *ToolInvocation) CompleteSuccess() *ToolInvocation {
	return ti.Complete(true, nil)
}

// Session audit event names.
const (
	SessionEventSignIn   = "sign_in"
	SessionEventSignOut  = "sign_out"
	SessionEventRefresh  = "token_refresh"
	SessionEventRevoke   = "token_revoke"
	SessionEventRestored = "session_restored"
)

// SessionEvent describes a change to a user's authentication state.
type SessionEvent struct {
	Event   string
	UserID  string
	Email   string
	Success bool
	Reason  string
}

// AuditLogger provides structured audit logging for tool invocations and
// session events.
type AuditLogger struct {
	logger     *slog.Logger
	includePII bool
	enabled    bool
}

// NewAuditLogger creates a new AuditLogger with the given slog.Logger.
// By default, PII is not included in logs (anonymized identifiers are used instead).
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{
		logger:     logger,
		includePII: false,
		enabled:    true,
	}
}

// NewAuditLoggerWithConfig creates a new AuditLogger with the given configuration.
func NewAuditLoggerWithConfig(logger *slog.Logger, config AuditLoggingConfig) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{
		logger:     logger,
		includePII: config.IncludePII,
		enabled:    config.Enabled,
	}
}

// SetIncludePII sets whether to include full email addresses in audit logs.
func (al *AuditLogger) SetIncludePII(include bool) {
	al.includePII = include
}

// SetEnabled sets whether audit logging is enabled.
func (al *AuditLogger) SetEnabled(enabled bool) {
	al.enabled = enabled
}

// LogToolInvocation logs a tool invocation. Full emails are only included
// when the logger was configured with IncludePII.
func (al *AuditLogger) LogToolInvocation(ti *ToolInvocation) {
	if al == nil || !al.enabled {
		return
	}

	var attrs []slog.Attr
	if al.includePII {
		attrs = ti.LogAuditAttrs()
	} else {
		attrs = ti.LogAttrs()
	}

	if ti.Success {
		al.logger.Info("tool_executed", attrsToArgs(attrs)...)
	} else {
		al.logger.Warn("tool_failed", attrsToArgs(attrs)...)
	}
}

// LogSessionEvent logs a sign-in, sign-out, refresh or revoke.
func (al *AuditLogger) LogSessionEvent(ev SessionEvent) {
	if al == nil || !al.enabled {
		return
	}

	attrs := []slog.Attr{
		slog.String("event", ev.Event),
		slog.Bool("success", ev.Success),
		logging.UserID(ev.UserID),
	}
	if al.includePII {
		attrs = append(attrs, slog.String("user", ev.Email))
	} else if ev.Email != "" {
		attrs = append(attrs, slog.String("user_domain", ExtractUserDomain(ev.Email)))
	}
	if ev.Reason != "" {
		attrs = append(attrs, slog.String("reason", ev.Reason))
	}

	if ev.Success {
		al.logger.Info("session_audit", attrsToArgs(attrs)...)
	} else {
		al.logger.Warn("session_audit", attrsToArgs(attrs)...)
	}
}

func attrsToArgs(attrs []slog.Attr) []any {
	args := make([]any, len(attrs))
	for i, attr := range attrs {
		args[i] = attr
	}
	return args
}
