package instrumentation

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

const (
	testEmail        = "jane@example.com"
	testDomain       = "example.com"
	testUserID       = "108234567890"
	testTraceID      = "abc123def456"
	testSpanID       = "span789"
	testToolList     = "calendar_list_events"
	testToolCreate   = "calendar_create_event"
	testToolClassify = "assistant_classify"
)

func attrsByKey(attrs []slog.Attr) map[string]slog.Attr {
	m := make(map[string]slog.Attr, len(attrs))
	for _, attr := range attrs {
		m[attr.Key] = attr
	}
	return m
}

func TestToolInvocation_NewAndComplete(t *testing.T) {
	ti := NewToolInvocation(testToolList)

	if ti.Tool != testToolList {
		t.Errorf("Tool = %q, want %q", ti.Tool, testToolList)
	}
	if ti.StartTime.IsZero() {
		t.Error("StartTime should not be zero")
	}

	ti.CompleteSuccess()

	if !ti.Success {
		t.Error("Success should be true")
	}
	if ti.Duration < 0 {
		t.Error("Duration should not be negative")
	}
	if ti.Error != "" {
		t.Errorf("Error should be empty, got %q", ti.Error)
	}
	if ti.Status() != StatusSuccess {
		t.Errorf("Status() = %q, want %q", ti.Status(), StatusSuccess)
	}
}

func TestToolInvocation_CompleteWithError(t *testing.T) {
	ti := NewToolInvocation(testToolCreate)
	ti.CompleteWithError(errors.New("permission denied"))

	if ti.Success {
		t.Error("Success should be false")
	}
	if ti.Error != "permission denied" {
		t.Errorf("Error = %q, want %q", ti.Error, "permission denied")
	}
	if ti.Status() != StatusError {
		t.Errorf("Status() = %q, want %q", ti.Status(), StatusError)
	}
}

func TestToolInvocation_MethodChaining(t *testing.T) {
	ti := NewToolInvocation(testToolCreate).
		WithUser(testUserID, testEmail).
		WithService(ServiceCalendar, OperationCreate).
		CompleteSuccess()

	if ti.UserID != testUserID || ti.UserEmail != testEmail {
		t.Errorf("identity = (%q, %q)", ti.UserID, ti.UserEmail)
	}
	if ti.ServiceName != ServiceCalendar || ti.Operation != OperationCreate {
		t.Errorf("service = (%q, %q)", ti.ServiceName, ti.Operation)
	}
	if ti.UserDomain() != testDomain {
		t.Errorf("UserDomain() = %q, want %q", ti.UserDomain(), testDomain)
	}
}

func TestToolInvocation_LogAttrs(t *testing.T) {
	ti := NewToolInvocation(testToolList).
		WithUser(testUserID, testEmail).
		WithService(ServiceCalendar, OperationList).
		CompleteSuccess()
	ti.TraceID = testTraceID

	attrMap := attrsByKey(ti.LogAttrs())

	for _, key := range []string{"tool", "user_domain", "duration", "success", "user_id_hash", "trace_id"} {
		if _, ok := attrMap[key]; !ok {
			t.Errorf("Missing attribute: %s", key)
		}
	}
	if domain := attrMap["user_domain"].Value.String(); domain != testDomain {
		t.Errorf("user_domain = %q, want %q", domain, testDomain)
	}
	if strings.Contains(attrMap["user_id_hash"].Value.String(), testUserID) {
		t.Error("raw user id leaked into anonymized attributes")
	}
	if _, ok := attrMap["user"]; ok {
		t.Error("raw email must not be present")
	}
}

func TestToolInvocation_LogAttrs_MinimalFields(t *testing.T) {
	ti := NewToolInvocation(testToolClassify).CompleteSuccess()

	attrMap := attrsByKey(ti.LogAttrs())

	for _, key := range []string{"service", "operation", "trace_id", "user_id_hash", "error"} {
		if _, ok := attrMap[key]; ok {
			t.Errorf("%s should not be present when empty", key)
		}
	}
}

func TestToolInvocation_LogAuditAttrs(t *testing.T) {
	ti := NewToolInvocation(testToolCreate).
		WithUser(testUserID, testEmail).
		WithService(ServiceCalendar, OperationCreate).
		CompleteWithError(errors.New("audit error"))
	ti.TraceID = testTraceID
	ti.SpanID = testSpanID

	attrMap := attrsByKey(ti.LogAuditAttrs())

	if user := attrMap["user"].Value.String(); user != testEmail {
		t.Errorf("user = %q, want %q", user, testEmail)
	}
	if id := attrMap["user_id"].Value.String(); id != testUserID {
		t.Errorf("user_id = %q, want %q", id, testUserID)
	}
	if spanID := attrMap["span_id"].Value.String(); spanID != testSpanID {
		t.Errorf("span_id = %q, want %q", spanID, testSpanID)
	}
	if _, ok := attrMap["error"]; !ok {
		t.Error("Missing error attribute")
	}
}

func TestToolInvocation_WithSpanContext_NoSpan(t *testing.T) {
	ti := NewToolInvocation("test").WithSpanContext(context.Background())

	if ti.TraceID != "" || ti.SpanID != "" {
		t.Errorf("expected empty ids, got %q/%q", ti.TraceID, ti.SpanID)
	}
}

func newBufferedAuditLogger(cfg AuditLoggingConfig) (*AuditLogger, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	return NewAuditLoggerWithConfig(logger, cfg), &buf
}

func TestAuditLogger_New(t *testing.T) {
	al := NewAuditLogger(nil)
	if al.logger == nil {
		t.Error("logger should not be nil when created with nil")
	}
	if !al.enabled || al.includePII {
		t.Error("expected enabled without PII by default")
	}
}

func TestAuditLogger_LogToolInvocation(t *testing.T) {
	al, buf := newBufferedAuditLogger(AuditLoggingConfig{Enabled: true})

	al.LogToolInvocation(NewToolInvocation(testToolList).WithUser(testUserID, testEmail).CompleteSuccess())
	al.LogToolInvocation(NewToolInvocation(testToolCreate).WithUser(testUserID, testEmail).CompleteWithError(errors.New("boom")))

	out := buf.String()
	if !strings.Contains(out, "tool_executed") || !strings.Contains(out, "tool_failed") {
		t.Errorf("expected both success and failure records, got %q", out)
	}
	if strings.Contains(out, testEmail) {
		t.Error("email should not be logged without IncludePII")
	}
}

func TestAuditLogger_LogToolInvocation_IncludePII(t *testing.T) {
	al, buf := newBufferedAuditLogger(AuditLoggingConfig{Enabled: true, IncludePII: true})

	al.LogToolInvocation(NewToolInvocation(testToolList).WithUser(testUserID, testEmail).CompleteSuccess())

	if !strings.Contains(buf.String(), testEmail) {
		t.Error("expected email in PII audit record")
	}
}

func TestAuditLogger_Disabled(t *testing.T) {
	al, buf := newBufferedAuditLogger(AuditLoggingConfig{Enabled: false})

	al.LogToolInvocation(NewToolInvocation(testToolList).CompleteSuccess())
	al.LogSessionEvent(SessionEvent{Event: SessionEventSignIn, UserID: testUserID, Success: true})

	if buf.Len() != 0 {
		t.Errorf("expected no output when disabled, got %q", buf.String())
	}
}

func TestAuditLogger_LogSessionEvent(t *testing.T) {
	al, buf := newBufferedAuditLogger(AuditLoggingConfig{Enabled: true})

	al.LogSessionEvent(SessionEvent{Event: SessionEventSignIn, UserID: testUserID, Email: testEmail, Success: true})
	al.LogSessionEvent(SessionEvent{Event: SessionEventRefresh, UserID: testUserID, Success: false, Reason: "invalid_grant"})

	out := buf.String()
	if !strings.Contains(out, "event=sign_in") || !strings.Contains(out, "event=token_refresh") {
		t.Errorf("missing events in %q", out)
	}
	if !strings.Contains(out, "reason=invalid_grant") {
		t.Errorf("missing reason in %q", out)
	}
	if strings.Contains(out, testUserID) || strings.Contains(out, testEmail) {
		t.Error("identifiers should be anonymized")
	}
	if !strings.Contains(out, "user_domain="+testDomain) {
		t.Errorf("missing user_domain in %q", out)
	}
}

func TestAuditLogger_NilSafe(t *testing.T) {
	var al *AuditLogger
	// Should not panic
	al.LogToolInvocation(NewToolInvocation("x").CompleteSuccess())
	al.LogSessionEvent(SessionEvent{Event: SessionEventSignOut})
}
