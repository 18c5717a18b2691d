package server

import (
	"context"
	"sync"

	"github.com/teemow/lifeassist/internal/assistant"
	"github.com/teemow/lifeassist/internal/calendar"
	"github.com/teemow/lifeassist/internal/instrumentation"
	"github.com/teemow/lifeassist/internal/session"
)

// Services are the dependencies shared by the HTTP handlers and MCP tools.
// Any of them may be nil, for example when generating tool docs.
type Services struct {
	Broker    *session.Broker
	Calendar  *calendar.Service
	Assistant *assistant.Service

	// DefaultUser is the user id tools act for when the request carries no
	// identity, as with the stdio transport.
	DefaultUser string
}

// ServerContext holds the context for the HTTP and MCP servers
type ServerContext struct {
	ctx      context.Context
	cancel   context.CancelFunc
	services Services

	metrics     *instrumentation.Metrics
	auditLogger *instrumentation.AuditLogger

	mu       sync.RWMutex
	shutdown bool
}

// NewServerContext creates a new server context
func NewServerContext(ctx context.Context, services Services) *ServerContext {
	shutdownCtx, cancel := context.WithCancel(ctx)
	return &ServerContext{
		ctx:      shutdownCtx,
		cancel:   cancel,
		services: services,
	}
}

// Context returns the server context
func (sc *ServerContext) Context() context.Context {
	return sc.ctx
}

// Broker returns the session broker.
func (sc *ServerContext) Broker() *session.Broker {
	return sc.services.Broker
}

// Calendar returns the calendar service.
func (sc *ServerContext) Calendar() *calendar.Service {
	return sc.services.Calendar
}

// Assistant returns the chat service, nil when no model is configured.
func (sc *ServerContext) Assistant() *assistant.Service {
	return sc.services.Assistant
}

// DefaultUser returns the fallback user id for tool calls.
func (sc *ServerContext) DefaultUser() string {
	return sc.services.DefaultUser
}

// SetMetrics sets the metrics recorder used by tools and handlers.
func (sc *ServerContext) SetMetrics(m *instrumentation.Metrics) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.metrics = m
}

// Metrics returns the metrics recorder, or nil.
func (sc *ServerContext) Metrics() *instrumentation.Metrics {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.metrics
}

// SetAuditLogger sets the audit logger for tool invocations.
func (sc *ServerContext) SetAuditLogger(al *instrumentation.AuditLogger) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.auditLogger = al
}

// AuditLogger returns the audit logger, or nil.
func (sc *ServerContext) AuditLogger() *instrumentation.AuditLogger {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.auditLogger
}

// IsShutdown returns whether the server has been shutdown
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.shutdown
}

// Shutdown cancels the server context and closes the broker.
func (sc *ServerContext) Shutdown() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.shutdown {
		return nil
	}

	sc.shutdown = true
	sc.cancel()
	if sc.services.Broker != nil {
		sc.services.Broker.Close()
	}
	return nil
}

// Identity is the signed-in user of a request.
type Identity struct {
	UserID string
	Email  string
}

type identityKey struct{}

// ContextWithIdentity returns a context carrying id.
func ContextWithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the identity set by the cookie middleware.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(*Identity)
	return id, ok && id != nil && id.UserID != ""
}
