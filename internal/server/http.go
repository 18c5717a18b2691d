package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/lifeassist/internal/clientsession"
)

// HTTP server timeouts. Writes allow for a slow model reply.
const (
	DefaultReadHeaderTimeout = 10 * time.Second
	DefaultWriteTimeout      = 120 * time.Second
	DefaultIdleTimeout       = 120 * time.Second
)

// MCPEndpointPath is where the streamable HTTP MCP transport is mounted.
const MCPEndpointPath = "/mcp"

// Config configures an HTTPServer.
type Config struct {
	// BaseURL is the public URL of the service. HTTPS is required except
	// for loopback hosts.
	BaseURL string

	Cookies CookieConfig

	// MCPServer, when set, is served on /mcp.
	MCPServer *mcpserver.MCPServer

	// Restore tunes the silent session restore.
	Restore clientsession.RestorerConfig

	// PointerTTL is the lifetime of the restore pointer cookies. Defaults
	// to clientsession.DefaultPointerTTL.
	PointerTTL time.Duration

	Logger *slog.Logger
}

// HTTPServer serves the REST API, the OAuth endpoints, health probes and
// the MCP streamable HTTP transport.
type HTTPServer struct {
	sc         *ServerContext
	cookies    *CookieSigner
	health     *HealthChecker
	restore    clientsession.RestorerConfig
	pointerTTL time.Duration
	logger     *slog.Logger
	router     chi.Router

	mu         sync.Mutex
	httpServer *http.Server
}

// NewHTTPServer builds the router.
func NewHTTPServer(sc *ServerContext, cfg Config) (*HTTPServer, error) {
	if cfg.BaseURL != "" {
		if err := validateHTTPSRequirement(cfg.BaseURL); err != nil {
			return nil, err
		}
	}

	cookies, err := NewCookieSigner(cfg.Cookies)
	if err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var store Pinger
	if sc.Broker() != nil {
		store = sc.Broker()
	}

	restore := cfg.Restore
	if restore.Logger == nil {
		restore.Logger = logger
	}

	s := &HTTPServer{
		sc:         sc,
		cookies:    cookies,
		health:     NewHealthChecker(sc, store),
		restore:    restore,
		pointerTTL: cfg.PointerTTL,
		logger:     logger,
	}
	s.router = s.routes(cfg.MCPServer)
	return s, nil
}

func (s *HTTPServer) routes(mcpSrv *mcpserver.MCPServer) chi.Router {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))
	r.Use(s.instrumentationMiddleware)

	s.health.RegisterHealthEndpoints(r)

	r.Group(func(r chi.Router) {
		r.Use(spanMiddleware)
		r.Use(s.identityMiddleware)

		r.Route("/api/auth", func(r chi.Router) {
			r.Get("/google", s.handleSignIn)
			r.Get("/callback/google", s.handleCallback)
			r.Post("/restore", s.handleRestore)
			r.Get("/session", s.handleSession)
			r.Post("/signout", s.handleSignOut)
		})

		r.Group(func(r chi.Router) {
			r.Use(s.requireIdentity)

			r.Route("/api/calendar", func(r chi.Router) {
				r.Get("/events", s.handleListEvents)
				r.Post("/events", s.handleCreateEvent)
				r.Get("/events/{id}", s.handleGetEvent)
				r.Put("/events/{id}", s.handleUpdateEvent)
				r.Delete("/events/{id}", s.handleDeleteEvent)
				r.Get("/calendars", s.handleListCalendars)
			})

			r.Post("/api/chat", s.handleChat)
		})

		if mcpSrv != nil {
			mcpHandler := mcpserver.NewStreamableHTTPServer(mcpSrv,
				mcpserver.WithEndpointPath(MCPEndpointPath),
				mcpserver.WithHTTPContextFunc(func(ctx context.Context, r *http.Request) context.Context {
					if id, ok := IdentityFromContext(r.Context()); ok {
						return ContextWithIdentity(ctx, id)
					}
					return ctx
				}),
			)
			// Tools act for the cookie user only; the user argument is a stdio feature.
			r.With(s.requireIdentity).Handle(MCPEndpointPath, mcpHandler)
		}
	})

	return r
}

// Handler returns the root handler, for tests and embedding.
func (s *HTTPServer) Handler() http.Handler {
	return s.router
}

// Health returns the health checker.
func (s *HTTPServer) Health() *HealthChecker {
	return s.health
}

// Start serves on addr until Shutdown.
func (s *HTTPServer) Start(addr string) error {
	return s.StartWithReadySignal(addr, nil)
}

// StartWithReadySignal binds addr, closes ready once listening and serves
// until Shutdown. ready may be nil.
func (s *HTTPServer) StartWithReadySignal(addr string, ready chan<- struct{}) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
		WriteTimeout:      DefaultWriteTimeout,
		IdleTimeout:       DefaultIdleTimeout,
		BaseContext: func(net.Listener) context.Context {
			return s.sc.Context()
		},
	}

	s.mu.Lock()
	s.httpServer = srv
	s.mu.Unlock()

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.logger.Info("starting HTTP server", slog.String("addr", ln.Addr().String()))
	if ready != nil {
		close(ready)
	}
	return srv.Serve(ln)
}

// Shutdown marks the server not ready and drains open requests.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	s.health.SetReady(false)

	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()

	if srv != nil {
		return srv.Shutdown(ctx)
	}
	return nil
}

// validateHTTPSRequirement ensures the public base URL is HTTPS.
// Allows HTTP only for loopback addresses (localhost, 127.0.0.1, ::1)
func validateHTTPSRequirement(baseURL string) error {
	if baseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}

	u, err := url.Parse(baseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}

	if u.Scheme == "http" {
		host := u.Hostname()
		if host != "localhost" && host != "127.0.0.1" && host != "::1" {
			return fmt.Errorf("HTTPS is required for production (got: %s). Use HTTPS or localhost for development", baseURL)
		}
	} else if u.Scheme != "https" {
		return fmt.Errorf("invalid URL scheme: %s. Must be http (localhost only) or https", u.Scheme)
	}

	return nil
}
