package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/teemow/lifeassist/internal/assistant"
	"github.com/teemow/lifeassist/internal/calendar"
	"github.com/teemow/lifeassist/internal/clientsession"
	"github.com/teemow/lifeassist/internal/credential"
	"github.com/teemow/lifeassist/internal/google"
	"github.com/teemow/lifeassist/internal/instrumentation"
	"github.com/teemow/lifeassist/internal/logging"
	"github.com/teemow/lifeassist/internal/resources"
	"github.com/teemow/lifeassist/internal/server"
	"github.com/teemow/lifeassist/internal/session"
	"github.com/teemow/lifeassist/internal/tools/assistant_tools"
	"github.com/teemow/lifeassist/internal/tools/calendar_tools"
)

// shutdownTimeout bounds the graceful stop of the HTTP servers.
const shutdownTimeout = 30 * time.Second

func newServeCmd() *cobra.Command {
	cfg := ServeConfig{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the LifeAssist server",
		Long: `Start the LifeAssist server.

Supports two transports:
  - http: REST API for the web client plus the MCP streamable HTTP endpoint
    at /mcp (default). Users sign in with Google at /api/auth/google.
  - stdio: MCP over standard input/output for a single local user. Pick the
    user with --user; tools may also pass a "user" argument.

Google OAuth (required):
  --google-client-id and --google-client-secret flags
  OR GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET env vars.
  The redirect URL registered at Google must be
  <base-url>/api/auth/callback/google.

Sessions (http transport):
  --session-secret OR SESSION_SECRET signs the session cookies and must be
  at least 32 bytes.

Credential storage:
  memory (default, lost on restart), valkey or postgres. Tokens are
  encrypted at rest when CREDENTIAL_ENCRYPTION_KEY or
  CREDENTIAL_ENCRYPTION_PASSPHRASE is set.

A .env file in the working directory is loaded at startup.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			loadServeEnvVars(cmd, &cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}
			logging.Init(cfg.LogLevel, cfg.LogFormat)
			return runServe(cfg)
		},
	}

	cmd.Flags().StringVar(&cfg.Transport, "transport", transportHTTP, "Transport type: http or stdio. Can also use TRANSPORT env var.")
	cmd.Flags().StringVar(&cfg.HTTPAddr, "http-addr", ":8080", "HTTP server address. Can also use HTTP_ADDR env var.")
	cmd.Flags().StringVar(&cfg.BaseURL, "base-url", "", "Public base URL of the server. Required for deployed instances. Can also use BASE_URL env var. Example: https://assist.example.com")
	cmd.Flags().StringVar(&cfg.User, "user", "", "User id the stdio transport acts for. Can also use LIFEASSIST_USER env var.")
	cmd.Flags().BoolVar(&cfg.ReadOnly, "read-only", false, "Only register tools that do not modify calendars. Can also use READ_ONLY env var.")
	cmd.Flags().StringVar(&cfg.LogLevel, "log-level", "info", "Log level: debug, info, warn or error. Can also use LOG_LEVEL env var.")
	cmd.Flags().StringVar(&cfg.LogFormat, "log-format", "text", "Log format: text or json. Can also use LOG_FORMAT env var.")

	addGoogleFlags(cmd, &cfg.Google)

	cmd.Flags().StringVar(&cfg.Session.Secret, "session-secret", "", "Secret that signs the session cookies (at least 32 bytes). Can also use SESSION_SECRET env var.")
	cmd.Flags().BoolVar(&cfg.Session.CookieSecure, "session-cookie-secure", false, "Set the Secure attribute on cookies. Defaults to true for https base URLs. Can also use SESSION_COOKIE_SECURE env var.")
	cmd.Flags().DurationVar(&cfg.Session.TTL, "session-ttl", server.DefaultSessionTTL, "Lifetime of the session cookies. Can also use SESSION_TTL env var.")
	cmd.Flags().BoolVar(&cfg.Session.RevokeOnSignOut, "revoke-on-signout", false, "Revoke the Google grant when a user signs out. Can also use REVOKE_ON_SIGNOUT env var.")

	addStorageFlags(cmd, &cfg.Storage)

	cmd.Flags().StringVar(&cfg.Assistant.APIKey, "anthropic-api-key", "", "Anthropic API key for the chat assistant. Chat is disabled without it. Can also use ANTHROPIC_API_KEY env var.")
	cmd.Flags().StringVar(&cfg.Assistant.Model, "anthropic-model", assistant.DefaultModel, "Model used by the chat assistant. Can also use ANTHROPIC_MODEL env var.")

	cmd.Flags().BoolVar(&cfg.Metrics.Enabled, "metrics-enabled", true, "Enable the metrics server on a dedicated port. Can also use METRICS_ENABLED env var.")
	cmd.Flags().StringVar(&cfg.Metrics.Addr, "metrics-addr", server.DefaultMetricsAddr, "Metrics server address. Can also use METRICS_ADDR env var.")

	return cmd
}

// services bundles what a serve run builds before the transport starts.
type services struct {
	provider *instrumentation.Provider
	store    credential.Store
	sc       *server.ServerContext
}

// close releases everything buildServices created, newest first.
func (s *services) close(ctx context.Context) error {
	var errs []error
	if s.sc != nil {
		errs = append(errs, s.sc.Shutdown())
	}
	if s.store != nil {
		errs = append(errs, s.store.Close())
	}
	if s.provider != nil {
		errs = append(errs, s.provider.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

// buildServices wires the credential store, the session broker and the
// calendar and assistant services.
func buildServices(ctx context.Context, cfg ServeConfig) (*services, error) {
	logger := slog.Default()
	out := &services{}

	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version
	if err := instrConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid instrumentation configuration: %w", err)
	}

	provider, err := instrumentation.NewProvider(ctx, instrConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	out.provider = provider
	metrics := provider.Metrics()
	audit := instrumentation.NewAuditLoggerWithConfig(nil, instrConfig.AuditLogging)

	credCfg, err := cfg.Storage.CredentialConfig()
	if err != nil {
		_ = out.close(ctx)
		return nil, fmt.Errorf("invalid credential encryption settings: %w", err)
	}
	credCfg.Metrics = metrics
	credCfg.Logger = logger

	store, err := credential.Open(ctx, credCfg)
	if err != nil {
		_ = out.close(ctx)
		return nil, fmt.Errorf("failed to open credential store: %w", err)
	}
	out.store = store

	httpClient := google.NewHTTPClient(google.DefaultHTTPTimeout)
	oauthConfig := google.NewOAuth2Config(google.OAuthConfig{
		ClientID:     cfg.Google.ClientID,
		ClientSecret: cfg.Google.ClientSecret,
		BaseURL:      cfg.BaseURL,
		Scopes:       cfg.Google.Scopes,
	})

	broker, err := session.NewBroker(session.Config{
		OAuth2:          oauthConfig,
		Store:           store,
		Refresher:       google.NewOAuthRefresher(oauthConfig, httpClient, metrics),
		Profiles:        google.NewUserinfoFetcher(httpClient, metrics),
		Revoker:         google.NewHTTPRevoker(httpClient, metrics),
		HTTPClient:      httpClient,
		RevokeOnSignOut: cfg.Session.RevokeOnSignOut,
		Metrics:         metrics,
		Audit:           audit,
		Logger:          logger,
	})
	if err != nil {
		_ = out.close(ctx)
		return nil, fmt.Errorf("failed to create session broker: %w", err)
	}

	cal := calendar.NewService(broker, calendar.ClientConfig{HTTPClient: httpClient, Metrics: metrics}, logger)

	var chat *assistant.Service
	if cfg.Assistant.APIKey != "" {
		completer, err := assistant.NewAnthropicCompleter(assistant.AnthropicConfig{
			APIKey:  cfg.Assistant.APIKey,
			Model:   cfg.Assistant.Model,
			Metrics: metrics,
		})
		if err != nil {
			broker.Close()
			_ = out.close(ctx)
			return nil, fmt.Errorf("failed to create assistant: %w", err)
		}
		chat = assistant.NewService(cal, completer, logger)
		logger.Info("Chat assistant enabled", "model", completer.Model())
	} else {
		logger.Warn("ANTHROPIC_API_KEY not set, chat assistant disabled")
	}

	out.sc = server.NewServerContext(ctx, server.Services{
		Broker:      broker,
		Calendar:    cal,
		Assistant:   chat,
		DefaultUser: cfg.User,
	})
	if provider.Enabled() {
		out.sc.SetMetrics(metrics)
		out.sc.SetAuditLogger(audit)
	}

	return out, nil
}

func runServe(cfg ServeConfig) error {
	// Setup graceful shutdown
	shutdownCtx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if cfg.Transport == transportHTTP && cfg.BaseURL == "" {
		// Fall back to auto-detection for local development
		cfg.BaseURL = fmt.Sprintf("http://%s", cfg.HTTPAddr)
		if cfg.HTTPAddr != "" && cfg.HTTPAddr[0] == ':' {
			cfg.BaseURL = fmt.Sprintf("http://localhost%s", cfg.HTTPAddr)
		}
		slog.Warn("No base URL configured, using auto-detected URL; set --base-url or BASE_URL for deployed instances",
			"base_url", cfg.BaseURL)
	}

	svcs, err := buildServices(shutdownCtx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := svcs.close(ctx); err != nil {
			slog.Error("Error during shutdown", logging.Err(err))
		}
	}()

	mcpSrv := mcpserver.NewMCPServer("lifeassist", version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithResourceCapabilities(false, false), // Subscribe and listChanged
	)
	if err := registerAllTools(mcpSrv, svcs.sc, cfg.ReadOnly); err != nil {
		return err
	}

	if cfg.ReadOnly {
		slog.Info("Starting server in READ-ONLY mode, calendar write tools are disabled")
	}

	switch cfg.Transport {
	case transportStdio:
		if cfg.User == "" {
			slog.Warn("No --user given, every tool call must pass the user argument")
		}
		return runStdioServer(mcpSrv)
	default:
		return runHTTPServer(shutdownCtx, cfg, mcpSrv, svcs)
	}
}

func runStdioServer(mcpSrv *mcpserver.MCPServer) error {
	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := mcpserver.ServeStdio(mcpSrv); err != nil {
			serverDone <- err
		}
	}()

	err := <-serverDone
	if err != nil {
		return fmt.Errorf("server stopped with error: %w", err)
	}
	return nil
}

// registerAllTools registers all MCP tools and resources
func registerAllTools(mcpSrv *mcpserver.MCPServer, sc *server.ServerContext, readOnly bool) error {
	type toolRegistration struct {
		name     string
		register func() error
	}

	registrations := []toolRegistration{
		{
			name: "Calendar",
			register: func() error {
				return calendar_tools.RegisterCalendarTools(mcpSrv, sc, readOnly)
			},
		},
		{
			name: "Assistant",
			register: func() error {
				return assistant_tools.RegisterAssistantTools(mcpSrv, sc)
			},
		},
		{
			name: "User Resources",
			register: func() error {
				return resources.RegisterUserResources(mcpSrv, sc)
			},
		},
	}

	for _, reg := range registrations {
		if err := reg.register(); err != nil {
			return fmt.Errorf("failed to register %s: %w", reg.name, err)
		}
	}

	return nil
}

// startMetricsServer starts the dedicated metrics listener and waits until
// it is bound.
func startMetricsServer(cfg MetricsConfig, provider *instrumentation.Provider) (*server.MetricsServer, error) {
	metricsServer, err := server.NewMetricsServer(server.MetricsServerConfig{
		Addr:                    cfg.Addr,
		Enabled:                 true,
		InstrumentationProvider: provider,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics server: %w", err)
	}

	metricsReady := make(chan struct{})
	metricsErr := make(chan error, 1)
	go func() {
		if err := metricsServer.StartWithReadySignal(metricsReady); err != nil && !errors.Is(err, http.ErrServerClosed) {
			metricsErr <- err
		}
		close(metricsErr)
	}()

	select {
	case <-metricsReady:
		slog.Info("Metrics server started", "addr", metricsServer.BoundAddr())
		return metricsServer, nil
	case err := <-metricsErr:
		return nil, fmt.Errorf("metrics server failed to start: %w", err)
	case <-time.After(5 * time.Second):
		return nil, fmt.Errorf("metrics server startup timed out")
	}
}

func runHTTPServer(ctx context.Context, cfg ServeConfig, mcpSrv *mcpserver.MCPServer, svcs *services) error {
	if cfg.Metrics.Enabled && svcs.provider.PrometheusHandler() != nil {
		metricsServer, err := startMetricsServer(cfg.Metrics, svcs.provider)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				slog.Error("Error during metrics server shutdown", logging.Err(err))
			}
		}()
	}

	httpServer, err := server.NewHTTPServer(svcs.sc, server.Config{
		BaseURL: cfg.BaseURL,
		Cookies: server.CookieConfig{
			Secret: []byte(cfg.Session.Secret),
			Secure: cfg.Session.CookieSecure,
			TTL:    cfg.Session.TTL,
		},
		MCPServer:  mcpSrv,
		Restore:    clientsession.RestorerConfig{Logger: slog.Default()},
		PointerTTL: cfg.Session.TTL,
		Logger:     slog.Default(),
	})
	if err != nil {
		return fmt.Errorf("failed to create HTTP server: %w", err)
	}

	slog.Info("LifeAssist HTTP server starting",
		"addr", cfg.HTTPAddr,
		"base_url", cfg.BaseURL,
		"callback", cfg.BaseURL+google.CallbackPath,
		"mcp_endpoint", server.MCPEndpointPath,
		"credential_store", cfg.Storage.Type,
	)

	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := httpServer.Start(cfg.HTTPAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverDone <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("Shutdown signal received, stopping HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("error shutting down HTTP server: %w", err)
		}
	case err := <-serverDone:
		if err != nil {
			return fmt.Errorf("HTTP server stopped with error: %w", err)
		}
	}

	slog.Info("HTTP server gracefully stopped")
	return nil
}
