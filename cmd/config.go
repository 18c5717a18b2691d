package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/teemow/lifeassist/internal/credential"
	"github.com/teemow/lifeassist/internal/server"
)

// GoogleConfig holds the OAuth client registration.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string

	// Scopes replaces the default scopes when set.
	Scopes []string
}

// SessionConfig holds cookie and sign-out settings.
type SessionConfig struct {
	// Secret signs the identity and pointer cookies.
	Secret string

	// CookieSecure sets the Secure attribute on cookies. Defaults to true
	// when the base URL is https.
	CookieSecure bool

	// TTL is the lifetime of the identity cookie and the client pointers.
	TTL time.Duration

	// RevokeOnSignOut revokes the Google grant on sign-out.
	RevokeOnSignOut bool
}

// StorageConfig selects the credential store backend.
type StorageConfig struct {
	// Type is the backend: "memory", "valkey" or "postgres" (default: "memory")
	Type string

	Valkey ValkeyStorageConfig

	// DatabaseURL is the postgres connection string.
	DatabaseURL string

	// MaxConns caps the postgres pool.
	MaxConns int

	// EncryptionKey is a base64 AES-256 key for tokens at rest.
	EncryptionKey string

	// EncryptionPassphrase derives the key when no key is given.
	EncryptionPassphrase string
}

// ValkeyStorageConfig holds configuration for Valkey storage backend
type ValkeyStorageConfig struct {
	// URL is the Valkey server address (e.g., "valkey.namespace.svc:6379")
	URL string

	// Password is the optional password for Valkey authentication
	Password string

	// TLSEnabled enables TLS for Valkey connections
	TLSEnabled bool

	// KeyPrefix is the prefix for all Valkey keys (default: "lifeassist:")
	KeyPrefix string

	// DB is the Valkey database number (default: 0)
	DB int
}

// AssistantConfig configures the chat model.
type AssistantConfig struct {
	APIKey string
	Model  string
}

// MetricsConfig holds configuration for the metrics server
type MetricsConfig struct {
	// Enabled determines whether to start the metrics server (default: true)
	Enabled bool

	// Addr is the address for the metrics server (e.g., ":9090")
	Addr string
}

// ServeConfig is everything the serve command needs.
type ServeConfig struct {
	Transport string
	HTTPAddr  string
	BaseURL   string
	User      string
	ReadOnly  bool
	LogLevel  string
	LogFormat string

	Google    GoogleConfig
	Session   SessionConfig
	Storage   StorageConfig
	Assistant AssistantConfig
	Metrics   MetricsConfig
}

// Transports.
const (
	transportHTTP  = "http"
	transportStdio = "stdio"
)

// Validate fails fast on settings the server cannot start without.
func (c *ServeConfig) Validate() error {
	switch c.Transport {
	case transportHTTP, transportStdio:
	default:
		return fmt.Errorf("unsupported transport type: %s (supported: http, stdio)", c.Transport)
	}

	if c.Google.ClientID == "" || c.Google.ClientSecret == "" {
		return fmt.Errorf("google client id and secret are required (--google-client-id/--google-client-secret or GOOGLE_CLIENT_ID/GOOGLE_CLIENT_SECRET)")
	}

	if c.Transport == transportHTTP {
		if len(c.Session.Secret) < server.MinSessionSecretLength {
			return fmt.Errorf("session secret must be at least %d bytes (--session-secret or SESSION_SECRET)", server.MinSessionSecretLength)
		}
		if c.Session.TTL < 0 {
			return fmt.Errorf("session ttl must not be negative")
		}
	}

	switch c.Storage.Type {
	case credential.BackendMemory:
	case credential.BackendValkey:
		if c.Storage.Valkey.URL == "" {
			return fmt.Errorf("valkey URL is required for the valkey credential store (--valkey-url or VALKEY_URL)")
		}
	case credential.BackendPostgres:
		if c.Storage.DatabaseURL == "" {
			return fmt.Errorf("database URL is required for the postgres credential store (--database-url or DATABASE_URL)")
		}
	default:
		return fmt.Errorf("unsupported credential store %q, must be one of: memory, valkey, postgres", c.Storage.Type)
	}

	return nil
}

// EncryptionKeyBytes resolves the token encryption key. It returns nil when
// encryption is not configured.
func (c *StorageConfig) EncryptionKeyBytes() ([]byte, error) {
	if c.EncryptionKey != "" {
		return credential.KeyFromBase64(c.EncryptionKey)
	}
	if c.EncryptionPassphrase != "" {
		return credential.KeyFromPassphrase(c.EncryptionPassphrase, "lifeassist-credentials")
	}
	return nil, nil
}

// CredentialConfig maps the storage settings onto the credential package.
func (c *StorageConfig) CredentialConfig() (credential.Config, error) {
	key, err := c.EncryptionKeyBytes()
	if err != nil {
		return credential.Config{}, err
	}
	return credential.Config{
		Backend: c.Type,
		Valkey: credential.ValkeyConfig{
			Addr:       c.Valkey.URL,
			Password:   c.Valkey.Password,
			DB:         c.Valkey.DB,
			TLSEnabled: c.Valkey.TLSEnabled,
			KeyPrefix:  c.Valkey.KeyPrefix,
		},
		Postgres: credential.PostgresConfig{
			DatabaseURL: c.DatabaseURL,
			MaxConns:    int32(c.MaxConns),
		},
		EncryptionKey: key,
	}, nil
}

// loadDotEnv loads a .env file from the working directory if there is one.
// Variables already set in the environment win.
func loadDotEnv() {
	if _, err := os.Stat(".env"); err == nil {
		_ = godotenv.Load()
	}
}

// envString sets *dst from the env var when the flag was not explicitly set.
func envString(cmd *cobra.Command, flag, env string, dst *string) {
	if cmd.Flags().Changed(flag) {
		return
	}
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

func envBool(cmd *cobra.Command, flag, env string, dst *bool) {
	if cmd.Flags().Changed(flag) {
		return
	}
	if v := os.Getenv(env); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			*dst = parsed
		}
	}
}

func envInt(cmd *cobra.Command, flag, env string, dst *int) {
	if cmd.Flags().Changed(flag) {
		return
	}
	if v := os.Getenv(env); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			*dst = parsed
		}
	}
}

func envDuration(cmd *cobra.Command, flag, env string, dst *time.Duration) {
	if cmd.Flags().Changed(flag) {
		return
	}
	if v := os.Getenv(env); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			*dst = parsed
		}
	}
}

// loadServeEnvVars fills cfg from environment variables. Environment
// variables only override flag values when the flag was not explicitly set.
func loadServeEnvVars(cmd *cobra.Command, cfg *ServeConfig) {
	envString(cmd, "transport", "TRANSPORT", &cfg.Transport)
	envString(cmd, "http-addr", "HTTP_ADDR", &cfg.HTTPAddr)
	envString(cmd, "base-url", "BASE_URL", &cfg.BaseURL)
	envString(cmd, "user", "LIFEASSIST_USER", &cfg.User)
	envBool(cmd, "read-only", "READ_ONLY", &cfg.ReadOnly)
	envString(cmd, "log-level", "LOG_LEVEL", &cfg.LogLevel)
	envString(cmd, "log-format", "LOG_FORMAT", &cfg.LogFormat)

	loadGoogleEnvVars(cmd, &cfg.Google)

	envString(cmd, "session-secret", "SESSION_SECRET", &cfg.Session.Secret)
	envBool(cmd, "session-cookie-secure", "SESSION_COOKIE_SECURE", &cfg.Session.CookieSecure)
	envDuration(cmd, "session-ttl", "SESSION_TTL", &cfg.Session.TTL)
	envBool(cmd, "revoke-on-signout", "REVOKE_ON_SIGNOUT", &cfg.Session.RevokeOnSignOut)

	loadStorageEnvVars(cmd, &cfg.Storage)

	envString(cmd, "anthropic-api-key", "ANTHROPIC_API_KEY", &cfg.Assistant.APIKey)
	envString(cmd, "anthropic-model", "ANTHROPIC_MODEL", &cfg.Assistant.Model)

	envBool(cmd, "metrics-enabled", "METRICS_ENABLED", &cfg.Metrics.Enabled)
	envString(cmd, "metrics-addr", "METRICS_ADDR", &cfg.Metrics.Addr)

	// Secure cookies follow the scheme of the public URL unless set.
	if !cmd.Flags().Changed("session-cookie-secure") && os.Getenv("SESSION_COOKIE_SECURE") == "" {
		cfg.Session.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	}
}

// loadStorageEnvVars loads credential store configuration from environment
// variables for flags that were not explicitly set.
func loadStorageEnvVars(cmd *cobra.Command, cfg *StorageConfig) {
	envString(cmd, "credential-store", "CREDENTIAL_STORE", &cfg.Type)
	envString(cmd, "valkey-url", "VALKEY_URL", &cfg.Valkey.URL)
	envString(cmd, "valkey-password", "VALKEY_PASSWORD", &cfg.Valkey.Password)
	envBool(cmd, "valkey-tls", "VALKEY_TLS_ENABLED", &cfg.Valkey.TLSEnabled)
	envString(cmd, "valkey-key-prefix", "VALKEY_KEY_PREFIX", &cfg.Valkey.KeyPrefix)
	envInt(cmd, "valkey-db", "VALKEY_DB", &cfg.Valkey.DB)
	envString(cmd, "database-url", "DATABASE_URL", &cfg.DatabaseURL)
	envInt(cmd, "db-max-conns", "DB_MAX_CONNS", &cfg.MaxConns)
	envString(cmd, "credential-encryption-key", "CREDENTIAL_ENCRYPTION_KEY", &cfg.EncryptionKey)
	envString(cmd, "credential-encryption-passphrase", "CREDENTIAL_ENCRYPTION_PASSPHRASE", &cfg.EncryptionPassphrase)
}

// addStorageFlags registers the credential store flags on cmd.
func addStorageFlags(cmd *cobra.Command, cfg *StorageConfig) {
	cmd.Flags().StringVar(&cfg.Type, "credential-store", credential.BackendMemory, "Credential store: memory, valkey or postgres. Can also use CREDENTIAL_STORE env var.")
	cmd.Flags().StringVar(&cfg.Valkey.URL, "valkey-url", "", "Valkey server address (e.g., valkey.namespace.svc:6379). Can also use VALKEY_URL env var.")
	cmd.Flags().StringVar(&cfg.Valkey.Password, "valkey-password", "", "Valkey authentication password. Can also use VALKEY_PASSWORD env var.")
	cmd.Flags().BoolVar(&cfg.Valkey.TLSEnabled, "valkey-tls", false, "Enable TLS for Valkey connections. Can also use VALKEY_TLS_ENABLED env var.")
	cmd.Flags().StringVar(&cfg.Valkey.KeyPrefix, "valkey-key-prefix", "lifeassist:", "Prefix for all Valkey keys. Can also use VALKEY_KEY_PREFIX env var.")
	cmd.Flags().IntVar(&cfg.Valkey.DB, "valkey-db", 0, "Valkey database number. Can also use VALKEY_DB env var.")
	cmd.Flags().StringVar(&cfg.DatabaseURL, "database-url", "", "Postgres connection string. Can also use DATABASE_URL env var.")
	cmd.Flags().IntVar(&cfg.MaxConns, "db-max-conns", 0, "Maximum postgres connections (0 uses the pgx default). Can also use DB_MAX_CONNS env var.")
	cmd.Flags().StringVar(&cfg.EncryptionKey, "credential-encryption-key", "", "AES-256 key for tokens at rest (32 bytes, base64 encoded). Can also use CREDENTIAL_ENCRYPTION_KEY env var. Generate with: lifeassist credentials keygen")
	cmd.Flags().StringVar(&cfg.EncryptionPassphrase, "credential-encryption-passphrase", "", "Passphrase the token encryption key is derived from. Can also use CREDENTIAL_ENCRYPTION_PASSPHRASE env var.")
}

// addGoogleFlags registers the OAuth client flags on cmd.
func addGoogleFlags(cmd *cobra.Command, cfg *GoogleConfig) {
	cmd.Flags().StringVar(&cfg.ClientID, "google-client-id", "", "Google OAuth Client ID. Can also use GOOGLE_CLIENT_ID env var.")
	cmd.Flags().StringVar(&cfg.ClientSecret, "google-client-secret", "", "Google OAuth Client Secret. Can also use GOOGLE_CLIENT_SECRET env var.")
	cmd.Flags().StringSliceVar(&cfg.Scopes, "google-scopes", nil, "OAuth scopes to request instead of the defaults (comma-separated). Can also use GOOGLE_OAUTH_SCOPES env var.")
}

func loadGoogleEnvVars(cmd *cobra.Command, cfg *GoogleConfig) {
	envString(cmd, "google-client-id", "GOOGLE_CLIENT_ID", &cfg.ClientID)
	envString(cmd, "google-client-secret", "GOOGLE_CLIENT_SECRET", &cfg.ClientSecret)
	if !cmd.Flags().Changed("google-scopes") {
		if scopes := parseCommaSeparatedList(os.Getenv("GOOGLE_OAUTH_SCOPES")); len(scopes) > 0 {
			cfg.Scopes = scopes
		}
	}
}

// parseCommaSeparatedList parses a comma-separated string into a slice,
// trimming whitespace from each element and filtering out empty strings.
// Returns nil if the input is empty.
func parseCommaSeparatedList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
