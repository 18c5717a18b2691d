package cmd

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/lifeassist/internal/credential"
	"github.com/teemow/lifeassist/internal/server"
)

func TestParseCommaSeparatedList(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{
			name:     "empty string",
			input:    "",
			expected: nil,
		},
		{
			name:     "single value",
			input:    "openid",
			expected: []string{"openid"},
		},
		{
			name:     "values with spaces around comma",
			input:    "openid, email",
			expected: []string{"openid", "email"},
		},
		{
			name:     "values with leading/trailing spaces",
			input:    "  openid  ,  email  ",
			expected: []string{"openid", "email"},
		},
		{
			name:     "trailing and leading commas",
			input:    ",openid,email,",
			expected: []string{"openid", "email"},
		},
		{
			name:     "multiple consecutive commas",
			input:    "openid,,email",
			expected: []string{"openid", "email"},
		},
		{
			name:     "only commas and spaces",
			input:    ",  , , ",
			expected: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := parseCommaSeparatedList(tt.input)
			if tt.expected == nil {
				assert.Nil(t, result)
				return
			}
			assert.Equal(t, tt.expected, result)
		})
	}
}

func validServeConfig() ServeConfig {
	return ServeConfig{
		Transport: transportHTTP,
		Google:    GoogleConfig{ClientID: "id", ClientSecret: "secret"},
		Session:   SessionConfig{Secret: strings.Repeat("s", server.MinSessionSecretLength)},
		Storage:   StorageConfig{Type: credential.BackendMemory},
	}
}

func TestServeConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*ServeConfig)
		wantErr string
	}{
		{name: "valid", mutate: func(*ServeConfig) {}},
		{name: "unknown transport", mutate: func(c *ServeConfig) { c.Transport = "sse" }, wantErr: "unsupported transport"},
		{name: "missing client id", mutate: func(c *ServeConfig) { c.Google.ClientID = "" }, wantErr: "client id and secret"},
		{name: "missing client secret", mutate: func(c *ServeConfig) { c.Google.ClientSecret = "" }, wantErr: "client id and secret"},
		{name: "short session secret", mutate: func(c *ServeConfig) { c.Session.Secret = "short" }, wantErr: "session secret"},
		{name: "stdio needs no session secret", mutate: func(c *ServeConfig) {
			c.Transport = transportStdio
			c.Session.Secret = ""
		}},
		{name: "negative ttl", mutate: func(c *ServeConfig) { c.Session.TTL = -time.Hour }, wantErr: "ttl"},
		{name: "valkey without url", mutate: func(c *ServeConfig) { c.Storage.Type = credential.BackendValkey }, wantErr: "valkey URL"},
		{name: "postgres without url", mutate: func(c *ServeConfig) { c.Storage.Type = credential.BackendPostgres }, wantErr: "database URL"},
		{name: "unknown store", mutate: func(c *ServeConfig) { c.Storage.Type = "sqlite" }, wantErr: "unsupported credential store"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validServeConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestStorageConfig_EncryptionKeyBytes(t *testing.T) {
	key, err := (&StorageConfig{}).EncryptionKeyBytes()
	require.NoError(t, err)
	assert.Nil(t, key)

	raw, err := credential.GenerateKey()
	require.NoError(t, err)
	key, err = (&StorageConfig{EncryptionKey: credential.KeyToBase64(raw)}).EncryptionKeyBytes()
	require.NoError(t, err)
	assert.Equal(t, raw, key)

	_, err = (&StorageConfig{EncryptionKey: "not-base64!"}).EncryptionKeyBytes()
	assert.Error(t, err)

	a, err := (&StorageConfig{EncryptionPassphrase: "correct horse"}).EncryptionKeyBytes()
	require.NoError(t, err)
	b, err := (&StorageConfig{EncryptionPassphrase: "correct horse"}).EncryptionKeyBytes()
	require.NoError(t, err)
	assert.Len(t, a, 32)
	assert.Equal(t, a, b)
}

func TestStorageConfig_CredentialConfig(t *testing.T) {
	cfg := StorageConfig{
		Type:        credential.BackendValkey,
		Valkey:      ValkeyStorageConfig{URL: "valkey:6379", DB: 2, KeyPrefix: "la:"},
		DatabaseURL: "postgres://localhost/la",
		MaxConns:    8,
	}
	out, err := cfg.CredentialConfig()
	require.NoError(t, err)
	assert.Equal(t, credential.BackendValkey, out.Backend)
	assert.Equal(t, "valkey:6379", out.Valkey.Addr)
	assert.Equal(t, 2, out.Valkey.DB)
	assert.Equal(t, "la:", out.Valkey.KeyPrefix)
	assert.Equal(t, int32(8), out.Postgres.MaxConns)
	assert.Nil(t, out.EncryptionKey)
}

// parseServeFlags runs the serve command's flag parsing without starting it.
func parseServeFlags(t *testing.T, args ...string) (*cobra.Command, *ServeConfig) {
	t.Helper()
	cfg := &ServeConfig{}
	cmd := &cobra.Command{Use: "serve"}
	cmd.Flags().StringVar(&cfg.Transport, "transport", transportHTTP, "")
	cmd.Flags().StringVar(&cfg.HTTPAddr, "http-addr", ":8080", "")
	cmd.Flags().StringVar(&cfg.BaseURL, "base-url", "", "")
	cmd.Flags().StringVar(&cfg.User, "user", "", "")
	cmd.Flags().BoolVar(&cfg.ReadOnly, "read-only", false, "")
	cmd.Flags().StringVar(&cfg.LogLevel, "log-level", "info", "")
	cmd.Flags().StringVar(&cfg.LogFormat, "log-format", "text", "")
	addGoogleFlags(cmd, &cfg.Google)
	cmd.Flags().StringVar(&cfg.Session.Secret, "session-secret", "", "")
	cmd.Flags().BoolVar(&cfg.Session.CookieSecure, "session-cookie-secure", false, "")
	cmd.Flags().DurationVar(&cfg.Session.TTL, "session-ttl", server.DefaultSessionTTL, "")
	cmd.Flags().BoolVar(&cfg.Session.RevokeOnSignOut, "revoke-on-signout", false, "")
	addStorageFlags(cmd, &cfg.Storage)
	cmd.Flags().StringVar(&cfg.Assistant.APIKey, "anthropic-api-key", "", "")
	cmd.Flags().StringVar(&cfg.Assistant.Model, "anthropic-model", "", "")
	cmd.Flags().BoolVar(&cfg.Metrics.Enabled, "metrics-enabled", true, "")
	cmd.Flags().StringVar(&cfg.Metrics.Addr, "metrics-addr", ":9090", "")
	require.NoError(t, cmd.ParseFlags(args))
	return cmd, cfg
}

func TestLoadServeEnvVars(t *testing.T) {
	t.Setenv("GOOGLE_CLIENT_ID", "env-id")
	t.Setenv("GOOGLE_CLIENT_SECRET", "env-secret")
	t.Setenv("GOOGLE_OAUTH_SCOPES", "openid, email")
	t.Setenv("BASE_URL", "https://assist.example.com")
	t.Setenv("SESSION_TTL", "48h")
	t.Setenv("REVOKE_ON_SIGNOUT", "true")
	t.Setenv("CREDENTIAL_STORE", "valkey")
	t.Setenv("VALKEY_URL", "valkey:6379")
	t.Setenv("VALKEY_DB", "3")
	t.Setenv("METRICS_ENABLED", "false")

	cmd, cfg := parseServeFlags(t, "--google-client-id", "flag-id")
	loadServeEnvVars(cmd, cfg)

	// Explicit flags win over the environment.
	assert.Equal(t, "flag-id", cfg.Google.ClientID)
	assert.Equal(t, "env-secret", cfg.Google.ClientSecret)
	assert.Equal(t, []string{"openid", "email"}, cfg.Google.Scopes)
	assert.Equal(t, "https://assist.example.com", cfg.BaseURL)
	assert.Equal(t, 48*time.Hour, cfg.Session.TTL)
	assert.True(t, cfg.Session.RevokeOnSignOut)
	assert.Equal(t, "valkey", cfg.Storage.Type)
	assert.Equal(t, "valkey:6379", cfg.Storage.Valkey.URL)
	assert.Equal(t, 3, cfg.Storage.Valkey.DB)
	assert.False(t, cfg.Metrics.Enabled)
	// https base URLs get secure cookies.
	assert.True(t, cfg.Session.CookieSecure)
}

func TestLoadServeEnvVars_InvalidValuesKeepDefaults(t *testing.T) {
	t.Setenv("SESSION_TTL", "a while")
	t.Setenv("VALKEY_DB", "zero")

	cmd, cfg := parseServeFlags(t)
	loadServeEnvVars(cmd, cfg)

	assert.Equal(t, server.DefaultSessionTTL, cfg.Session.TTL)
	assert.Equal(t, 0, cfg.Storage.Valkey.DB)
	assert.False(t, cfg.Session.CookieSecure)
}

func TestLoadServeEnvVars_ExplicitCookieFlag(t *testing.T) {
	t.Setenv("BASE_URL", "https://assist.example.com")

	cmd, cfg := parseServeFlags(t, "--session-cookie-secure=false")
	loadServeEnvVars(cmd, cfg)

	assert.False(t, cfg.Session.CookieSecure)
}
