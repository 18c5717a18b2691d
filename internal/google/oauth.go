package google

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// CallbackPath is where Google redirects after consent.
const CallbackPath = "/api/auth/callback/google"

// DefaultHTTPTimeout bounds every call to Google.
const DefaultHTTPTimeout = 30 * time.Second

// OAuthConfig holds the client registration.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	// BaseURL is the public origin of this service; the redirect URL is
	// BaseURL + CallbackPath.
	BaseURL string
	Scopes  []string
}

// NewOAuth2Config builds the oauth2 configuration for Google.
func NewOAuth2Config(cfg OAuthConfig) *oauth2.Config {
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = DefaultOAuthScopes
	}
	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  strings.TrimRight(cfg.BaseURL, "/") + CallbackPath,
		Scopes:       scopes,
	}
}

// NewHTTPClient returns a client for Google endpoints.
// HTTP/2 is disabled to avoid the stream errors seen against Google APIs.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:             http.ProxyFromEnvironment,
			ForceAttemptHTTP2: false,
		},
	}
}

// NewAuthenticatedClient returns an HTTP/1.1 client that attaches tokens
// from ts. base may be nil.
func NewAuthenticatedClient(ctx context.Context, ts oauth2.TokenSource, base *http.Client) *http.Client {
	if base == nil {
		base = NewHTTPClient(DefaultHTTPTimeout)
	}
	return &http.Client{
		Timeout: base.Timeout,
		Transport: &oauth2.Transport{
			Source: ts,
			Base:   base.Transport,
		},
	}
}

// WithHTTPClient returns a context that makes oauth2 use c for token requests.
func WithHTTPClient(ctx context.Context, c *http.Client) context.Context {
	if c == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, c)
}

// IsTokenExpired reports whether token has expired or will within threshold.
// A token without expiry never expires.
func IsTokenExpired(token *oauth2.Token, threshold time.Duration) bool {
	return IsExpiredAt(token.Expiry, threshold, time.Now())
}

// IsExpiredAt is IsTokenExpired with an explicit clock.
func IsExpiredAt(expiry time.Time, threshold time.Duration, now time.Time) bool {
	if expiry.IsZero() {
		return false
	}
	return !now.Add(threshold).Before(expiry)
}

// UserCacheDir returns the per-user cache directory used for CLI state.
func UserCacheDir() string {
	if dir, err := os.UserCacheDir(); err == nil && dir != "" {
		return dir
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(homeDir(), "Library", "Caches")
	case "windows":
		for _, ev := range []string{"TEMP", "TMP"} {
			if v := os.Getenv(ev); v != "" {
				return v
			}
		}
	}
	if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
		return xdg
	}
	return filepath.Join(homeDir(), ".cache")
}

func homeDir() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("HOMEDRIVE") + os.Getenv("HOMEPATH")
	}
	return os.Getenv("HOME")
}
