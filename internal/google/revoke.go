package google

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/teemow/lifeassist/internal/instrumentation"
)

// RevokeURL is Google's token revocation endpoint.
const RevokeURL = "https://oauth2.googleapis.com/revoke"

// Revoker invalidates a token at the provider.
type Revoker interface {
	Revoke(ctx context.Context, token string) error
}

// HTTPRevoker posts to the revocation endpoint.
type HTTPRevoker struct {
	endpoint   string
	httpClient *http.Client
	metrics    *instrumentation.Metrics
}

// NewHTTPRevoker creates a revoker. httpClient and metrics may be nil.
func NewHTTPRevoker(httpClient *http.Client, metrics *instrumentation.Metrics) *HTTPRevoker {
	if httpClient == nil {
		httpClient = NewHTTPClient(DefaultHTTPTimeout)
	}
	if metrics == nil {
		metrics = &instrumentation.Metrics{}
	}
	return &HTTPRevoker{endpoint: RevokeURL, httpClient: httpClient, metrics: metrics}
}

// WithEndpoint overrides the revocation URL, for tests.
func (r *HTTPRevoker) WithEndpoint(endpoint string) *HTTPRevoker {
	r.endpoint = endpoint
	return r
}

// Revoke revokes token. Revoking a refresh token also revokes the access
// tokens issued from it.
func (r *HTTPRevoker) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return fmt.Errorf("no token to revoke")
	}

	start := time.Now()
	form := url.Values{"token": {token}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to build revoke request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		r.metrics.RecordRemoteOperation(ctx, instrumentation.ServiceOAuth, instrumentation.OperationRevoke, instrumentation.StatusError, time.Since(start))
		return fmt.Errorf("revoke request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		r.metrics.RecordRemoteOperation(ctx, instrumentation.ServiceOAuth, instrumentation.OperationRevoke, instrumentation.StatusError, time.Since(start))
		return fmt.Errorf("revoke failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	r.metrics.RecordRemoteOperation(ctx, instrumentation.ServiceOAuth, instrumentation.OperationRevoke, instrumentation.StatusSuccess, time.Since(start))
	return nil
}
