package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/teemow/lifeassist/internal/instrumentation"
)

// ReasonNoRefreshToken is the RefreshError reason when there is nothing to exchange.
const ReasonNoRefreshToken = "no refresh token available"

// RefreshError means the refresh token could not be exchanged. Callers
// treat it as "sign in again", never as a transient failure.
type RefreshError struct {
	// Reason is the provider error code (e.g. invalid_grant) or a short description.
	Reason string
	Err    error
}

func (e *RefreshError) Error() string {
	if e.Err == nil {
		return "token refresh failed: " + e.Reason
	}
	return fmt.Sprintf("token refresh failed: %s: %v", e.Reason, e.Err)
}

func (e *RefreshError) Unwrap() error {
	return e.Err
}

// Refresher exchanges a refresh token for a new access token.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

// OAuthRefresher refreshes against the token endpoint of an oauth2.Config.
// It makes exactly one attempt per call.
type OAuthRefresher struct {
	config     *oauth2.Config
	httpClient *http.Client
	metrics    *instrumentation.Metrics
}

// NewOAuthRefresher creates a refresher. httpClient and metrics may be nil.
func NewOAuthRefresher(config *oauth2.Config, httpClient *http.Client, metrics *instrumentation.Metrics) *OAuthRefresher {
	if metrics == nil {
		metrics = &instrumentation.Metrics{}
	}
	return &OAuthRefresher{config: config, httpClient: httpClient, metrics: metrics}
}

// Refresh performs the exchange. An empty refresh token fails without any
// network call. The returned token's RefreshToken is non-empty only when
// there is one to keep.
func (r *OAuthRefresher) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	if refreshToken == "" {
		return nil, &RefreshError{Reason: ReasonNoRefreshToken}
	}

	ctx, span := instrumentation.StartRemoteSpan(ctx, instrumentation.ServiceOAuth, instrumentation.OperationRefresh)
	defer span.End()

	start := time.Now()
	ctx = WithHTTPClient(ctx, r.httpClient)

	// Expiry in the past forces the token source to hit the endpoint.
	tok, err := r.config.TokenSource(ctx, &oauth2.Token{
		RefreshToken: refreshToken,
		Expiry:       time.Unix(1, 0),
	}).Token()
	if err != nil {
		r.metrics.RecordRemoteOperation(ctx, instrumentation.ServiceOAuth, instrumentation.OperationRefresh, instrumentation.StatusError, time.Since(start))
		instrumentation.SetSpanError(span, err)
		return nil, &RefreshError{Reason: refreshReason(err), Err: err}
	}

	r.metrics.RecordRemoteOperation(ctx, instrumentation.ServiceOAuth, instrumentation.OperationRefresh, instrumentation.StatusSuccess, time.Since(start))
	instrumentation.SetSpanSuccess(span)
	return tok, nil
}

func refreshReason(err error) string {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		if re.ErrorCode != "" {
			return re.ErrorCode
		}
		if re.Response != nil {
			return fmt.Sprintf("token endpoint returned %d", re.Response.StatusCode)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return "request cancelled"
	}
	return "token endpoint request failed"
}
