package google

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	oauth2v2 "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"

	"github.com/teemow/lifeassist/internal/instrumentation"
)

// Profile is the subset of the userinfo response stored with a credential.
type Profile struct {
	Sub           string
	Email         string
	EmailVerified bool
	Name          string
	Picture       string
}

// ProfileFetcher reads the signed-in user's profile.
type ProfileFetcher interface {
	FetchProfile(ctx context.Context, token *oauth2.Token) (*Profile, error)
}

// UserinfoFetcher calls the Google userinfo endpoint.
type UserinfoFetcher struct {
	httpClient *http.Client
	endpoint   string
	metrics    *instrumentation.Metrics
}

// NewUserinfoFetcher creates a fetcher. httpClient and metrics may be nil.
func NewUserinfoFetcher(httpClient *http.Client, metrics *instrumentation.Metrics) *UserinfoFetcher {
	if metrics == nil {
		metrics = &instrumentation.Metrics{}
	}
	return &UserinfoFetcher{httpClient: httpClient, metrics: metrics}
}

// WithEndpoint points the fetcher at another base URL, for tests.
func (f *UserinfoFetcher) WithEndpoint(endpoint string) *UserinfoFetcher {
	f.endpoint = endpoint
	return f
}

// FetchProfile returns the profile for token. A response without subject or
// email is an error.
func (f *UserinfoFetcher) FetchProfile(ctx context.Context, token *oauth2.Token) (*Profile, error) {
	ctx, span := instrumentation.StartRemoteSpan(ctx, instrumentation.ServiceUserinfo, instrumentation.OperationProfile)
	defer span.End()
	start := time.Now()

	opts := []option.ClientOption{
		option.WithHTTPClient(NewAuthenticatedClient(ctx, oauth2.StaticTokenSource(token), f.httpClient)),
	}
	if f.endpoint != "" {
		opts = append(opts, option.WithEndpoint(f.endpoint))
	}

	svc, err := oauth2v2.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create userinfo service: %w", err)
	}

	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		f.metrics.RecordRemoteOperation(ctx, instrumentation.ServiceUserinfo, instrumentation.OperationProfile, instrumentation.StatusError, time.Since(start))
		instrumentation.SetSpanError(span, err)
		return nil, fmt.Errorf("failed to fetch user profile: %w", err)
	}
	f.metrics.RecordRemoteOperation(ctx, instrumentation.ServiceUserinfo, instrumentation.OperationProfile, instrumentation.StatusSuccess, time.Since(start))

	if info.Id == "" || info.Email == "" {
		err := fmt.Errorf("user profile is missing id or email")
		instrumentation.SetSpanError(span, err)
		return nil, err
	}
	instrumentation.SetSpanSuccess(span)

	p := &Profile{
		Sub:     info.Id,
		Email:   info.Email,
		Name:    info.Name,
		Picture: info.Picture,
	}
	if info.VerifiedEmail != nil {
		p.EmailVerified = *info.VerifiedEmail
	}
	return p, nil
}
