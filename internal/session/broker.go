package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	mcpoauth "github.com/giantswarm/mcp-oauth"
	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/teemow/lifeassist/internal/credential"
	"github.com/teemow/lifeassist/internal/google"
	"github.com/teemow/lifeassist/internal/instrumentation"
	"github.com/teemow/lifeassist/internal/logging"
)

const (
	// DefaultRefreshThreshold is how close to expiry a token may get before
	// GetActiveAccessToken renews it.
	DefaultRefreshThreshold = 5 * time.Minute

	// defaultTokenLifetime is assumed when the provider omits expires_in.
	defaultTokenLifetime = time.Hour
)

// Config wires a Broker. OAuth2, Store, Refresher and Profiles are required.
type Config struct {
	OAuth2     *oauth2.Config
	Store      credential.Store
	Refresher  google.Refresher
	Profiles   google.ProfileFetcher
	Revoker    google.Revoker
	HTTPClient *http.Client

	RefreshThreshold time.Duration
	FlowTTL          time.Duration
	// RevokeOnSignOut revokes the grant at Google and clears the stored
	// tokens on EndSession. The profile record is always kept.
	RevokeOnSignOut bool

	Metrics *instrumentation.Metrics
	Audit   *instrumentation.AuditLogger
	Logger  *slog.Logger
	Now     func() time.Time
}

// Broker owns the sign-in, token renewal and sign-out lifecycle.
type Broker struct {
	oauth      *oauth2.Config
	store      credential.Store
	refresher  google.Refresher
	profiles   google.ProfileFetcher
	revoker    google.Revoker
	httpClient *http.Client

	threshold       time.Duration
	flowTTL         time.Duration
	revokeOnSignOut bool

	flows   *FlowStore
	refresh singleflight.Group

	metrics *instrumentation.Metrics
	audit   *instrumentation.AuditLogger
	logger  *slog.Logger
	now     func() time.Time
}

// NewBroker validates cfg and creates a Broker. Close releases its
// background resources.
func NewBroker(cfg Config) (*Broker, error) {
	if cfg.OAuth2 == nil {
		return nil, fmt.Errorf("oauth2 config is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("credential store is required")
	}
	if cfg.Refresher == nil {
		return nil, fmt.Errorf("token refresher is required")
	}
	if cfg.Profiles == nil {
		return nil, fmt.Errorf("profile fetcher is required")
	}

	b := &Broker{
		oauth:           cfg.OAuth2,
		store:           cfg.Store,
		refresher:       cfg.Refresher,
		profiles:        cfg.Profiles,
		revoker:         cfg.Revoker,
		httpClient:      cfg.HTTPClient,
		threshold:       cfg.RefreshThreshold,
		flowTTL:         cfg.FlowTTL,
		revokeOnSignOut: cfg.RevokeOnSignOut,
		metrics:         cfg.Metrics,
		audit:           cfg.Audit,
		logger:          cfg.Logger,
		now:             cfg.Now,
	}
	if b.threshold <= 0 {
		b.threshold = DefaultRefreshThreshold
	}
	if b.flowTTL <= 0 {
		b.flowTTL = DefaultFlowTTL
	}
	if b.metrics == nil {
		b.metrics = &instrumentation.Metrics{}
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	if b.now == nil {
		b.now = time.Now
	}
	b.flows = newFlowStore(b.logger, b.now)

	return b, nil
}

// Close stops the flow cleanup goroutine. It does not close the store.
func (b *Broker) Close() {
	b.flows.Stop()
}

// SignInOptions tunes the consent redirect.
type SignInOptions struct {
	// ReturnTo is a relative path to land on after sign-in.
	ReturnTo string
	// LoginHint pre-selects the Google account.
	LoginHint string
	// Silent asks Google not to show any UI (prompt=none).
	Silent bool
}

// BeginInteractiveSignIn records a pending flow and returns the Google
// consent URL to redirect the user to.
func (b *Broker) BeginInteractiveSignIn(ctx context.Context, opts SignInOptions) (string, error) {
	state, err := randomState()
	if err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}

	flow := &Flow{
		ID:        ulid.Make().String(),
		Verifier:  oauth2.GenerateVerifier(),
		ReturnTo:  SanitizeReturnTo(opts.ReturnTo),
		Silent:    opts.Silent,
		ExpiresAt: b.now().Add(b.flowTTL),
	}
	b.flows.Save(state, flow)

	params := []oauth2.AuthCodeOption{
		oauth2.AccessTypeOffline,
		oauth2.S256ChallengeOption(flow.Verifier),
	}
	if opts.Silent {
		params = append(params, oauth2.SetAuthURLParam("prompt", "none"))
	} else {
		params = append(params, oauth2.ApprovalForce)
	}
	if opts.LoginHint != "" {
		params = append(params, oauth2.SetAuthURLParam("login_hint", opts.LoginHint))
	}

	b.logger.DebugContext(ctx, "Starting sign-in",
		logging.Operation("sign_in.begin"),
		slog.String("flow_id", flow.ID),
		slog.Bool("silent", opts.Silent),
	)

	return b.oauth.AuthCodeURL(state, params...), nil
}

// Callback carries the query parameters of the provider redirect.
type Callback struct {
	Code             string
	State            string
	Error            string
	ErrorDescription string
	ErrorURI         string
}

// CallbackFromQuery reads a Callback from redirect query parameters.
func CallbackFromQuery(q url.Values) Callback {
	return Callback{
		Code:             q.Get("code"),
		State:            q.Get("state"),
		Error:            q.Get("error"),
		ErrorDescription: q.Get("error_description"),
		ErrorURI:         q.Get("error_uri"),
	}
}

// SignInResult is returned by a successful CompleteInteractiveSignIn.
type SignInResult struct {
	Credential *credential.Credential
	ReturnTo   string
}

// CompleteInteractiveSignIn exchanges the authorization code, fetches the
// profile and persists the credential. Any failure is a *SignInError.
func (b *Broker) CompleteInteractiveSignIn(ctx context.Context, cb Callback) (*SignInResult, error) {
	ctx, span := instrumentation.StartSpan(ctx, "session.complete_sign_in")
	defer span.End()

	res, err := b.completeSignIn(ctx, cb)
	if err != nil {
		var sie *SignInError
		result := instrumentation.OAuthResultFailure
		if errors.As(err, &sie) && sie.Silent {
			result = instrumentation.OAuthResultSilent
		}
		b.metrics.RecordSignIn(ctx, result, "")
		b.audit.LogSessionEvent(instrumentation.SessionEvent{
			Event:  instrumentation.SessionEventSignIn,
			Reason: signInReason(err),
		})
		b.logger.WarnContext(ctx, "Sign-in failed", logging.Operation("sign_in.complete"), logging.Err(err))
		instrumentation.SetSpanError(span, err)
		return nil, err
	}

	cred := res.Credential
	b.metrics.RecordSignIn(ctx, instrumentation.OAuthResultSuccess, cred.Email)
	b.audit.LogSessionEvent(instrumentation.SessionEvent{
		Event:   instrumentation.SessionEventSignIn,
		UserID:  cred.UserID,
		Email:   cred.Email,
		Success: true,
	})
	b.logger.InfoContext(ctx, "User signed in",
		logging.Operation("sign_in.complete"),
		logging.UserID(cred.UserID),
		logging.Domain(cred.Email),
	)
	instrumentation.SetSpanSuccess(span)
	return res, nil
}

func (b *Broker) completeSignIn(ctx context.Context, cb Callback) (*SignInResult, error) {
	result := mcpoauth.ParseCallbackQuery(cb.Code, cb.State, cb.Error, cb.ErrorDescription, cb.ErrorURI)

	flow, ok := b.flows.Take(result.State)
	if err := result.Err(); err != nil {
		reason := result.Error
		if reason == "" {
			reason = "provider_error"
		}
		return nil, &SignInError{Reason: reason, Silent: mcpoauth.IsSilentAuthError(err), Err: err}
	}
	if !ok {
		return nil, &SignInError{Reason: "invalid_state", Err: ErrInvalidState}
	}
	if result.Code == "" {
		return nil, &SignInError{Reason: "missing_code"}
	}

	tok, err := b.oauth.Exchange(google.WithHTTPClient(ctx, b.httpClient), result.Code, oauth2.VerifierOption(flow.Verifier))
	if err != nil {
		return nil, &SignInError{Reason: "exchange_failed", Err: err}
	}

	profile, err := b.profiles.FetchProfile(ctx, tok)
	if err != nil {
		return nil, &SignInError{Reason: "profile_failed", Err: err}
	}

	expiry := tok.Expiry
	if expiry.IsZero() {
		expiry = b.now().Add(defaultTokenLifetime)
	}
	cred := &credential.Credential{
		UserID:               profile.Sub,
		Email:                credential.NormalizeEmail(profile.Email),
		Name:                 profile.Name,
		ImageURL:             profile.Picture,
		AccessToken:          tok.AccessToken,
		RefreshToken:         tok.RefreshToken,
		AccessTokenExpiresAt: expiry,
	}
	if err := cred.Validate(); err != nil {
		return nil, &SignInError{Reason: "invalid_credential", Err: err}
	}

	// An empty refresh token is left out of the merge, keeping the one
	// granted at first consent.
	if err := b.store.Save(ctx, cred.UserID, credential.UpdateFromCredential(cred)); err != nil {
		return nil, &SignInError{Reason: "store_failed", Err: err}
	}

	return &SignInResult{Credential: cred, ReturnTo: flow.ReturnTo}, nil
}

// ActiveToken is a valid access token together with the profile it belongs to.
type ActiveToken struct {
	UserID      string
	Email       string
	Name        string
	ImageURL    string
	AccessToken string
	ExpiresAt   time.Time
	// Refreshed is set when this call renewed the token.
	Refreshed bool
}

// Token converts a to an oauth2 token. The refresh token never leaves the broker.
func (a *ActiveToken) Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken: a.AccessToken,
		TokenType:   "Bearer",
		Expiry:      a.ExpiresAt,
	}
}

// GetActiveAccessToken returns an access token for userID that is valid for
// at least the refresh threshold, renewing it if needed.
//
// Concurrent calls for one user share a single refresh. Inside the refresh
// the credential is read again, so a caller that lost the race reuses the
// token the winner persisted instead of refreshing twice.
func (b *Broker) GetActiveAccessToken(ctx context.Context, userID string) (*ActiveToken, error) {
	ctx, span := instrumentation.StartSpan(ctx, "session.get_active_token",
		instrumentation.NewSpanAttributeBuilder().WithUser(logging.AnonymizeUserID(userID)).Build()...)
	defer span.End()

	at, err := b.getActiveAccessToken(ctx, userID)
	if err != nil {
		instrumentation.SetSpanError(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.Bool(instrumentation.SpanAttrRefreshed, at.Refreshed))
	instrumentation.SetSpanSuccess(span)
	return at, nil
}

func (b *Broker) getActiveAccessToken(ctx context.Context, userID string) (*ActiveToken, error) {
	if userID == "" {
		return nil, notFound(userID, nil)
	}

	cred, err := b.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !b.needsRefresh(cred) {
		return activeToken(cred, false), nil
	}

	// The flight outlives a cancelled caller so the others still get a result.
	v, err, shared := b.refresh.Do(userID, func() (any, error) {
		return b.refreshCredential(context.WithoutCancel(ctx), userID)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		b.logger.DebugContext(ctx, "Shared in-flight token refresh", logging.UserID(userID))
	}
	return v.(*ActiveToken), nil
}

func (b *Broker) refreshCredential(ctx context.Context, userID string) (*ActiveToken, error) {
	ctx, span := instrumentation.StartSpan(ctx, "session.refresh",
		instrumentation.NewSpanAttributeBuilder().WithUser(logging.AnonymizeUserID(userID)).Build()...)
	defer span.End()

	cred, err := b.load(ctx, userID)
	if err != nil {
		instrumentation.SetSpanError(span, err)
		return nil, err
	}
	if !b.needsRefresh(cred) {
		return activeToken(cred, false), nil
	}

	if cred.RefreshToken == "" {
		err := expired(userID, &google.RefreshError{Reason: google.ReasonNoRefreshToken})
		b.metrics.RecordOAuthTokenRefresh(ctx, instrumentation.OAuthResultExpired)
		instrumentation.SetSpanError(span, err)
		return nil, err
	}

	tok, err := b.refresher.Refresh(ctx, cred.RefreshToken)
	if err != nil {
		b.metrics.RecordOAuthTokenRefresh(ctx, instrumentation.OAuthResultFailure)
		b.audit.LogSessionEvent(instrumentation.SessionEvent{
			Event:  instrumentation.SessionEventRefresh,
			UserID: userID,
			Email:  cred.Email,
			Reason: refreshReason(err),
		})
		b.logger.WarnContext(ctx, "Token refresh failed, re-authentication required",
			logging.UserID(userID),
			logging.Err(err),
		)
		err = expired(userID, err)
		instrumentation.SetSpanError(span, err)
		return nil, err
	}

	if tok.Expiry.IsZero() {
		tok.Expiry = b.now().Add(defaultTokenLifetime)
	}
	upd := credential.UpdateFromToken(tok)
	if err := b.store.Save(ctx, userID, upd); err != nil {
		b.metrics.RecordOAuthTokenRefresh(ctx, instrumentation.OAuthResultFailure)
		instrumentation.SetSpanError(span, err)
		return nil, fmt.Errorf("failed to persist refreshed token: %w", err)
	}
	upd.Apply(cred, b.now())

	b.metrics.RecordOAuthTokenRefresh(ctx, instrumentation.OAuthResultSuccess)
	b.audit.LogSessionEvent(instrumentation.SessionEvent{
		Event:   instrumentation.SessionEventRefresh,
		UserID:  userID,
		Email:   cred.Email,
		Success: true,
	})
	b.logger.DebugContext(ctx, "Refreshed access token",
		logging.UserID(userID),
		slog.Time("expires_at", cred.AccessTokenExpiresAt),
	)
	instrumentation.SetSpanSuccess(span)
	return activeToken(cred, true), nil
}

// GetTokenForAccount implements google.TokenProvider.
func (b *Broker) GetTokenForAccount(ctx context.Context, userID string) (*oauth2.Token, error) {
	at, err := b.GetActiveAccessToken(ctx, userID)
	if err != nil {
		return nil, err
	}
	return at.Token(), nil
}

// LookupByEmail finds the stored credential for email. Tokens are stripped.
func (b *Broker) LookupByEmail(ctx context.Context, email string) (*credential.Credential, error) {
	email = credential.NormalizeEmail(email)
	if email == "" {
		return nil, notFound("", nil)
	}
	cred, err := b.store.GetByEmail(ctx, email)
	if errors.Is(err, credential.ErrNotFound) {
		return nil, notFound("", err)
	}
	if err != nil {
		return nil, err
	}
	return profileOnly(cred), nil
}

// Profile returns the stored profile for userID without renewing anything.
// Tokens are stripped.
func (b *Broker) Profile(ctx context.Context, userID string) (*credential.Credential, error) {
	cred, err := b.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	return profileOnly(cred), nil
}

// EndSession signs userID out. The stored profile is kept so a later
// sign-in is a soft re-login. With RevokeOnSignOut the grant is revoked at
// Google and the stored tokens are cleared. Client pointers are the
// caller's to clear.
func (b *Broker) EndSession(ctx context.Context, userID string) error {
	ctx, span := instrumentation.StartSpan(ctx, "session.end",
		instrumentation.NewSpanAttributeBuilder().WithUser(logging.AnonymizeUserID(userID)).Build()...)
	defer span.End()

	b.audit.LogSessionEvent(instrumentation.SessionEvent{
		Event:   instrumentation.SessionEventSignOut,
		UserID:  userID,
		Success: true,
	})
	if !b.revokeOnSignOut || userID == "" {
		return nil
	}

	cred, err := b.store.Get(ctx, userID)
	if errors.Is(err, credential.ErrNotFound) {
		return nil
	}
	if err != nil {
		instrumentation.SetSpanError(span, err)
		return err
	}

	var revokeErr error
	token := cred.RefreshToken
	if token == "" {
		token = cred.AccessToken
	}
	if token != "" && b.revoker != nil {
		if err := b.revoker.Revoke(ctx, token); err != nil {
			revokeErr = NewRemoteServiceError(instrumentation.ServiceOAuth, instrumentation.OperationRevoke, err)
			b.logger.WarnContext(ctx, "Token revocation failed", logging.UserID(userID), logging.Err(err))
		}
		b.audit.LogSessionEvent(instrumentation.SessionEvent{
			Event:   instrumentation.SessionEventRevoke,
			UserID:  userID,
			Email:   cred.Email,
			Success: revokeErr == nil,
		})
	}

	cleared := credential.Update{
		AccessToken:          credential.String(""),
		RefreshToken:         credential.String(""),
		AccessTokenExpiresAt: credential.Time(b.now().Add(-time.Minute)),
	}
	if err := b.store.Save(ctx, userID, cleared); err != nil {
		instrumentation.SetSpanError(span, err)
		return errors.Join(revokeErr, err)
	}

	if revokeErr != nil {
		instrumentation.SetSpanError(span, revokeErr)
	}
	return revokeErr
}

// Ping checks the credential store.
func (b *Broker) Ping(ctx context.Context) error {
	return b.store.Ping(ctx)
}

func (b *Broker) load(ctx context.Context, userID string) (*credential.Credential, error) {
	cred, err := b.store.Get(ctx, userID)
	if errors.Is(err, credential.ErrNotFound) {
		return nil, notFound(userID, err)
	}
	if err != nil {
		return nil, err
	}
	return cred, nil
}

func (b *Broker) needsRefresh(c *credential.Credential) bool {
	if c.AccessToken == "" || c.AccessTokenExpiresAt.IsZero() {
		return true
	}
	return google.IsExpiredAt(c.AccessTokenExpiresAt, b.threshold, b.now())
}

func activeToken(c *credential.Credential, refreshed bool) *ActiveToken {
	return &ActiveToken{
		UserID:      c.UserID,
		Email:       c.Email,
		Name:        c.Name,
		ImageURL:    c.ImageURL,
		AccessToken: c.AccessToken,
		ExpiresAt:   c.AccessTokenExpiresAt,
		Refreshed:   refreshed,
	}
}

func profileOnly(c *credential.Credential) *credential.Credential {
	out := c.Clone()
	out.AccessToken = ""
	out.RefreshToken = ""
	return out
}

func refreshReason(err error) string {
	var re *google.RefreshError
	if errors.As(err, &re) {
		return re.Reason
	}
	return "refresh_failed"
}

func signInReason(err error) string {
	var sie *SignInError
	if errors.As(err, &sie) {
		return sie.Reason
	}
	return "sign_in_failed"
}

func randomState() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// SanitizeReturnTo keeps only same-origin relative paths. Everything else
// becomes "/".
func SanitizeReturnTo(returnTo string) string {
	if returnTo == "" || !strings.HasPrefix(returnTo, "/") ||
		strings.HasPrefix(returnTo, "//") || strings.Contains(returnTo, `\`) {
		return "/"
	}
	u, err := url.Parse(returnTo)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return "/"
	}
	return returnTo
}
