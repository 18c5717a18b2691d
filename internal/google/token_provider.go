package google

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
)

// TokenProvider supplies a currently valid Google token for a user.
// The session broker implements it; Google API clients only depend on this.
type TokenProvider interface {
	GetTokenForAccount(ctx context.Context, userID string) (*oauth2.Token, error)
}

// TokenSource adapts a TokenProvider to oauth2.TokenSource for one user.
// Each Token call goes back to the provider, so long-lived API clients see
// refreshed tokens.
func TokenSource(ctx context.Context, p TokenProvider, userID string) oauth2.TokenSource {
	return &providerTokenSource{ctx: ctx, provider: p, userID: userID}
}

type providerTokenSource struct {
	ctx      context.Context
	provider TokenProvider
	userID   string
}

func (s *providerTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.provider.GetTokenForAccount(s.ctx, s.userID)
	if err != nil {
		return nil, fmt.Errorf("no usable token for user: %w", err)
	}
	return tok, nil
}

// StaticTokenProvider serves fixed tokens, keyed by user id. Useful for tests
// and for tools run against a token obtained elsewhere.
type StaticTokenProvider map[string]*oauth2.Token

// GetTokenForAccount returns the token registered for userID.
func (p StaticTokenProvider) GetTokenForAccount(_ context.Context, userID string) (*oauth2.Token, error) {
	tok, ok := p[userID]
	if !ok {
		return nil, fmt.Errorf("no token for user %q", userID)
	}
	return tok, nil
}
