package calendar

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/oauth2"

	"github.com/teemow/lifeassist/internal/google"
	"github.com/teemow/lifeassist/internal/logging"
	"github.com/teemow/lifeassist/internal/session"
)

// Window of UpcomingEvents, relative to now.
const (
	UpcomingLookBack  = 30 * 24 * time.Hour
	UpcomingLookAhead = 365 * 24 * time.Hour

	DefaultUpcomingMax = 10
)

// Service builds per-user clients from a token provider.
type Service struct {
	tokens google.TokenProvider
	cfg    ClientConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a Service. logger may be nil.
func NewService(tokens google.TokenProvider, cfg ClientConfig, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{tokens: tokens, cfg: cfg, logger: logger, now: time.Now}
}

// ForUser returns a client for userID. The token is checked up front so
// that a signed-out user gets a session error rather than a failed API call.
// Later calls on the client go back to the provider when the token expires.
func (s *Service) ForUser(ctx context.Context, userID string) (*Client, error) {
	tok, err := s.tokens.GetTokenForAccount(ctx, userID)
	if err != nil {
		return nil, err
	}
	ts := oauth2.ReuseTokenSource(tok, google.TokenSource(ctx, s.tokens, userID))
	return NewClient(ctx, ts, s.cfg)
}

// UpcomingEvents lists up to max events from 30 days ago to a year ahead on
// the primary calendar. A failing Calendar API yields an empty list so
// callers can carry on without calendar context; session errors are still
// returned.
func (s *Service) UpcomingEvents(ctx context.Context, userID string, max int) ([]EventSummary, error) {
	if max <= 0 {
		max = DefaultUpcomingMax
	}

	client, err := s.ForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	events, err := client.ListEvents(ctx, PrimaryCalendar, now.Add(-UpcomingLookBack), now.Add(UpcomingLookAhead), "", max)
	if err != nil {
		if session.IsRemoteServiceError(err) {
			s.logger.WarnContext(ctx, "Calendar unavailable, continuing without events",
				logging.UserID(userID),
				logging.Err(err),
			)
			return []EventSummary{}, nil
		}
		return nil, err
	}
	return events, nil
}
