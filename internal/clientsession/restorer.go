package clientsession

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/teemow/lifeassist/internal/credential"
	"github.com/teemow/lifeassist/internal/instrumentation"
	"github.com/teemow/lifeassist/internal/logging"
	"github.com/teemow/lifeassist/internal/session"
)

// State is the restore state machine's position.
type State int

const (
	StateUnknown State = iota
	StateRestoring
	StateAuthenticated
	StateSignedOut
)

func (s State) String() string {
	switch s {
	case StateUnknown:
		return "unknown"
	case StateRestoring:
		return "restoring"
	case StateAuthenticated:
		return "authenticated"
	case StateSignedOut:
		return "signed_out"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Defaults for RestorerConfig.
const (
	DefaultEmailDebounce = 10 * time.Second
	DefaultMaxRetries    = 1
	DefaultBaseBackoff   = 500 * time.Millisecond
	DefaultMaxBackoff    = 5 * time.Second
)

// Authenticator is the part of the session broker a restore needs.
type Authenticator interface {
	GetActiveAccessToken(ctx context.Context, userID string) (*session.ActiveToken, error)
	LookupByEmail(ctx context.Context, email string) (*credential.Credential, error)
}

// Observer is told the outcome of every restore pass.
type Observer func(ctx context.Context, outcome string)

// MetricsObserver counts restore outcomes.
func MetricsObserver(m *instrumentation.Metrics) Observer {
	return func(ctx context.Context, outcome string) {
		m.RecordSessionRestore(ctx, outcome)
	}
}

// RestorerConfig tunes a Restorer. Zero values take the defaults, except
// MaxRetries where a negative value disables retries.
type RestorerConfig struct {
	EmailDebounce time.Duration
	MaxRetries    int
	BaseBackoff   time.Duration
	MaxBackoff    time.Duration
	Observer      Observer
	Logger        *slog.Logger
	Now           func() time.Time
}

// Result is the outcome of one Restore pass.
type Result struct {
	State   State
	Outcome string
	// Token is set when State is StateAuthenticated.
	Token *session.ActiveToken
}

// Restorer re-establishes a session from the client pointer without user
// interaction. One pass always ends in Authenticated or SignedOut; the only
// retries are the bounded ones for transient failures.
type Restorer struct {
	mu    sync.Mutex
	state State

	cache *Cache
	auth  Authenticator

	debounce    time.Duration
	maxRetries  int
	baseBackoff time.Duration
	maxBackoff  time.Duration
	observer    Observer
	logger      *slog.Logger
	now         func() time.Time
}

// NewRestorer creates a Restorer in StateUnknown.
func NewRestorer(cache *Cache, auth Authenticator, cfg RestorerConfig) *Restorer {
	r := &Restorer{
		cache:       cache,
		auth:        auth,
		debounce:    cfg.EmailDebounce,
		maxRetries:  cfg.MaxRetries,
		baseBackoff: cfg.BaseBackoff,
		maxBackoff:  cfg.MaxBackoff,
		observer:    cfg.Observer,
		logger:      cfg.Logger,
		now:         cfg.Now,
	}
	if r.debounce <= 0 {
		r.debounce = DefaultEmailDebounce
	}
	if r.maxRetries == 0 {
		r.maxRetries = DefaultMaxRetries
	}
	if r.maxRetries < 0 {
		r.maxRetries = 0
	}
	if r.baseBackoff <= 0 {
		r.baseBackoff = DefaultBaseBackoff
	}
	if r.maxBackoff <= 0 {
		r.maxBackoff = DefaultMaxBackoff
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

// State returns the current state.
func (r *Restorer) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Reset returns the machine to StateUnknown.
func (r *Restorer) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = StateUnknown
}

// Restore runs one restore pass. The returned error is only set for
// transient failures that survived the retries; the result then is
// SignedOut with outcome "failed".
func (r *Restorer) Restore(ctx context.Context) (*Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.state = StateRestoring
	res, err := r.restore(ctx)
	r.state = res.State

	if r.observer != nil {
		r.observer(ctx, res.Outcome)
	}
	log := r.logger.With(logging.Operation("session.restore"), slog.String("outcome", res.Outcome))
	if err != nil {
		log.WarnContext(ctx, "Session restore failed", logging.Err(err))
	} else {
		log.DebugContext(ctx, "Session restore finished", slog.String("state", res.State.String()))
	}
	return res, err
}

func (r *Restorer) restore(ctx context.Context) (*Result, error) {
	p, err := r.cache.Pointer(ctx)
	if err != nil {
		return signedOut(instrumentation.RestoreOutcomeFailed), err
	}

	if p.IntentionalSignOut {
		return signedOut(instrumentation.RestoreOutcomeSignedOut), nil
	}

	if p.LastUserID != "" {
		res, err := r.hydrate(ctx, p.LastUserID)
		if err == nil {
			return res, nil
		}
		if !session.IsAuthError(err) {
			return signedOut(instrumentation.RestoreOutcomeFailed), err
		}
		if err := r.cache.ClearUser(ctx); err != nil {
			return signedOut(instrumentation.RestoreOutcomeFailed), err
		}
	}

	if p.LastUserEmail != "" {
		now := r.now()
		if a := p.LastEmailAttempt; a != nil && a.Email == p.LastUserEmail && now.Sub(a.At) < r.debounce {
			return signedOut(instrumentation.RestoreOutcomeDebounced), nil
		}
		if err := r.cache.RecordEmailAttempt(ctx, p.LastUserEmail, now); err != nil {
			return signedOut(instrumentation.RestoreOutcomeFailed), err
		}

		var cred *credential.Credential
		err := r.retry(ctx, func(ctx context.Context) error {
			var err error
			cred, err = r.auth.LookupByEmail(ctx, p.LastUserEmail)
			return err
		})
		if err == nil {
			var res *Result
			res, err = r.hydrate(ctx, cred.UserID)
			if err == nil {
				return res, nil
			}
		}
		if !session.IsAuthError(err) {
			return signedOut(instrumentation.RestoreOutcomeFailed), err
		}
		if err := r.cache.ClearEmail(ctx); err != nil {
			return signedOut(instrumentation.RestoreOutcomeFailed), err
		}
	}

	return signedOut(instrumentation.RestoreOutcomeNoPointer), nil
}

func (r *Restorer) hydrate(ctx context.Context, userID string) (*Result, error) {
	var at *session.ActiveToken
	err := r.retry(ctx, func(ctx context.Context) error {
		var err error
		at, err = r.auth.GetActiveAccessToken(ctx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if err := r.cache.Remember(ctx, at.UserID, at.Email); err != nil {
		return nil, err
	}
	return &Result{
		State:   StateAuthenticated,
		Outcome: instrumentation.RestoreOutcomeRestored,
		Token:   at,
	}, nil
}

// retry runs fn once plus up to maxRetries more times with exponential
// backoff. Auth errors are final and returned immediately.
func (r *Restorer) retry(ctx context.Context, fn func(context.Context) error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = fn(ctx)
		if err == nil || session.IsAuthError(err) || attempt >= r.maxRetries {
			return err
		}

		wait := r.backoff(attempt)
		r.logger.DebugContext(ctx, "Retrying session restore step",
			slog.Int("attempt", attempt+1),
			slog.Duration("backoff", wait),
			logging.Err(err),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (r *Restorer) backoff(attempt int) time.Duration {
	d := r.baseBackoff
	for i := 0; i < attempt && d < r.maxBackoff; i++ {
		d *= 2
	}
	if d > r.maxBackoff {
		return r.maxBackoff
	}
	return d
}

func signedOut(outcome string) *Result {
	return &Result{State: StateSignedOut, Outcome: outcome}
}
