package server

import (
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/teemow/lifeassist/internal/clientsession"
	"github.com/teemow/lifeassist/internal/credential"
	"github.com/teemow/lifeassist/internal/logging"
	"github.com/teemow/lifeassist/internal/session"
)

// Pages the OAuth callback lands on when sign-in fails.
const (
	SignInPath    = "/auth/signin"
	AuthErrorPath = "/auth/error"
)

// UserJSON is the public profile of a signed-in user.
type UserJSON struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Name     string `json:"name,omitempty"`
	ImageURL string `json:"image,omitempty"`
}

// SessionJSON describes the active session. It never carries a token.
type SessionJSON struct {
	User      UserJSON  `json:"user"`
	ExpiresAt time.Time `json:"expiresAt"`
	Refreshed bool      `json:"refreshed,omitempty"`
}

// RestoreJSON is the reply of the restore endpoint.
type RestoreJSON struct {
	State string    `json:"state"`
	User  *UserJSON `json:"user,omitempty"`
}

func userFromToken(at *session.ActiveToken) UserJSON {
	return UserJSON{ID: at.UserID, Email: at.Email, Name: at.Name, ImageURL: at.ImageURL}
}

func (s *HTTPServer) cache(w http.ResponseWriter, r *http.Request) *clientsession.Cache {
	return clientsession.NewCache(s.cookies.Storage(w, r), s.pointerTTL)
}

func (s *HTTPServer) handleSignIn(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	target, err := s.sc.Broker().BeginInteractiveSignIn(r.Context(), session.SignInOptions{
		ReturnTo:  q.Get("returnTo"),
		LoginHint: q.Get("loginHint"),
		Silent:    q.Get("silent") == "true",
	})
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

func (s *HTTPServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	res, err := s.sc.Broker().CompleteInteractiveSignIn(r.Context(), session.CallbackFromQuery(r.URL.Query()))
	if err != nil {
		var sie *session.SignInError
		if errors.As(err, &sie) && sie.Silent {
			http.Redirect(w, r, SignInPath, http.StatusFound)
			return
		}
		reason := "sign_in_failed"
		if sie != nil {
			reason = sie.Reason
		}
		http.Redirect(w, r, AuthErrorPath+"?error="+url.QueryEscape(reason), http.StatusFound)
		return
	}

	cred := res.Credential
	if err := s.cookies.SetIdentity(w, Identity{UserID: cred.UserID, Email: cred.Email}); err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	if m := s.sc.Metrics(); m != nil {
		m.IncrementActiveSessions(r.Context())
	}
	if err := s.cache(w, r).Remember(r.Context(), cred.UserID, cred.Email); err != nil {
		s.logger.WarnContext(r.Context(), "Failed to store restore pointers",
			logging.UserID(cred.UserID),
			logging.Err(err),
		)
	}

	http.Redirect(w, r, res.ReturnTo, http.StatusFound)
}

func (s *HTTPServer) handleRestore(w http.ResponseWriter, r *http.Request) {
	cfg := s.restore
	if cfg.Observer == nil && s.sc.Metrics() != nil {
		cfg.Observer = clientsession.MetricsObserver(s.sc.Metrics())
	}

	restorer := clientsession.NewRestorer(s.cache(w, r), s.sc.Broker(), cfg)
	res, err := restorer.Restore(r.Context())
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}

	if res.State != clientsession.StateAuthenticated || res.Token == nil {
		s.cookies.ClearIdentity(w)
		writeJSON(w, http.StatusOK, RestoreJSON{State: clientsession.StateSignedOut.String()})
		return
	}

	if err := s.cookies.SetIdentity(w, Identity{UserID: res.Token.UserID, Email: res.Token.Email}); err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	user := userFromToken(res.Token)
	writeJSON(w, http.StatusOK, RestoreJSON{State: res.State.String(), User: &user})
}

func (s *HTTPServer) handleSession(w http.ResponseWriter, r *http.Request) {
	id, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, s.logger, ErrNoIdentity)
		return
	}

	at, err := s.sc.Broker().GetActiveAccessToken(r.Context(), id.UserID)
	if err != nil {
		if session.IsAuthError(err) {
			s.cookies.ClearIdentity(w)
		}
		writeError(w, r, s.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, SessionJSON{
		User:      userFromToken(at),
		ExpiresAt: at.ExpiresAt,
		Refreshed: at.Refreshed,
	})
}

// handleSignOut ends the server session of the cookie user, if any, and
// always clears the browser side so no silent restore follows.
func (s *HTTPServer) handleSignOut(w http.ResponseWriter, r *http.Request) {
	s.cookies.ClearIdentity(w)
	if err := s.cache(w, r).Forget(r.Context()); err != nil {
		s.logger.WarnContext(r.Context(), "Failed to clear restore pointers", logging.Err(err))
	}

	if id, ok := IdentityFromContext(r.Context()); ok {
		if m := s.sc.Metrics(); m != nil {
			m.DecrementActiveSessions(r.Context())
		}
		if err := s.sc.Broker().EndSession(r.Context(), id.UserID); err != nil {
			var serr *credential.StoreError
			if errors.As(err, &serr) {
				writeError(w, r, s.logger, err)
				return
			}
			// Revocation failures leave the local sign-out in place.
			s.logger.WarnContext(r.Context(), "Sign-out incomplete", logging.UserID(id.UserID), logging.Err(err))
		}
		s.logger.DebugContext(r.Context(), "Signed out", logging.UserID(id.UserID))
	}

	w.WriteHeader(http.StatusNoContent)
}
