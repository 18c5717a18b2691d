package session

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionNotFound means there is no stored credential for the user.
	// Callers treat the user as signed out.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionExpired means the access token cannot be renewed and the
	// user has to sign in interactively.
	ErrSessionExpired = errors.New("session expired")

	// ErrInvalidState is returned for callbacks whose state does not match
	// a pending sign-in.
	ErrInvalidState = errors.New("unknown or expired sign-in state")
)

// SessionError ties a session sentinel to the user and the underlying cause.
type SessionError struct {
	UserID string
	Err    error
	Cause  error
}

func (e *SessionError) Error() string {
	if e.Cause == nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("%v: %v", e.Err, e.Cause)
}

// Unwrap exposes both the sentinel and the cause to errors.Is and errors.As.
func (e *SessionError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

func notFound(userID string, cause error) error {
	return &SessionError{UserID: userID, Err: ErrSessionNotFound, Cause: cause}
}

func expired(userID string, cause error) error {
	return &SessionError{UserID: userID, Err: ErrSessionExpired, Cause: cause}
}

// IsAuthError reports whether err requires the user to sign in again.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrSessionNotFound) || errors.Is(err, ErrSessionExpired)
}

// SignInError reports a failed interactive sign-in. Authorization codes are
// single use, so these are never retried automatically.
type SignInError struct {
	// Reason is a short machine-readable code such as "exchange_failed" or
	// the provider's error code.
	Reason string
	// Silent is set when a prompt=none attempt needs user interaction.
	Silent bool
	Err    error
}

func (e *SignInError) Error() string {
	if e.Err == nil {
		return "sign-in failed: " + e.Reason
	}
	return fmt.Sprintf("sign-in failed: %s: %v", e.Reason, e.Err)
}

func (e *SignInError) Unwrap() error {
	return e.Err
}

// RemoteServiceError is a failure of a downstream API (calendar, LLM).
// The feature that made the call degrades; the session is unaffected.
type RemoteServiceError struct {
	Service string
	Op      string
	Err     error
}

func (e *RemoteServiceError) Error() string {
	return fmt.Sprintf("%s %s failed: %v", e.Service, e.Op, e.Err)
}

func (e *RemoteServiceError) Unwrap() error {
	return e.Err
}

// NewRemoteServiceError wraps err unless it already is an auth error, which
// must keep propagating as such.
func NewRemoteServiceError(service, op string, err error) error {
	if err == nil || IsAuthError(err) {
		return err
	}
	var rse *RemoteServiceError
	if errors.As(err, &rse) {
		return err
	}
	return &RemoteServiceError{Service: service, Op: op, Err: err}
}

// IsRemoteServiceError reports whether err is a downstream failure.
func IsRemoteServiceError(err error) bool {
	var rse *RemoteServiceError
	return errors.As(err, &rse)
}
