package credential

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when no record exists for the requested key.
// It is never used for an unreachable backend; see StoreError.
var ErrNotFound = errors.New("credential not found")

// StoreError reports a backend failure (connection, query, decode).
type StoreError struct {
	Op      string
	Backend string
	Err     error
}

func (e *StoreError) Error() string {
	if e.Backend != "" {
		return fmt.Sprintf("credential store %s (%s): %v", e.Op, e.Backend, e.Err)
	}
	return fmt.Sprintf("credential store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func storeErr(backend, op string, err error) error {
	if err == nil || errors.Is(err, ErrNotFound) {
		return err
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, Backend: backend, Err: err}
}

// IsUnavailable reports whether err is a backend failure rather than a miss.
func IsUnavailable(err error) bool {
	var se *StoreError
	return errors.As(err, &se)
}
