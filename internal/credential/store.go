package credential

import (
	"context"
	"time"
)

// Store persists credentials keyed by user id, with a secondary email lookup.
//
// Save is a merge-upsert: a record is created when absent and only the
// non-nil fields of the update are written otherwise. Implementations must
// be safe for concurrent use.
type Store interface {
	Save(ctx context.Context, userID string, u Update) error
	Get(ctx context.Context, userID string) (*Credential, error)
	GetByEmail(ctx context.Context, email string) (*Credential, error)
	Ping(ctx context.Context) error
	Close() error
}

// Backend names.
const (
	BackendMemory   = "memory"
	BackendValkey   = "valkey"
	BackendPostgres = "postgres"
)

// Clock returns the current time. Stores take one so tests can pin LastUpdated.
type Clock func() time.Time

func (c Clock) now() time.Time {
	if c == nil {
		return time.Now()
	}
	return c()
}
