package credential

import (
	"context"
	"sync"
)

// MemoryStore is an in-process Store. Records are lost on restart.
type MemoryStore struct {
	mu      sync.RWMutex
	byID    map[string]*Credential
	byEmail map[string]string // email -> user id of the latest writer
	clock   Clock
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:    make(map[string]*Credential),
		byEmail: make(map[string]string),
	}
}

// WithClock overrides the time source used for LastUpdated.
func (s *MemoryStore) WithClock(c Clock) *MemoryStore {
	s.clock = c
	return s
}

// Save merges u into the record for userID.
func (s *MemoryStore) Save(ctx context.Context, userID string, u Update) error {
	if userID == "" {
		return ErrMissingUserID
	}
	if err := ctx.Err(); err != nil {
		return storeErr(BackendMemory, "save", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[userID]
	if !ok {
		rec = &Credential{UserID: userID}
		s.byID[userID] = rec
	}
	oldEmail := rec.Email
	u.Apply(rec, s.clock.now())

	if rec.Email != oldEmail && oldEmail != "" && s.byEmail[oldEmail] == userID {
		delete(s.byEmail, oldEmail)
	}
	if rec.Email != "" {
		s.byEmail[rec.Email] = userID
	}
	return nil
}

// Get returns a copy of the record for userID.
func (s *MemoryStore) Get(ctx context.Context, userID string) (*Credential, error) {
	if err := ctx.Err(); err != nil {
		return nil, storeErr(BackendMemory, "get", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.byID[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.Clone(), nil
}

// GetByEmail returns the most recently written record with that email.
func (s *MemoryStore) GetByEmail(ctx context.Context, email string) (*Credential, error) {
	if err := ctx.Err(); err != nil {
		return nil, storeErr(BackendMemory, "get_by_email", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[NormalizeEmail(email)]
	if !ok {
		return nil, ErrNotFound
	}
	rec, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.Clone(), nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }

// Len returns the number of stored records.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}
