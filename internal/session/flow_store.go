package session

import (
	"log/slog"
	"sync"
	"time"
)

// DefaultFlowTTL bounds how long a user may take on the consent screen.
const DefaultFlowTTL = 10 * time.Minute

// Flow is a sign-in started by BeginInteractiveSignIn and not yet completed.
type Flow struct {
	ID        string
	Verifier  string
	ReturnTo  string
	Silent    bool
	ExpiresAt time.Time
}

// FlowStore keeps pending flows keyed by OAuth state.
type FlowStore struct {
	flows  map[string]*Flow
	mu     sync.RWMutex
	logger *slog.Logger
	now    func() time.Time

	stop chan struct{}
	once sync.Once
}

// NewFlowStore creates a flow store and starts its cleanup goroutine.
// Call Stop to end it.
func NewFlowStore(logger *slog.Logger) *FlowStore {
	return newFlowStore(logger, time.Now)
}

func newFlowStore(logger *slog.Logger, now func() time.Time) *FlowStore {
	if logger == nil {
		logger = slog.Default()
	}

	s := &FlowStore{
		flows:  make(map[string]*Flow),
		logger: logger,
		now:    now,
		stop:   make(chan struct{}),
	}

	go s.cleanup(time.Minute)

	return s
}

// Save records a pending flow under state.
func (s *FlowStore) Save(state string, f *Flow) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.flows[state] = f
	s.logger.Debug("Saved sign-in flow",
		"flow_id", f.ID,
		"silent", f.Silent,
		"expires_at", f.ExpiresAt,
	)
}

// Take returns the flow for state and removes it, so a state can be
// completed only once. Expired flows are reported as missing.
func (s *FlowStore) Take(state string) (*Flow, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.flows[state]
	if !ok {
		return nil, false
	}
	delete(s.flows, state)

	if s.now().After(f.ExpiresAt) {
		return nil, false
	}
	return f, true
}

// Len returns the number of pending flows.
func (s *FlowStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.flows)
}

// Stop ends the cleanup goroutine. It is safe to call more than once.
func (s *FlowStore) Stop() {
	s.once.Do(func() { close(s.stop) })
}

func (s *FlowStore) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanupExpired()
		case <-s.stop:
			return
		}
	}
}

func (s *FlowStore) cleanupExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	deleted := 0
	for state, f := range s.flows {
		if now.After(f.ExpiresAt) {
			delete(s.flows, state)
			deleted++
		}
	}

	if deleted > 0 {
		s.logger.Debug("Cleaned up sign-in flows", "flows_deleted", deleted)
	}
}
