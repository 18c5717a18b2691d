package credential

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/teemow/lifeassist/internal/instrumentation"
	"github.com/teemow/lifeassist/internal/logging"
)

// InstrumentedStore records metrics and spans for every call to the wrapped Store.
type InstrumentedStore struct {
	next    Store
	backend string
	metrics *instrumentation.Metrics
	logger  *slog.Logger
}

// NewInstrumentedStore wraps next. metrics may be nil.
func NewInstrumentedStore(next Store, backend string, metrics *instrumentation.Metrics, logger *slog.Logger) *InstrumentedStore {
	if metrics == nil {
		metrics = &instrumentation.Metrics{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &InstrumentedStore{
		next:    next,
		backend: backend,
		metrics: metrics,
		logger:  logger.With(logging.Backend(backend)),
	}
}

func (s *InstrumentedStore) observe(ctx context.Context, op string, fn func(context.Context) error) error {
	ctx, span := instrumentation.StartSpan(ctx, "credential."+op,
		instrumentation.NewSpanAttributeBuilder().WithBackend(s.backend).WithOperation(op).Build()...)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	duration := time.Since(start)

	status := instrumentation.StatusSuccess
	// A miss is a normal answer, not a failure of the store.
	if err != nil && !errors.Is(err, ErrNotFound) {
		status = instrumentation.StatusError
		instrumentation.SetSpanError(span, err)
		s.logger.Warn("credential store operation failed",
			logging.Operation(op),
			slog.Duration(logging.KeyDuration, duration),
			logging.Err(err))
	} else {
		instrumentation.SetSpanSuccess(span)
	}
	s.metrics.RecordStoreOperation(ctx, s.backend, op, status, duration)
	return err
}

// Save delegates.
func (s *InstrumentedStore) Save(ctx context.Context, userID string, u Update) error {
	return s.observe(ctx, instrumentation.StoreOpSave, func(ctx context.Context) error {
		return s.next.Save(ctx, userID, u)
	})
}

// Get delegates.
func (s *InstrumentedStore) Get(ctx context.Context, userID string) (*Credential, error) {
	var c *Credential
	err := s.observe(ctx, instrumentation.StoreOpGet, func(ctx context.Context) error {
		var err error
		c, err = s.next.Get(ctx, userID)
		return err
	})
	return c, err
}

// GetByEmail delegates.
func (s *InstrumentedStore) GetByEmail(ctx context.Context, email string) (*Credential, error) {
	var c *Credential
	err := s.observe(ctx, instrumentation.StoreOpGetByEmail, func(ctx context.Context) error {
		var err error
		c, err = s.next.GetByEmail(ctx, email)
		return err
	})
	return c, err
}

// Ping delegates.
func (s *InstrumentedStore) Ping(ctx context.Context) error {
	return s.observe(ctx, instrumentation.StoreOpPing, s.next.Ping)
}

// Close delegates.
func (s *InstrumentedStore) Close() error { return s.next.Close() }
