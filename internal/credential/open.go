package credential

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/teemow/lifeassist/internal/instrumentation"
)

// Config selects and configures a backend.
type Config struct {
	Backend  string
	Valkey   ValkeyConfig
	Postgres PostgresConfig

	// EncryptionKey is a 32-byte AES key. Empty disables encryption.
	EncryptionKey []byte

	Metrics *instrumentation.Metrics
	Logger  *slog.Logger
}

// Open builds the configured backend wrapped with encryption and
// instrumentation.
func Open(ctx context.Context, cfg Config) (Store, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var (
		store Store
		err   error
	)
	switch cfg.Backend {
	case "", BackendMemory:
		cfg.Backend = BackendMemory
		logger.Warn("using in-memory credential store; sign-ins are lost on restart")
		store = NewMemoryStore()

	case BackendValkey:
		client, cerr := NewValkeyClient(ctx, cfg.Valkey)
		if cerr != nil {
			return nil, cerr
		}
		store = NewValkeyStore(client, cfg.Valkey.KeyPrefix)
		logger.Info("using valkey credential store", "addr", cfg.Valkey.Addr, "tls", cfg.Valkey.TLSEnabled)

	case BackendPostgres:
		pool, perr := NewPostgresPool(ctx, cfg.Postgres)
		if perr != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", perr)
		}
		pg := NewPostgresStore(pool)
		if err = pg.Migrate(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		store = pg
		logger.Info("using postgres credential store")

	default:
		return nil, fmt.Errorf("unsupported credential store %q, must be one of: memory, valkey, postgres", cfg.Backend)
	}

	tc, err := NewTokenCipher(cfg.EncryptionKey)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	if tc.Enabled() {
		store = NewEncryptedStore(store, tc)
		logger.Info("credential token encryption enabled", "algorithm", "AES-256-GCM")
	} else if cfg.Backend != BackendMemory {
		logger.Warn("credential tokens are stored unencrypted; set CREDENTIAL_ENCRYPTION_KEY or CREDENTIAL_ENCRYPTION_PASSPHRASE")
	}

	return NewInstrumentedStore(store, cfg.Backend, cfg.Metrics, logger), nil
}
