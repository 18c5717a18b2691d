package credential

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresSchema creates the credentials table. The unique email index
// makes GetByEmail unambiguous. A record without an email stores NULL, which
// the index ignores.
const PostgresSchema = `
CREATE TABLE IF NOT EXISTS credentials (
	user_id                 TEXT PRIMARY KEY,
	email                   TEXT,
	name                    TEXT NOT NULL DEFAULT '',
	image_url               TEXT NOT NULL DEFAULT '',
	access_token            TEXT NOT NULL DEFAULT '',
	refresh_token           TEXT NOT NULL DEFAULT '',
	access_token_expires_at TIMESTAMPTZ,
	last_updated            TIMESTAMPTZ NOT NULL
);
ALTER TABLE credentials ALTER COLUMN email DROP NOT NULL;
UPDATE credentials SET email = NULL WHERE email = '';
CREATE UNIQUE INDEX IF NOT EXISTS credentials_email_key ON credentials (email);
`

// PostgresConfig configures the connection pool.
type PostgresConfig struct {
	DatabaseURL string
	MaxConns    int32
}

// NewPostgresPool builds a pgxpool and validates connectivity.
func NewPostgresPool(ctx context.Context, cfg PostgresConfig) (*pgxpool.Pool, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid database url: %w", err)
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}

	if err := pingPool(ctx, pool, 3*time.Second); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// pingPool checks that a connection can be acquired within timeout.
func pingPool(parent context.Context, pool *pgxpool.Pool, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return err
	}
	conn.Release()
	return nil
}

// PostgresStore implements Store on a credentials table.
type PostgresStore struct {
	pool  *pgxpool.Pool
	clock Clock
}

// NewPostgresStore wraps an open pool. The store owns the pool and closes it.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// WithClock overrides the time source used for LastUpdated.
func (s *PostgresStore) WithClock(c Clock) *PostgresStore {
	s.clock = c
	return s
}

// Migrate applies PostgresSchema.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, PostgresSchema); err != nil {
		return storeErr(BackendPostgres, "migrate", err)
	}
	return nil
}

// Save upserts in one statement. COALESCE keeps the stored column when the
// update leaves a field nil. An empty email is stored as NULL.
func (s *PostgresStore) Save(ctx context.Context, userID string, u Update) error {
	if userID == "" {
		return ErrMissingUserID
	}

	var email *string
	if u.Email != nil {
		email = String(NormalizeEmail(*u.Email))
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO credentials (
			user_id, email, name, image_url,
			access_token, refresh_token, access_token_expires_at, last_updated
		) VALUES (
			$1, NULLIF($2::text, ''), COALESCE($3, ''), COALESCE($4, ''),
			COALESCE($5, ''), COALESCE($6, ''), $7, $8
		)
		ON CONFLICT (user_id) DO UPDATE SET
			email                   = CASE WHEN $2::text IS NULL THEN credentials.email ELSE NULLIF($2::text, '') END,
			name                    = COALESCE($3, credentials.name),
			image_url               = COALESCE($4, credentials.image_url),
			access_token            = COALESCE($5, credentials.access_token),
			refresh_token           = COALESCE($6, credentials.refresh_token),
			access_token_expires_at = COALESCE($7, credentials.access_token_expires_at),
			last_updated            = $8
	`, userID, email, u.Name, u.ImageURL, u.AccessToken, u.RefreshToken, u.AccessTokenExpiresAt, s.clock.now())
	if err != nil {
		return storeErr(BackendPostgres, "save", err)
	}
	return nil
}

const selectCredential = `
	SELECT user_id, email, name, image_url,
	       access_token, refresh_token, access_token_expires_at, last_updated
	FROM credentials
`

// Get loads the row for userID.
func (s *PostgresStore) Get(ctx context.Context, userID string) (*Credential, error) {
	c, err := scanCredential(s.pool.QueryRow(ctx, selectCredential+` WHERE user_id = $1`, userID))
	if err != nil {
		return nil, storeErr(BackendPostgres, "get", err)
	}
	return c, nil
}

// GetByEmail loads the row with that email.
func (s *PostgresStore) GetByEmail(ctx context.Context, email string) (*Credential, error) {
	c, err := scanCredential(s.pool.QueryRow(ctx,
		selectCredential+` WHERE email = $1 ORDER BY last_updated DESC LIMIT 1`, NormalizeEmail(email)))
	if err != nil {
		return nil, storeErr(BackendPostgres, "get_by_email", err)
	}
	return c, nil
}

// Ping checks that a connection can be acquired.
func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := pingPool(ctx, s.pool, 3*time.Second); err != nil {
		return storeErr(BackendPostgres, "ping", err)
	}
	return nil
}

// Close closes the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func scanCredential(row pgx.Row) (*Credential, error) {
	var (
		c         Credential
		email     *string
		expiresAt *time.Time
	)
	err := row.Scan(
		&c.UserID,
		&email,
		&c.Name,
		&c.ImageURL,
		&c.AccessToken,
		&c.RefreshToken,
		&expiresAt,
		&c.LastUpdated,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if email != nil {
		c.Email = *email
	}
	if expiresAt != nil {
		c.AccessTokenExpiresAt = *expiresAt
	}
	return &c, nil
}
