package credential

import (
	"context"
	"crypto/tls"
	"fmt"
	"strconv"
	"time"

	"github.com/valkey-io/valkey-go"
)

// Hash fields of a stored credential.
const (
	fieldUserID       = "user_id"
	fieldEmail        = "email"
	fieldName         = "name"
	fieldImageURL     = "image_url"
	fieldAccessToken  = "access_token"
	fieldRefreshToken = "refresh_token"
	fieldExpiresAtMs  = "access_token_expires_at_ms"
	fieldLastUpdated  = "last_updated_ms"
)

// DefaultValkeyKeyPrefix namespaces keys when sharing a Valkey instance.
const DefaultValkeyKeyPrefix = "lifeassist:"

// ValkeyConfig configures the Valkey connection.
type ValkeyConfig struct {
	Addr       string
	Password   string
	DB         int
	TLSEnabled bool
	KeyPrefix  string
}

// NewValkeyClient opens a client from cfg and verifies connectivity.
func NewValkeyClient(ctx context.Context, cfg ValkeyConfig) (valkey.Client, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("valkey address is required")
	}

	opt := valkey.ClientOption{
		InitAddress: []string{cfg.Addr},
		Password:    cfg.Password,
		SelectDB:    cfg.DB,
	}
	if cfg.TLSEnabled {
		opt.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	client, err := valkey.NewClient(opt)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to valkey at %s: %w", cfg.Addr, err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Do(pingCtx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping valkey at %s: %w", cfg.Addr, err)
	}
	return client, nil
}

// ValkeyStore keeps each credential in a hash at <prefix>cred:<userID> and
// an email index string at <prefix>email:<email>. HSET of only the fields
// present in an Update gives the merge semantics without a read.
type ValkeyStore struct {
	client valkey.Client
	prefix string
	clock  Clock
}

// NewValkeyStore wraps an open client. The store owns the client and closes it.
func NewValkeyStore(client valkey.Client, prefix string) *ValkeyStore {
	if prefix == "" {
		prefix = DefaultValkeyKeyPrefix
	}
	return &ValkeyStore{client: client, prefix: prefix}
}

// WithClock overrides the time source used for LastUpdated.
func (s *ValkeyStore) WithClock(c Clock) *ValkeyStore {
	s.clock = c
	return s
}

func (s *ValkeyStore) credKey(userID string) string {
	return s.prefix + "cred:" + userID
}

func (s *ValkeyStore) emailKey(email string) string {
	return s.prefix + "email:" + NormalizeEmail(email)
}

// Save merges u into the hash for userID and repoints the email index.
func (s *ValkeyStore) Save(ctx context.Context, userID string, u Update) error {
	if userID == "" {
		return ErrMissingUserID
	}

	fields := updateFields(userID, u, s.clock.now())

	hset := s.client.B().Hset().Key(s.credKey(userID)).FieldValue()
	for _, f := range fields {
		hset = hset.FieldValue(f[0], f[1])
	}

	cmds := valkey.Commands{
		s.client.B().Multi().Build(),
		hset.Build(),
	}
	if u.Email != nil && *u.Email != "" {
		cmds = append(cmds, s.client.B().Set().Key(s.emailKey(*u.Email)).Value(userID).Build())
	}
	cmds = append(cmds, s.client.B().Exec().Build())

	for _, resp := range s.client.DoMulti(ctx, cmds...) {
		if err := resp.Error(); err != nil {
			return storeErr(BackendValkey, "save", err)
		}
	}
	return nil
}

// Get loads the hash for userID.
func (s *ValkeyStore) Get(ctx context.Context, userID string) (*Credential, error) {
	m, err := s.client.Do(ctx, s.client.B().Hgetall().Key(s.credKey(userID)).Build()).AsStrMap()
	if err != nil {
		return nil, storeErr(BackendValkey, "get", err)
	}
	if len(m) == 0 {
		return nil, ErrNotFound
	}
	c, err := credentialFromFields(userID, m)
	if err != nil {
		return nil, storeErr(BackendValkey, "get", err)
	}
	return c, nil
}

// GetByEmail follows the email index. A stale index entry (the record has
// since moved to another email) is reported as not found.
func (s *ValkeyStore) GetByEmail(ctx context.Context, email string) (*Credential, error) {
	normalized := NormalizeEmail(email)
	userID, err := s.client.Do(ctx, s.client.B().Get().Key(s.emailKey(normalized)).Build()).ToString()
	if valkey.IsValkeyNil(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storeErr(BackendValkey, "get_by_email", err)
	}

	c, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if c.Email != normalized {
		return nil, ErrNotFound
	}
	return c, nil
}

// Ping checks connectivity.
func (s *ValkeyStore) Ping(ctx context.Context) error {
	if err := s.client.Do(ctx, s.client.B().Ping().Build()).Error(); err != nil {
		return storeErr(BackendValkey, "ping", err)
	}
	return nil
}

// Close releases the client.
func (s *ValkeyStore) Close() error {
	s.client.Close()
	return nil
}

// updateFields lists the hash fields written for u, in a stable order.
func updateFields(userID string, u Update, now time.Time) [][2]string {
	fields := [][2]string{{fieldUserID, userID}}
	if u.Email != nil {
		fields = append(fields, [2]string{fieldEmail, NormalizeEmail(*u.Email)})
	}
	if u.Name != nil {
		fields = append(fields, [2]string{fieldName, *u.Name})
	}
	if u.ImageURL != nil {
		fields = append(fields, [2]string{fieldImageURL, *u.ImageURL})
	}
	if u.AccessToken != nil {
		fields = append(fields, [2]string{fieldAccessToken, *u.AccessToken})
	}
	if u.RefreshToken != nil {
		fields = append(fields, [2]string{fieldRefreshToken, *u.RefreshToken})
	}
	if u.AccessTokenExpiresAt != nil {
		fields = append(fields, [2]string{fieldExpiresAtMs, formatMillis(*u.AccessTokenExpiresAt)})
	}
	fields = append(fields, [2]string{fieldLastUpdated, formatMillis(now)})
	return fields
}

func credentialFromFields(userID string, m map[string]string) (*Credential, error) {
	c := &Credential{
		UserID:       userID,
		Email:        m[fieldEmail],
		Name:         m[fieldName],
		ImageURL:     m[fieldImageURL],
		AccessToken:  m[fieldAccessToken],
		RefreshToken: m[fieldRefreshToken],
	}
	var err error
	if c.AccessTokenExpiresAt, err = parseMillis(m[fieldExpiresAtMs]); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", fieldExpiresAtMs, err)
	}
	if c.LastUpdated, err = parseMillis(m[fieldLastUpdated]); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", fieldLastUpdated, err)
	}
	return c, nil
}

func formatMillis(t time.Time) string {
	if t.IsZero() {
		return "0"
	}
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func parseMillis(s string) (time.Time, error) {
	if s == "" || s == "0" {
		return time.Time{}, nil
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms), nil
}
