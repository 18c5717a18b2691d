package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/teemow/lifeassist/internal/clientsession"
)

const (
	// IdentityCookieName carries the signed user id and email. Never a token.
	IdentityCookieName = "lifeassist_session"

	// pointerCookiePrefix namespaces the restore pointer cookies.
	pointerCookiePrefix = "lifeassist_"

	// DefaultSessionTTL is the lifetime of the identity cookie.
	DefaultSessionTTL = 30 * 24 * time.Hour

	// MinSessionSecretLength is the minimum HMAC key size.
	MinSessionSecretLength = 32
)

// ErrNoIdentity is returned when a request carries no valid identity cookie.
var ErrNoIdentity = errors.New("no signed-in user")

// CookieConfig configures the signed cookies.
type CookieConfig struct {
	Secret []byte
	Secure bool
	TTL    time.Duration
}

// CookieSigner issues and verifies HS256-signed cookies.
type CookieSigner struct {
	secret []byte
	secure bool
	ttl    time.Duration
	now    func() time.Time
}

// NewCookieSigner creates a signer. The secret must be at least 32 bytes.
func NewCookieSigner(cfg CookieConfig) (*CookieSigner, error) {
	if len(cfg.Secret) < MinSessionSecretLength {
		return nil, fmt.Errorf("session secret must be at least %d bytes (got %d)", MinSessionSecretLength, len(cfg.Secret))
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &CookieSigner{secret: cfg.Secret, secure: cfg.Secure, ttl: ttl, now: time.Now}, nil
}

type identityClaims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

type valueClaims struct {
	Value string `json:"v"`
	jwt.RegisteredClaims
}

func (s *CookieSigner) sign(claims jwt.Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *CookieSigner) parse(raw string, claims jwt.Claims) error {
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	return err
}

func (s *CookieSigner) cookie(name, value string, maxAge time.Duration) *http.Cookie {
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	}
	if maxAge < 0 {
		c.MaxAge = -1
	} else {
		c.MaxAge = int(maxAge.Seconds())
		c.Expires = s.now().Add(maxAge)
	}
	return c
}

// SetIdentity writes the identity cookie.
func (s *CookieSigner) SetIdentity(w http.ResponseWriter, id Identity) error {
	now := s.now()
	raw, err := s.sign(identityClaims{
		Email: id.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to sign identity cookie: %w", err)
	}
	http.SetCookie(w, s.cookie(IdentityCookieName, raw, s.ttl))
	return nil
}

// Identity reads and verifies the identity cookie.
func (s *CookieSigner) Identity(r *http.Request) (*Identity, error) {
	c, err := r.Cookie(IdentityCookieName)
	if err != nil {
		return nil, ErrNoIdentity
	}
	var claims identityClaims
	if err := s.parse(c.Value, &claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoIdentity, err)
	}
	if claims.Subject == "" {
		return nil, ErrNoIdentity
	}
	return &Identity{UserID: claims.Subject, Email: claims.Email}, nil
}

// ClearIdentity expires the identity cookie.
func (s *CookieSigner) ClearIdentity(w http.ResponseWriter) {
	http.SetCookie(w, s.cookie(IdentityCookieName, "", -1))
}

// CookieStorage is a clientsession.Storage kept in signed cookies of one
// request/response pair. Values written during the request are visible to
// later reads of the same request.
type CookieStorage struct {
	signer  *CookieSigner
	r       *http.Request
	w       http.ResponseWriter
	overlay map[string]*string
}

var _ clientsession.Storage = (*CookieStorage)(nil)

// Storage returns a cookie-backed storage for one request.
func (s *CookieSigner) Storage(w http.ResponseWriter, r *http.Request) *CookieStorage {
	return &CookieStorage{signer: s, r: r, w: w, overlay: make(map[string]*string)}
}

// Get implements clientsession.Storage. Tampered or expired cookies read
// as missing.
func (c *CookieStorage) Get(_ context.Context, key string) (string, bool, error) {
	if v, ok := c.overlay[key]; ok {
		if v == nil {
			return "", false, nil
		}
		return *v, true, nil
	}

	ck, err := c.r.Cookie(pointerCookiePrefix + key)
	if err != nil {
		return "", false, nil
	}
	var claims valueClaims
	if err := c.signer.parse(ck.Value, &claims); err != nil || claims.Subject != key {
		return "", false, nil
	}
	return claims.Value, true, nil
}

// Set implements clientsession.Storage. Cookies always expire; a zero ttl
// uses the session TTL.
func (c *CookieStorage) Set(_ context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.signer.ttl
	}
	now := c.signer.now()
	raw, err := c.signer.sign(valueClaims{
		Value: value,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   key,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to sign %s cookie: %w", key, err)
	}
	http.SetCookie(c.w, c.signer.cookie(pointerCookiePrefix+key, raw, ttl))
	c.overlay[key] = &value
	return nil
}

// Delete implements clientsession.Storage.
func (c *CookieStorage) Delete(_ context.Context, key string) error {
	http.SetCookie(c.w, c.signer.cookie(pointerCookiePrefix+key, "", -1))
	c.overlay[key] = nil
	return nil
}
