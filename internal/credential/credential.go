package credential

import (
	"errors"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// Credential is the persisted sign-in record for one Google account,
// keyed by the provider's subject id.
type Credential struct {
	UserID               string    `json:"userId"`
	Email                string    `json:"email"`
	Name                 string    `json:"name,omitempty"`
	ImageURL             string    `json:"imageUrl,omitempty"`
	AccessToken          string    `json:"-"`
	RefreshToken         string    `json:"-"`
	AccessTokenExpiresAt time.Time `json:"-"`
	LastUpdated          time.Time `json:"lastUpdated"`
}

// Validation errors returned by Validate.
var (
	ErrMissingUserID      = errors.New("credential: user id is required")
	ErrMissingEmail       = errors.New("credential: email is required")
	ErrMissingAccessToken = errors.New("credential: access token is required")
	ErrMissingExpiry      = errors.New("credential: access token expiry is required")
)

// Validate checks the fields every complete record must carry.
func (c *Credential) Validate() error {
	var errs []error
	if c.UserID == "" {
		errs = append(errs, ErrMissingUserID)
	}
	if c.Email == "" {
		errs = append(errs, ErrMissingEmail)
	}
	if c.AccessToken == "" {
		errs = append(errs, ErrMissingAccessToken)
	}
	if c.AccessTokenExpiresAt.IsZero() {
		errs = append(errs, ErrMissingExpiry)
	}
	return errors.Join(errs...)
}

// Token converts the credential to an oauth2 token.
func (c *Credential) Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  c.AccessToken,
		TokenType:    "Bearer",
		RefreshToken: c.RefreshToken,
		Expiry:       c.AccessTokenExpiresAt,
	}
}

// ExpiresAtMillis returns the access token expiry as epoch milliseconds.
func (c *Credential) ExpiresAtMillis() int64 {
	if c.AccessTokenExpiresAt.IsZero() {
		return 0
	}
	return c.AccessTokenExpiresAt.UnixMilli()
}

// Clone returns a copy that shares nothing with c.
func (c *Credential) Clone() *Credential {
	if c == nil {
		return nil
	}
	out := *c
	return &out
}

// NormalizeEmail lower-cases and trims an email for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Update is a partial write. Nil fields keep their stored value.
type Update struct {
	Email                *string
	Name                 *string
	ImageURL             *string
	AccessToken          *string
	RefreshToken         *string
	AccessTokenExpiresAt *time.Time
}

// String returns a pointer to s, for building Updates.
func String(s string) *string { return &s }

// Time returns a pointer to t, for building Updates.
func Time(t time.Time) *time.Time { return &t }

// Apply merges u into c and stamps LastUpdated with now.
func (u Update) Apply(c *Credential, now time.Time) {
	if u.Email != nil {
		c.Email = NormalizeEmail(*u.Email)
	}
	if u.Name != nil {
		c.Name = *u.Name
	}
	if u.ImageURL != nil {
		c.ImageURL = *u.ImageURL
	}
	if u.AccessToken != nil {
		c.AccessToken = *u.AccessToken
	}
	if u.RefreshToken != nil {
		c.RefreshToken = *u.RefreshToken
	}
	if u.AccessTokenExpiresAt != nil {
		c.AccessTokenExpiresAt = *u.AccessTokenExpiresAt
	}
	c.LastUpdated = now
}

// IsEmpty reports whether u carries no fields.
func (u Update) IsEmpty() bool {
	return u.Email == nil && u.Name == nil && u.ImageURL == nil &&
		u.AccessToken == nil && u.RefreshToken == nil && u.AccessTokenExpiresAt == nil
}

// UpdateFromToken builds an Update carrying the token fields of tok.
// RefreshToken is only set when the provider returned one, so a refresh
// that does not rotate it keeps the stored value.
func UpdateFromToken(tok *oauth2.Token) Update {
	u := Update{
		AccessToken:          String(tok.AccessToken),
		AccessTokenExpiresAt: Time(tok.Expiry),
	}
	if tok.RefreshToken != "" {
		u.RefreshToken = String(tok.RefreshToken)
	}
	return u
}

// UpdateFromCredential builds an Update carrying every non-empty field of c.
func UpdateFromCredential(c *Credential) Update {
	var u Update
	if c.Email != "" {
		u.Email = String(c.Email)
	}
	if c.Name != "" {
		u.Name = String(c.Name)
	}
	if c.ImageURL != "" {
		u.ImageURL = String(c.ImageURL)
	}
	if c.AccessToken != "" {
		u.AccessToken = String(c.AccessToken)
	}
	if c.RefreshToken != "" {
		u.RefreshToken = String(c.RefreshToken)
	}
	if !c.AccessTokenExpiresAt.IsZero() {
		u.AccessTokenExpiresAt = Time(c.AccessTokenExpiresAt)
	}
	return u
}
