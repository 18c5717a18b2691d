package clientsession

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Storage keys. They match what browser clients of the service used.
const (
	KeyLastUserID         = "lastUserId"
	KeyLastUserEmail      = "lastUserEmail"
	KeyIntentionalSignOut = "intentionalSignOut"
	KeyLastEmailAttempt   = "lastEmailAttempt"
)

// DefaultPointerTTL is how long the remembered email survives.
const DefaultPointerTTL = 30 * 24 * time.Hour

// EmailAttempt records the last email-based restore.
type EmailAttempt struct {
	Email string    `json:"email"`
	At    time.Time `json:"at"`
}

// Pointer is what the client remembers between page loads. It never
// contains a token.
type Pointer struct {
	LastUserID         string
	LastUserEmail      string
	IntentionalSignOut bool
	LastEmailAttempt   *EmailAttempt
}

// Empty reports whether there is nothing to restore from.
func (p *Pointer) Empty() bool {
	return p.LastUserID == "" && p.LastUserEmail == ""
}

// Cache is the client-side session cache over an injected Storage.
type Cache struct {
	storage Storage
	ttl     time.Duration
}

// NewCache creates a Cache. ttl defaults to DefaultPointerTTL.
func NewCache(storage Storage, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultPointerTTL
	}
	return &Cache{storage: storage, ttl: ttl}
}

// Pointer reads the current pointer. A corrupt attempt record is ignored.
func (c *Cache) Pointer(ctx context.Context) (*Pointer, error) {
	var p Pointer
	var err error

	if p.LastUserID, _, err = c.storage.Get(ctx, KeyLastUserID); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", KeyLastUserID, err)
	}
	if p.LastUserEmail, _, err = c.storage.Get(ctx, KeyLastUserEmail); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", KeyLastUserEmail, err)
	}

	flag, ok, err := c.storage.Get(ctx, KeyIntentionalSignOut)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", KeyIntentionalSignOut, err)
	}
	p.IntentionalSignOut = ok && flag == "true"

	raw, ok, err := c.storage.Get(ctx, KeyLastEmailAttempt)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", KeyLastEmailAttempt, err)
	}
	if ok {
		var a EmailAttempt
		if json.Unmarshal([]byte(raw), &a) == nil && a.Email != "" {
			p.LastEmailAttempt = &a
		}
	}

	return &p, nil
}

// Remember stores the pointers after a successful sign-in or restore and
// clears the sign-out flag.
func (c *Cache) Remember(ctx context.Context, userID, email string) error {
	if userID == "" {
		return fmt.Errorf("user id is required")
	}
	if err := c.storage.Set(ctx, KeyLastUserID, userID, c.ttl); err != nil {
		return err
	}
	if email != "" {
		if err := c.storage.Set(ctx, KeyLastUserEmail, email, c.ttl); err != nil {
			return err
		}
	}
	return errors.Join(
		c.storage.Delete(ctx, KeyIntentionalSignOut),
		c.storage.Delete(ctx, KeyLastEmailAttempt),
	)
}

// Forget clears the pointers and sets the sign-out flag, so no restore runs
// until the next explicit sign-in.
func (c *Cache) Forget(ctx context.Context) error {
	return errors.Join(
		c.storage.Delete(ctx, KeyLastUserID),
		c.storage.Delete(ctx, KeyLastUserEmail),
		c.storage.Delete(ctx, KeyLastEmailAttempt),
		c.storage.Set(ctx, KeyIntentionalSignOut, "true", 0),
	)
}

// ClearUser drops the user id pointer.
func (c *Cache) ClearUser(ctx context.Context) error {
	return c.storage.Delete(ctx, KeyLastUserID)
}

// ClearEmail drops the email pointer.
func (c *Cache) ClearEmail(ctx context.Context) error {
	return c.storage.Delete(ctx, KeyLastUserEmail)
}

// RecordEmailAttempt notes an email-based restore for the debounce.
func (c *Cache) RecordEmailAttempt(ctx context.Context, email string, at time.Time) error {
	data, err := json.Marshal(EmailAttempt{Email: email, At: at})
	if err != nil {
		return err
	}
	return c.storage.Set(ctx, KeyLastEmailAttempt, string(data), c.ttl)
}
