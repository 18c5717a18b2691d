package credential

import (
	"context"
	"fmt"
)

// EncryptedStore encrypts the token fields of every Update before handing
// it to the wrapped Store, and decrypts them on read.
type EncryptedStore struct {
	next   Store
	cipher *TokenCipher
}

// NewEncryptedStore wraps next with c.
func NewEncryptedStore(next Store, c *TokenCipher) *EncryptedStore {
	return &EncryptedStore{next: next, cipher: c}
}

// Save encrypts AccessToken and RefreshToken, then delegates.
func (s *EncryptedStore) Save(ctx context.Context, userID string, u Update) error {
	if u.AccessToken != nil {
		enc, err := s.cipher.Encrypt(*u.AccessToken)
		if err != nil {
			return &StoreError{Op: "save", Err: fmt.Errorf("encrypt access token: %w", err)}
		}
		u.AccessToken = &enc
	}
	if u.RefreshToken != nil {
		enc, err := s.cipher.Encrypt(*u.RefreshToken)
		if err != nil {
			return &StoreError{Op: "save", Err: fmt.Errorf("encrypt refresh token: %w", err)}
		}
		u.RefreshToken = &enc
	}
	return s.next.Save(ctx, userID, u)
}

// Get delegates and decrypts.
func (s *EncryptedStore) Get(ctx context.Context, userID string) (*Credential, error) {
	c, err := s.next.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.decrypt("get", c)
}

// GetByEmail delegates and decrypts.
func (s *EncryptedStore) GetByEmail(ctx context.Context, email string) (*Credential, error) {
	c, err := s.next.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	return s.decrypt("get_by_email", c)
}

// Ping delegates.
func (s *EncryptedStore) Ping(ctx context.Context) error { return s.next.Ping(ctx) }

// Close delegates.
func (s *EncryptedStore) Close() error { return s.next.Close() }

func (s *EncryptedStore) decrypt(op string, c *Credential) (*Credential, error) {
	var err error
	if c.AccessToken, err = s.cipher.Decrypt(c.AccessToken); err != nil {
		return nil, &StoreError{Op: op, Err: fmt.Errorf("decrypt access token: %w", err)}
	}
	if c.RefreshToken, err = s.cipher.Decrypt(c.RefreshToken); err != nil {
		return nil, &StoreError{Op: op, Err: fmt.Errorf("decrypt refresh token: %w", err)}
	}
	return c, nil
}
