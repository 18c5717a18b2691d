package credential

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func TestCredential_Validate(t *testing.T) {
	expiry := time.Now().Add(time.Hour)

	tests := []struct {
		name    string
		cred    Credential
		wantErr []error
	}{
		{
			name: "complete",
			cred: Credential{UserID: "u1", Email: "a@b.c", AccessToken: "at", AccessTokenExpiresAt: expiry},
		},
		{
			name:    "missing everything",
			cred:    Credential{},
			wantErr: []error{ErrMissingUserID, ErrMissingEmail, ErrMissingAccessToken, ErrMissingExpiry},
		},
		{
			name:    "missing expiry only",
			cred:    Credential{UserID: "u1", Email: "a@b.c", AccessToken: "at"},
			wantErr: []error{ErrMissingExpiry},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cred.Validate()
			if len(tt.wantErr) == 0 {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			for _, want := range tt.wantErr {
				assert.True(t, errors.Is(err, want), "expected %v in %v", want, err)
			}
		})
	}
}

func TestCredential_TokenAndMillis(t *testing.T) {
	expiry := time.UnixMilli(1_700_000_000_123)
	c := &Credential{AccessToken: "at", RefreshToken: "rt", AccessTokenExpiresAt: expiry}

	tok := c.Token()
	assert.Equal(t, "at", tok.AccessToken)
	assert.Equal(t, "rt", tok.RefreshToken)
	assert.Equal(t, "Bearer", tok.TokenType)
	assert.True(t, tok.Expiry.Equal(expiry))

	assert.Equal(t, int64(1_700_000_000_123), c.ExpiresAtMillis())
	assert.Equal(t, int64(0), (&Credential{}).ExpiresAtMillis())
}

func TestUpdate_ApplyMerges(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	c := &Credential{UserID: "u1", Email: "jane@example.com", Name: "Jane", AccessToken: "old", RefreshToken: "rt1"}

	Update{AccessToken: String("new"), Email: String("  Jane@Example.COM ")}.Apply(c, now)

	assert.Equal(t, "new", c.AccessToken)
	assert.Equal(t, "rt1", c.RefreshToken, "nil field keeps stored value")
	assert.Equal(t, "Jane", c.Name)
	assert.Equal(t, "jane@example.com", c.Email, "email is normalized")
	assert.Equal(t, now, c.LastUpdated)
}

func TestUpdate_ApplyEmptyStampsOnly(t *testing.T) {
	now := time.Now()
	c := &Credential{UserID: "u1", AccessToken: "at"}

	u := Update{}
	assert.True(t, u.IsEmpty())
	u.Apply(c, now)

	assert.Equal(t, "at", c.AccessToken)
	assert.Equal(t, now, c.LastUpdated)
}

func TestUpdateFromToken(t *testing.T) {
	expiry := time.Now().Add(time.Hour)

	t.Run("provider did not rotate the refresh token", func(t *testing.T) {
		u := UpdateFromToken(&oauth2.Token{AccessToken: "at2", Expiry: expiry})
		require.NotNil(t, u.AccessToken)
		assert.Equal(t, "at2", *u.AccessToken)
		assert.Nil(t, u.RefreshToken)
		require.NotNil(t, u.AccessTokenExpiresAt)
		assert.True(t, u.AccessTokenExpiresAt.Equal(expiry))
	})

	t.Run("provider rotated the refresh token", func(t *testing.T) {
		u := UpdateFromToken(&oauth2.Token{AccessToken: "at2", RefreshToken: "rt2", Expiry: expiry})
		require.NotNil(t, u.RefreshToken)
		assert.Equal(t, "rt2", *u.RefreshToken)
	})
}

func TestUpdateFromCredential(t *testing.T) {
	u := UpdateFromCredential(&Credential{UserID: "u1", Email: "a@b.c", AccessToken: "at"})

	require.NotNil(t, u.Email)
	require.NotNil(t, u.AccessToken)
	assert.Nil(t, u.Name)
	assert.Nil(t, u.RefreshToken)
	assert.Nil(t, u.AccessTokenExpiresAt)
}

func TestStoreError(t *testing.T) {
	cause := errors.New("connection refused")
	err := storeErr(BackendValkey, "get", cause)

	var se *StoreError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "get", se.Op)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "valkey")
	assert.True(t, IsUnavailable(err))

	assert.Nil(t, storeErr(BackendValkey, "get", nil))
	assert.Equal(t, ErrNotFound, storeErr(BackendValkey, "get", ErrNotFound))
	assert.False(t, IsUnavailable(ErrNotFound))

	// already wrapped errors are not wrapped twice
	assert.Same(t, err, storeErr(BackendMemory, "save", err))
}
