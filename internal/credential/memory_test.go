package credential

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(t time.Time) Clock {
	return func() time.Time { return t }
}

func TestMemoryStore_SaveGetRoundTripMerges(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStore().WithClock(fixedClock(t0))

	expiry := t0.Add(time.Hour)
	require.NoError(t, store.Save(ctx, "u1", Update{
		Email:                String("jane@example.com"),
		Name:                 String("Jane"),
		ImageURL:             String("https://example.com/jane.png"),
		AccessToken:          String("at1"),
		RefreshToken:         String("rt1"),
		AccessTokenExpiresAt: Time(expiry),
	}))

	t1 := t0.Add(time.Minute)
	store.WithClock(fixedClock(t1))
	newExpiry := t1.Add(time.Hour)
	require.NoError(t, store.Save(ctx, "u1", Update{
		AccessToken:          String("at2"),
		AccessTokenExpiresAt: Time(newExpiry),
	}))

	got, err := store.Get(ctx, "u1")
	require.NoError(t, err)

	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, "jane@example.com", got.Email)
	assert.Equal(t, "Jane", got.Name)
	assert.Equal(t, "https://example.com/jane.png", got.ImageURL)
	assert.Equal(t, "at2", got.AccessToken)
	assert.Equal(t, "rt1", got.RefreshToken)
	assert.True(t, got.AccessTokenExpiresAt.Equal(newExpiry))
	assert.Equal(t, t1, got.LastUpdated)
}

func TestMemoryStore_GetNotFound(t *testing.T) {
	_, err := NewMemoryStore().Get(context.Background(), "u2")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_SaveRequiresUserID(t *testing.T) {
	err := NewMemoryStore().Save(context.Background(), "", Update{})
	assert.ErrorIs(t, err, ErrMissingUserID)
}

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Save(ctx, "u1", Update{AccessToken: String("at")}))

	got, err := store.Get(ctx, "u1")
	require.NoError(t, err)
	got.AccessToken = "mutated"

	again, err := store.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "at", again.AccessToken)
}

func TestMemoryStore_GetByEmail(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.Save(ctx, "u1", Update{Email: String("Jane@Example.com")}))

	got, err := store.GetByEmail(ctx, "jane@EXAMPLE.com")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)

	_, err = store.GetByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_GetByEmailLatestWriterWins(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.Save(ctx, "u1", Update{Email: String("shared@example.com")}))
	require.NoError(t, store.Save(ctx, "u2", Update{Email: String("shared@example.com")}))

	got, err := store.GetByEmail(ctx, "shared@example.com")
	require.NoError(t, err)
	assert.Equal(t, "u2", got.UserID)
}

func TestMemoryStore_EmailChangeDropsOldIndex(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.Save(ctx, "u1", Update{Email: String("old@example.com")}))
	require.NoError(t, store.Save(ctx, "u1", Update{Email: String("new@example.com")}))

	_, err := store.GetByEmail(ctx, "old@example.com")
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := store.GetByEmail(ctx, "new@example.com")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)
}

func TestMemoryStore_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewMemoryStore().Get(ctx, "u1")
	assert.True(t, IsUnavailable(err))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemoryStore_ConcurrentSaves(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = store.Save(ctx, fmt.Sprintf("u%d", i%5), Update{AccessToken: String(fmt.Sprintf("at%d", i))})
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 5, store.Len())
}
