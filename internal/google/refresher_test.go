package google

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func newTokenServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func testOAuth2Config(tokenURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     "client",
		ClientSecret: "secret",
		Endpoint: oauth2.Endpoint{
			AuthURL:   tokenURL + "/auth",
			TokenURL:  tokenURL + "/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

func TestOAuthRefresher_Refresh(t *testing.T) {
	srv, calls := newTokenServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "rt1", r.PostForm.Get("refresh_token"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at2","token_type":"Bearer","expires_in":3600}`))
	})

	r := NewOAuthRefresher(testOAuth2Config(srv.URL), srv.Client(), nil)
	before := time.Now()
	tok, err := r.Refresh(context.Background(), "rt1")
	require.NoError(t, err)

	assert.Equal(t, "at2", tok.AccessToken)
	assert.WithinDuration(t, before.Add(time.Hour), tok.Expiry, 5*time.Second)
	assert.Equal(t, int32(1), calls.Load())
}

func TestOAuthRefresher_RotatedRefreshToken(t *testing.T) {
	srv, _ := newTokenServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at2","refresh_token":"rt2","expires_in":3600}`))
	})

	r := NewOAuthRefresher(testOAuth2Config(srv.URL), srv.Client(), nil)
	tok, err := r.Refresh(context.Background(), "rt1")
	require.NoError(t, err)
	assert.Equal(t, "rt2", tok.RefreshToken)
}

func TestOAuthRefresher_EmptyRefreshToken(t *testing.T) {
	srv, calls := newTokenServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	r := NewOAuthRefresher(testOAuth2Config(srv.URL), srv.Client(), nil)
	_, err := r.Refresh(context.Background(), "")
	require.Error(t, err)

	var re *RefreshError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, ReasonNoRefreshToken, re.Reason)
	assert.Equal(t, int32(0), calls.Load())
}

func TestOAuthRefresher_Rejected(t *testing.T) {
	srv, calls := newTokenServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"Token has been expired or revoked."}`))
	})

	r := NewOAuthRefresher(testOAuth2Config(srv.URL), srv.Client(), nil)
	_, err := r.Refresh(context.Background(), "revoked")
	require.Error(t, err)

	var re *RefreshError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "invalid_grant", re.Reason)

	var retrieveErr *oauth2.RetrieveError
	assert.True(t, errors.As(err, &retrieveErr))
	assert.Equal(t, int32(1), calls.Load(), "refresh must not retry")
}
