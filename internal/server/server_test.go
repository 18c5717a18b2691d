package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/teemow/lifeassist/internal/assistant"
	"github.com/teemow/lifeassist/internal/calendar"
	"github.com/teemow/lifeassist/internal/clientsession"
	"github.com/teemow/lifeassist/internal/credential"
	"github.com/teemow/lifeassist/internal/google"
	"github.com/teemow/lifeassist/internal/session"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

type fakeRefresher struct{}

func (fakeRefresher) Refresh(context.Context, string) (*oauth2.Token, error) {
	return &oauth2.Token{AccessToken: "at-refreshed", Expiry: time.Now().Add(time.Hour)}, nil
}

type fakeProfiles struct {
	profile *google.Profile
}

func (f *fakeProfiles) FetchProfile(context.Context, *oauth2.Token) (*google.Profile, error) {
	return f.profile, nil
}

type fakeCompleter struct {
	err error
}

func (f *fakeCompleter) Complete(context.Context, string, []assistant.Message) (*assistant.Completion, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &assistant.Completion{Text: "You have a standup at 9.", Usage: assistant.Usage{PromptTokens: 10, CompletionTokens: 6, TotalTokens: 16}}, nil
}

const eventJSON = `{"id":"e1","summary":"Standup","status":"confirmed",` +
	`"start":{"dateTime":"2026-10-16T09:00:00Z"},"end":{"dateTime":"2026-10-16T09:30:00Z"}}`

func fakeCalendarAPI(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /calendars/primary/events", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"items":[` + eventJSON + `]}`))
	})
	mux.HandleFunc("GET /calendars/primary/events/e1", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(eventJSON))
	})
	mux.HandleFunc("POST /calendars/primary/events", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(eventJSON))
	})
	mux.HandleFunc("DELETE /calendars/primary/events/e1", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("GET /users/me/calendarList", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"items":[{"id":"primary","summary":"Me","primary":true,"accessRole":"owner"}]}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func fakeTokenEndpoint(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at-new","refresh_token":"rt-new","token_type":"Bearer","expires_in":3600}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

type testEnv struct {
	server    *HTTPServer
	store     *credential.MemoryStore
	completer *fakeCompleter
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := credential.NewMemoryStore()
	require.NoError(t, store.Save(context.Background(), "u1", credential.Update{
		Email:                credential.String("u1@example.com"),
		Name:                 credential.String("User One"),
		AccessToken:          credential.String("at1"),
		RefreshToken:         credential.String("rt1"),
		AccessTokenExpiresAt: credential.Time(time.Now().Add(time.Hour)),
	}))

	tokenSrv := fakeTokenEndpoint(t)
	broker, err := session.NewBroker(session.Config{
		OAuth2: &oauth2.Config{
			ClientID:    "client",
			Endpoint:    oauth2.Endpoint{AuthURL: "https://accounts.example.com/auth", TokenURL: tokenSrv.URL},
			RedirectURL: "http://localhost:8080" + google.CallbackPath,
			Scopes:      google.DefaultOAuthScopes,
		},
		Store:      store,
		Refresher:  fakeRefresher{},
		Profiles:   &fakeProfiles{profile: &google.Profile{Sub: "u2", Email: "u2@example.com", Name: "User Two"}},
		HTTPClient: tokenSrv.Client(),
	})
	require.NoError(t, err)

	calSrv := fakeCalendarAPI(t)
	cal := calendar.NewService(broker, calendar.ClientConfig{HTTPClient: calSrv.Client(), Endpoint: calSrv.URL + "/"}, nil)
	completer := &fakeCompleter{}

	sc := NewServerContext(context.Background(), Services{
		Broker:    broker,
		Calendar:  cal,
		Assistant: assistant.NewService(cal, completer, nil),
	})
	t.Cleanup(func() { _ = sc.Shutdown() })

	srv, err := NewHTTPServer(sc, Config{
		BaseURL: "http://localhost:8080",
		Cookies: CookieConfig{Secret: testSecret},
		Restore: clientsession.RestorerConfig{MaxRetries: -1},
	})
	require.NoError(t, err)

	return &testEnv{server: srv, store: store, completer: completer}
}

func (e *testEnv) do(t *testing.T, req *http.Request, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) identityCookie(t *testing.T, userID string) *http.Cookie {
	t.Helper()
	rec := httptest.NewRecorder()
	require.NoError(t, e.server.cookies.SetIdentity(rec, Identity{UserID: userID, Email: userID + "@example.com"}))
	return findCookie(rec.Result().Cookies(), IdentityCookieName)
}

func findCookie(cookies []*http.Cookie, name string) *http.Cookie {
	for _, c := range cookies {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestValidateHTTPSRequirement(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
		wantErr bool
	}{
		{name: "valid HTTPS URL", baseURL: "https://assist.example.com", wantErr: false},
		{name: "valid HTTP localhost", baseURL: "http://localhost:8080", wantErr: false},
		{name: "valid HTTP 127.0.0.1", baseURL: "http://127.0.0.1:8080", wantErr: false},
		{name: "valid HTTP ::1 (IPv6 loopback)", baseURL: "http://[::1]:8080", wantErr: false},
		{name: "invalid HTTP non-localhost", baseURL: "http://assist.example.com", wantErr: true},
		{name: "invalid HTTP with localhost substring", baseURL: "http://localhost.example.com", wantErr: true},
		{name: "invalid HTTP with 127.0.0.1 in domain", baseURL: "http://127.0.0.1.example.com", wantErr: true},
		{name: "empty URL", baseURL: "", wantErr: true},
		{name: "invalid URL format", baseURL: "not a url", wantErr: true},
		{name: "invalid scheme", baseURL: "ftp://example.com", wantErr: true},
		{name: "HTTPS with path", baseURL: "https://assist.example.com/app", wantErr: false},
		{name: "HTTPS with port", baseURL: "https://assist.example.com:8443", wantErr: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateHTTPSRequirement(tt.baseURL)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateHTTPSRequirement() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewHTTPServer_RejectsInsecureConfig(t *testing.T) {
	sc := NewServerContext(context.Background(), Services{})

	_, err := NewHTTPServer(sc, Config{BaseURL: "http://assist.example.com", Cookies: CookieConfig{Secret: testSecret}})
	assert.Error(t, err)

	_, err = NewHTTPServer(sc, Config{BaseURL: "https://assist.example.com", Cookies: CookieConfig{Secret: []byte("short")}})
	assert.ErrorContains(t, err, "session secret")
}

func TestResponseWriter(t *testing.T) {
	t.Run("captures status code", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		rw := newResponseWriter(recorder)

		rw.WriteHeader(http.StatusNotFound)

		assert.Equal(t, http.StatusNotFound, rw.statusCode)
	})

	t.Run("defaults to 200", func(t *testing.T) {
		rw := newResponseWriter(httptest.NewRecorder())
		assert.Equal(t, http.StatusOK, rw.statusCode)
	})

	t.Run("keeps the first status", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		rw := newResponseWriter(recorder)

		rw.WriteHeader(http.StatusCreated)
		rw.WriteHeader(http.StatusInternalServerError)

		assert.Equal(t, http.StatusCreated, rw.statusCode)
		assert.Equal(t, http.StatusCreated, recorder.Code)
	})
}

func TestInstrumentationMiddleware(t *testing.T) {
	t.Run("calls next handler when no metrics", func(t *testing.T) {
		server := &HTTPServer{sc: NewServerContext(context.Background(), Services{})}
		called := false
		next := http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
			called = true
		})

		handler := server.instrumentationMiddleware(next)
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/test", nil))

		assert.True(t, called)
	})
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	handler := requestIDMiddleware(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	t.Run("assigns an id", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		id := rec.Header().Get(RequestIDHeader)
		_, err := ulid.ParseStrict(id)
		require.NoError(t, err)
		assert.Equal(t, id, seen)
	})

	t.Run("keeps a valid client id", func(t *testing.T) {
		want := ulid.Make().String()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, want)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, want, rec.Header().Get(RequestIDHeader))
	})

	t.Run("replaces garbage", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, "<script>")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.NotEqual(t, "<script>", rec.Header().Get(RequestIDHeader))
	})
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", invalid("bad"), http.StatusBadRequest},
		{"no user message", assistant.ErrNoUserMessage, http.StatusBadRequest},
		{"no identity", ErrNoIdentity, http.StatusUnauthorized},
		{"expired", &session.SessionError{UserID: "u1", Err: session.ErrSessionExpired}, http.StatusUnauthorized},
		{"not found", session.ErrSessionNotFound, http.StatusUnauthorized},
		{"store", &credential.StoreError{Op: "get", Err: errors.New("dial tcp")}, http.StatusServiceUnavailable},
		{"remote", session.NewRemoteServiceError("calendar", "list", errors.New("boom")), http.StatusBadGateway},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, msg := statusFor(tt.err)
			assert.Equal(t, tt.want, got)
			assert.NotEmpty(t, msg)
		})
	}
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, healthStatusOK, resp.Checks["credential_store"])

	env.server.Health().SetReady(false)
	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("connection refused") }

func TestReadiness_StoreDown(t *testing.T) {
	h := NewHealthChecker(nil, failingPinger{})

	rec := httptest.NewRecorder()
	h.ReadinessHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), healthStatusUnavailable))
}

func TestAuthDebugHeaders(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/api/auth/session", nil))
	assert.Equal(t, "unauthenticated", rec.Header().Get(HeaderAuthStatus))
	assert.Empty(t, rec.Header().Get(HeaderAuthUserID))

	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/api/auth/session", nil), env.identityCookie(t, "u1"))
	assert.Equal(t, "authenticated", rec.Header().Get(HeaderAuthStatus))
	assert.Equal(t, "u1", rec.Header().Get(HeaderAuthUserID))

	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/healthz", nil), env.identityCookie(t, "u1"))
	assert.Empty(t, rec.Header().Get(HeaderAuthStatus))
}
