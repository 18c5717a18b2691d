package calendar_tools

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/lifeassist/internal/calendar"
	"github.com/teemow/lifeassist/internal/google"
	"github.com/teemow/lifeassist/internal/server"
)

const eventJSON = `{"id":"e1","summary":"Standup","status":"confirmed","location":"Room 1",` +
	`"start":{"dateTime":"2026-10-16T09:00:00Z"},"end":{"dateTime":"2026-10-16T09:30:00Z"},` +
	`"attendees":[{"email":"bob@example.com","responseStatus":"accepted"}]}`

// fakeAPI is a minimal Calendar API that records the requests it serves.
type fakeAPI struct {
	mu       sync.Mutex
	requests []string
	bodies   []string
}

func (f *fakeAPI) record(r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, r.Method+" "+r.URL.Path)
	f.bodies = append(f.bodies, string(body))
}

func newTestContext(t *testing.T) (*server.ServerContext, *fakeAPI) {
	t.Helper()

	api := &fakeAPI{}
	mux := http.NewServeMux()
	writeJSON := func(body string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			api.record(r)
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(body))
		}
	}
	mux.HandleFunc("GET /calendars/primary/events", writeJSON(`{"items":[`+eventJSON+`]}`))
	mux.HandleFunc("GET /calendars/primary/events/e1", writeJSON(eventJSON))
	mux.HandleFunc("POST /calendars/primary/events", writeJSON(eventJSON))
	mux.HandleFunc("PUT /calendars/primary/events/e1", writeJSON(eventJSON))
	mux.HandleFunc("DELETE /calendars/primary/events/{id}", func(w http.ResponseWriter, r *http.Request) {
		api.record(r)
		if strings.HasPrefix(r.PathValue("id"), "missing") {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"code":404,"message":"Not Found"}}`))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("GET /users/me/calendarList", writeJSON(
		`{"items":[`+
			`{"id":"holidays","summary":"Holidays","accessRole":"reader"},`+
			`{"id":"primary","summary":"Me","primary":true,"accessRole":"owner","timeZone":"Europe/Berlin"},`+
			`{"id":"team","summary":"Team","accessRole":"writer"}]}`))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	tokens := google.StaticTokenProvider{"u1": {AccessToken: "at1", Expiry: time.Now().Add(time.Hour)}}
	cal := calendar.NewService(tokens, calendar.ClientConfig{HTTPClient: srv.Client(), Endpoint: srv.URL + "/"}, nil)

	sc := server.NewServerContext(context.Background(), server.Services{Calendar: cal, DefaultUser: "u1"})
	t.Cleanup(func() { _ = sc.Shutdown() })
	return sc, api
}

func callRequest(args map[string]interface{}) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func TestSplitList(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"a@example.com", []string{"a@example.com"}},
		{" a@example.com , b@example.com,,", []string{"a@example.com", "b@example.com"}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, splitList(tt.in), tt.in)
	}
}

func TestCalendarIDArg(t *testing.T) {
	assert.Equal(t, calendar.PrimaryCalendar, calendarIDArg(map[string]interface{}{}))
	assert.Equal(t, calendar.PrimaryCalendar, calendarIDArg(map[string]interface{}{"calendarId": 7}))
	assert.Equal(t, "work", calendarIDArg(map[string]interface{}{"calendarId": "work"}))
}

func TestTimeArg(t *testing.T) {
	got, err := timeArg(map[string]interface{}{}, "start")
	require.NoError(t, err)
	assert.True(t, got.IsZero())

	got, err = timeArg(map[string]interface{}{"start": "2026-01-15T14:00:00Z"}, "start")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 1, 15, 14, 0, 0, 0, time.UTC), got)

	_, err = timeArg(map[string]interface{}{"start": "tomorrow"}, "start")
	assert.ErrorContains(t, err, "invalid start format")
}

func TestRegisterCalendarTools(t *testing.T) {
	sc, _ := newTestContext(t)

	t.Run("read-write", func(t *testing.T) {
		s := mcpserver.NewMCPServer("test", "0.0.0", mcpserver.WithToolCapabilities(true))
		require.NoError(t, RegisterCalendarTools(s, sc, false))

		tools := s.ListTools()
		for _, name := range []string{
			"calendar_list_events", "calendar_get_event", "calendar_create_event",
			"calendar_update_event", "calendar_delete_event", "calendar_list_calendars",
		} {
			assert.Contains(t, tools, name)
		}
	})

	t.Run("read-only", func(t *testing.T) {
		s := mcpserver.NewMCPServer("test", "0.0.0", mcpserver.WithToolCapabilities(true))
		require.NoError(t, RegisterCalendarTools(s, sc, true))

		tools := s.ListTools()
		assert.Contains(t, tools, "calendar_list_events")
		assert.Contains(t, tools, "calendar_list_calendars")
		assert.NotContains(t, tools, "calendar_create_event")
		assert.NotContains(t, tools, "calendar_update_event")
		assert.NotContains(t, tools, "calendar_delete_event")
	})

	t.Run("no calendar service", func(t *testing.T) {
		s := mcpserver.NewMCPServer("test", "0.0.0")
		empty := server.NewServerContext(context.Background(), server.Services{})
		assert.Error(t, RegisterCalendarTools(s, empty, false))
	})
}

func TestHandleListEvents(t *testing.T) {
	sc, api := newTestContext(t)
	ctx := context.Background()

	res, err := handleListEvents(ctx, callRequest(map[string]interface{}{"query": "standup"}), sc)
	require.NoError(t, err)
	assert.False(t, res.IsError)
	text := resultText(t, res)
	assert.Contains(t, text, "Found 1 events")
	assert.Contains(t, text, "1. Standup")
	assert.Contains(t, text, "ID: e1")
	assert.Contains(t, text, "Location: Room 1")
	assert.Equal(t, []string{"GET /calendars/primary/events"}, api.requests)

	tests := []struct {
		name string
		args map[string]interface{}
		want string
	}{
		{"bad timeMin", map[string]interface{}{"timeMin": "yesterday"}, "invalid timeMin format"},
		{"reversed range", map[string]interface{}{
			"timeMin": "2026-02-01T00:00:00Z", "timeMax": "2026-01-01T00:00:00Z",
		}, "timeMax must be after timeMin"},
		{"maxResults too large", map[string]interface{}{"maxResults": float64(1000)}, "maxResults must be between"},
		{"maxResults zero", map[string]interface{}{"maxResults": float64(0)}, "maxResults must be between"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := handleListEvents(ctx, callRequest(tt.args), sc)
			require.NoError(t, err)
			assert.True(t, res.IsError)
			assert.Contains(t, resultText(t, res), tt.want)
		})
	}
}

func TestHandleListEvents_UnknownUser(t *testing.T) {
	sc, api := newTestContext(t)

	res, err := handleListEvents(context.Background(), callRequest(map[string]interface{}{"user": "u9"}), sc)
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "Failed to list events")
	assert.Empty(t, api.requests)
}

func TestHandleListEvents_SignedInUserWins(t *testing.T) {
	sc, _ := newTestContext(t)
	ctx := server.ContextWithIdentity(context.Background(), &server.Identity{UserID: "u9"})

	// The argument names a known user but the session belongs to u9.
	res, err := handleListEvents(ctx, callRequest(map[string]interface{}{"user": "u1"}), sc)
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestHandleGetEvent(t *testing.T) {
	sc, _ := newTestContext(t)
	ctx := context.Background()

	res, err := handleGetEvent(ctx, callRequest(map[string]interface{}{}), sc)
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "eventId is required")

	res, err = handleGetEvent(ctx, callRequest(map[string]interface{}{"eventId": "e1"}), sc)
	require.NoError(t, err)
	assert.False(t, res.IsError)
	text := resultText(t, res)
	assert.Contains(t, text, "Event: Standup")
	assert.Contains(t, text, "Status: confirmed")
	assert.Contains(t, text, "bob@example.com (accepted)")
}

func TestHandleCreateEvent(t *testing.T) {
	sc, api := newTestContext(t)
	ctx := context.Background()

	tests := []struct {
		name string
		args map[string]interface{}
		want string
	}{
		{"missing summary", map[string]interface{}{
			"start": "2026-10-16T09:00:00Z", "end": "2026-10-16T09:30:00Z",
		}, "summary is required"},
		{"missing end", map[string]interface{}{
			"summary": "Standup", "start": "2026-10-16T09:00:00Z",
		}, "end is required"},
		{"end before start", map[string]interface{}{
			"summary": "Standup", "start": "2026-10-16T09:00:00Z", "end": "2026-10-16T08:00:00Z",
		}, "end must not be before start"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := handleCreateEvent(ctx, callRequest(tt.args), sc)
			require.NoError(t, err)
			assert.True(t, res.IsError)
			assert.Contains(t, resultText(t, res), tt.want)
		})
	}
	assert.Empty(t, api.requests)

	res, err := handleCreateEvent(ctx, callRequest(map[string]interface{}{
		"summary":   "Standup",
		"start":     "2026-10-16T09:00:00Z",
		"end":       "2026-10-16T09:30:00Z",
		"attendees": "bob@example.com, carol@example.com",
	}), sc)
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Contains(t, resultText(t, res), "Successfully created event: Standup")
	require.Equal(t, []string{"POST /calendars/primary/events"}, api.requests)
	assert.Contains(t, api.bodies[0], "carol@example.com")
}

func TestHandleUpdateEvent(t *testing.T) {
	sc, api := newTestContext(t)

	res, err := handleUpdateEvent(context.Background(), callRequest(map[string]interface{}{
		"eventId":  "e1",
		"location": "Room 2",
	}), sc)
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Contains(t, resultText(t, res), "Successfully updated event")
	assert.Equal(t, []string{"GET /calendars/primary/events/e1", "PUT /calendars/primary/events/e1"}, api.requests)
	// Fields not given keep their stored values.
	assert.Contains(t, api.bodies[1], `"summary":"Standup"`)
	assert.Contains(t, api.bodies[1], `"location":"Room 2"`)
}

func TestHandleDeleteEvent(t *testing.T) {
	t.Run("single", func(t *testing.T) {
		sc, api := newTestContext(t)
		res, err := handleDeleteEvent(context.Background(), callRequest(map[string]interface{}{"eventId": "e1"}), sc)
		require.NoError(t, err)
		assert.False(t, res.IsError)
		assert.Contains(t, resultText(t, res), "Successfully deleted event e1")
		assert.Equal(t, []string{"DELETE /calendars/primary/events/e1"}, api.requests)
	})

	t.Run("batch with a failure", func(t *testing.T) {
		sc, api := newTestContext(t)
		res, err := handleDeleteEvent(context.Background(), callRequest(map[string]interface{}{
			"eventId": []interface{}{"e1", "missing"},
		}), sc)
		require.NoError(t, err)
		assert.False(t, res.IsError)
		text := resultText(t, res)
		assert.Contains(t, text, `"successful": 1`)
		assert.Contains(t, text, `"failed": 1`)
		assert.Len(t, api.requests, 2)
	})

	t.Run("batch all failed", func(t *testing.T) {
		sc, _ := newTestContext(t)
		res, err := handleDeleteEvent(context.Background(), callRequest(map[string]interface{}{
			"eventId": `["missing1","missing2"]`,
		}), sc)
		require.NoError(t, err)
		assert.True(t, res.IsError)
	})

	t.Run("missing ids", func(t *testing.T) {
		sc, api := newTestContext(t)
		res, err := handleDeleteEvent(context.Background(), callRequest(map[string]interface{}{}), sc)
		require.NoError(t, err)
		assert.True(t, res.IsError)
		assert.Empty(t, api.requests)
	})
}

func TestHandleListCalendars(t *testing.T) {
	sc, _ := newTestContext(t)

	res, err := handleListCalendars(context.Background(), callRequest(map[string]interface{}{}), sc)
	require.NoError(t, err)
	assert.False(t, res.IsError)
	text := resultText(t, res)
	assert.Contains(t, text, "Found 3 calendar(s)")
	assert.Contains(t, text, "1. Me\n   ID: primary\n   Access Role: owner\n   [PRIMARY]\n   Time Zone: Europe/Berlin\n")
	assert.Contains(t, text, "2. Holidays")
	assert.Contains(t, text, "3. Team")

	res, err = handleListCalendars(context.Background(), callRequest(map[string]interface{}{"writableOnly": true}), sc)
	require.NoError(t, err)
	text = resultText(t, res)
	assert.Contains(t, text, "Found 2 calendar(s)")
	assert.NotContains(t, text, "Holidays")
	assert.Contains(t, text, "2. Team")
}

func TestToolError(t *testing.T) {
	res := toolError("list events", io.ErrUnexpectedEOF)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "Failed to list events: unexpected EOF")
}
