package cmd

import (
	"bytes"
	"context"
	"encoding/base64"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/teemow/lifeassist/internal/calendar"
	"github.com/teemow/lifeassist/internal/clientsession"
	"github.com/teemow/lifeassist/internal/credential"
	"github.com/teemow/lifeassist/internal/google"
	"github.com/teemow/lifeassist/internal/server"
	"github.com/teemow/lifeassist/internal/session"
)

func TestPrintCredential(t *testing.T) {
	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	c := &credential.Credential{
		UserID:               "u1",
		Email:                "u1@example.com",
		Name:                 "User One",
		AccessToken:          "ya29.secret-access-token",
		RefreshToken:         "1//secret-refresh",
		AccessTokenExpiresAt: now.Add(30 * time.Minute),
	}

	var buf bytes.Buffer
	printCredential(&buf, c, now)
	out := buf.String()

	assert.Contains(t, out, "u1@example.com")
	assert.Contains(t, out, "(in 30m0s)")
	assert.NotContains(t, out, "secret-access")
	assert.NotContains(t, out, "secret-refresh")

	buf.Reset()
	c.AccessTokenExpiresAt = now.Add(-time.Minute)
	printCredential(&buf, c, now)
	assert.Contains(t, buf.String(), "(expired)")
}

func TestLookupCredential(t *testing.T) {
	ctx := context.Background()
	store := credential.NewMemoryStore()
	require.NoError(t, store.Save(ctx, "u1", credential.Update{
		Email:       credential.String("u1@example.com"),
		AccessToken: credential.String("at1"),
	}))

	byID, err := lookupCredential(ctx, store, "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1@example.com", byID.Email)

	byEmail, err := lookupCredential(ctx, store, "u1@example.com")
	require.NoError(t, err)
	assert.Equal(t, "u1", byEmail.UserID)

	_, err = lookupCredential(ctx, store, "u9")
	assert.ErrorIs(t, err, credential.ErrNotFound)
}

func TestCredentialsKeygen(t *testing.T) {
	cmd := newCredentialsKeygenCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetArgs(nil)
	require.NoError(t, cmd.Execute())

	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(buf.String()))
	require.NoError(t, err)
	assert.Len(t, key, 32)
}

func TestVersionCmd(t *testing.T) {
	cmd := newVersionCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetArgs(nil)
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "lifeassist version "+version+"\n", buf.String())
}

func TestSignOutCmd_ForgetsPointer(t *testing.T) {
	path := t.TempDir() + "/session.json"
	ctx := context.Background()
	cache := clientsession.NewCache(clientsession.NewFileStorage(path), 0)
	require.NoError(t, cache.Remember(ctx, "u1", "u1@example.com"))

	cmd := newSignOutCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{"--session-file", path})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "Signed out\n", buf.String())

	pointer, err := cache.Pointer(ctx)
	require.NoError(t, err)
	assert.True(t, pointer.IntentionalSignOut)
	assert.True(t, pointer.Empty())
}

func TestOpenBroker_RequiresClient(t *testing.T) {
	_, _, err := openBroker(context.Background(), cliConfig{}, false)
	assert.ErrorContains(t, err, "client id and secret")
}

type unusedRefresher struct{}

func (unusedRefresher) Refresh(context.Context, string) (*oauth2.Token, error) { return nil, nil }

type unusedProfiles struct{}

func (unusedProfiles) FetchProfile(context.Context, *oauth2.Token) (*google.Profile, error) {
	return nil, nil
}

func TestRegisterAllTools(t *testing.T) {
	broker, err := session.NewBroker(session.Config{
		OAuth2:    &oauth2.Config{ClientID: "client"},
		Store:     credential.NewMemoryStore(),
		Refresher: unusedRefresher{},
		Profiles:  unusedProfiles{},
	})
	require.NoError(t, err)

	sc := server.NewServerContext(context.Background(), server.Services{
		Broker:   broker,
		Calendar: calendar.NewService(google.StaticTokenProvider{}, calendar.ClientConfig{}, nil),
	})
	t.Cleanup(func() { _ = sc.Shutdown() })

	s := mcpserver.NewMCPServer("test", "0.0.0",
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithResourceCapabilities(false, false),
	)
	require.NoError(t, registerAllTools(s, sc, true))

	tools := s.ListTools()
	assert.Contains(t, tools, "calendar_list_events")
	assert.Contains(t, tools, "assistant_classify")
	assert.NotContains(t, tools, "calendar_delete_event")
	assert.NotContains(t, tools, "assistant_chat")
}

func TestRegisterAllTools_MissingBroker(t *testing.T) {
	sc := server.NewServerContext(context.Background(), server.Services{
		Calendar: calendar.NewService(google.StaticTokenProvider{}, calendar.ClientConfig{}, nil),
	})
	t.Cleanup(func() { _ = sc.Shutdown() })

	err := registerAllTools(mcpserver.NewMCPServer("test", "0.0.0"), sc, false)
	assert.ErrorContains(t, err, "User Resources")
}

func TestGetCategoryFromToolName(t *testing.T) {
	assert.Equal(t, "Google Calendar Tools", getCategoryFromToolName("calendar_list_events"))
	assert.Equal(t, "Assistant Tools", getCategoryFromToolName("assistant_classify"))
	assert.Equal(t, "Other", getCategoryFromToolName("misc"))
}

func TestGenerateToolMarkdown(t *testing.T) {
	tool := mcp.NewTool("calendar_get_event",
		mcp.WithDescription("Get details of a specific calendar event"),
		mcp.WithString("eventId", mcp.Required(), mcp.Description("The ID of the event")),
		mcp.WithString("calendarId"),
	)

	md := generateToolMarkdown(tool)
	assert.Contains(t, md, "### calendar_get_event")
	assert.Contains(t, md, "- `eventId` (required): The ID of the event")
	assert.Contains(t, md, "- `calendarId` (optional): string parameter")
	// Arguments are sorted by name.
	assert.Less(t, strings.Index(md, "calendarId"), strings.Index(md, "eventId"))
}

func TestBuildToolsMarkdown(t *testing.T) {
	md, err := buildToolsMarkdown()
	require.NoError(t, err)

	assert.Contains(t, md, "## Google Calendar Tools")
	assert.Contains(t, md, "## Assistant Tools")
	assert.Contains(t, md, "### calendar_list_events")
	assert.Contains(t, md, "### assistant_chat")
	assert.Contains(t, md, "With `--read-only` these tools are not registered: `calendar_create_event`, `calendar_delete_event`, `calendar_update_event`.")
	assert.Contains(t, md, "### user://profile")
}

func TestGenerateDocsCmd_Output(t *testing.T) {
	path := t.TempDir() + "/tools.md"

	cmd := newGenerateDocsCmd()
	var stderr bytes.Buffer
	cmd.SetErr(&stderr)
	cmd.SetArgs([]string{"--output", path})
	require.NoError(t, cmd.Execute())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "# MCP Tools Reference"))
	assert.Contains(t, stderr.String(), path)
}
