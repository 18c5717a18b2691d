package calendar_tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/lifeassist/internal/calendar"
	"github.com/teemow/lifeassist/internal/server"
	"github.com/teemow/lifeassist/internal/session"
	"github.com/teemow/lifeassist/internal/tools/common"
)

const userArgDescription = "User id to act for (stdio only; ignored when signed in over HTTP)"

// errNoUser is returned when neither a signed-in user, a user argument nor
// a default user is available.
var errNoUser = fmt.Errorf("no user: sign in over HTTP, pass the %q argument, or start the server with --user", common.UserArg)

// getCalendarClient returns the Calendar client of the user the call acts for.
func getCalendarClient(ctx context.Context, args map[string]interface{}, sc *server.ServerContext) (*calendar.Client, error) {
	userID := common.ResolveUser(ctx, sc, args)
	if userID == "" {
		return nil, errNoUser
	}
	return sc.Calendar().ForUser(ctx, userID)
}

// toolError turns err into a tool error result. Session errors get a
// sign-in hint instead of the raw error.
func toolError(action string, err error) *mcp.CallToolResult {
	if session.IsAuthError(err) {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to %s: the Google session has ended. Sign in again at /api/auth/google.", action))
	}
	return mcp.NewToolResultError(fmt.Sprintf("Failed to %s: %v", action, err))
}

func stringArg(args map[string]interface{}, name string) string {
	v, _ := args[name].(string)
	return v
}

func calendarIDArg(args map[string]interface{}) string {
	if id := stringArg(args, "calendarId"); id != "" {
		return id
	}
	return calendar.PrimaryCalendar
}

func timeArg(args map[string]interface{}, name string) (time.Time, error) {
	s := stringArg(args, name)
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s format: %v", name, err)
	}
	return t, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// RegisterCalendarTools registers all Calendar-related tools with the MCP server.
// The create, update and delete tools are left out in read-only mode.
func RegisterCalendarTools(s *mcpserver.MCPServer, sc *server.ServerContext, readOnly bool) error {
	if sc.Calendar() == nil {
		return fmt.Errorf("calendar service is not configured")
	}

	if err := RegisterEventTools(s, sc, readOnly); err != nil {
		return fmt.Errorf("failed to register event tools: %w", err)
	}

	if err := RegisterCalendarListTools(s, sc); err != nil {
		return fmt.Errorf("failed to register calendar list tools: %w", err)
	}

	return nil
}
