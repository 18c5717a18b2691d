package calendar_tools

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/lifeassist/internal/calendar"
	"github.com/teemow/lifeassist/internal/instrumentation"
	"github.com/teemow/lifeassist/internal/server"
	"github.com/teemow/lifeassist/internal/tools/common"
)

// RegisterCalendarListTools registers calendar_list_calendars.
func RegisterCalendarListTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	listCalendarsTool := mcp.NewTool("calendar_list_calendars",
		mcp.WithDescription("List the calendars the user can see, primary first. Use the IDs as calendarId in the event tools."),
		mcp.WithBoolean("writableOnly",
			mcp.Description("Only list calendars the user can add events to (owner or writer access)"),
		),
		mcp.WithString(common.UserArg,
			mcp.Description(userArgDescription),
		),
	)

	s.AddTool(listCalendarsTool, common.InstrumentedToolHandlerWithService(
		"calendar_list_calendars", instrumentation.ServiceCalendar, instrumentation.OperationList, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleListCalendars(ctx, request, sc)
		}))

	return nil
}

func handleListCalendars(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	client, err := getCalendarClient(ctx, args, sc)
	if err != nil {
		return toolError("list calendars", err), nil
	}

	calendars, err := client.ListCalendars(ctx)
	if err != nil {
		return toolError("list calendars", err), nil
	}

	if writableOnly, _ := args["writableOnly"].(bool); writableOnly {
		calendars = slices.DeleteFunc(calendars, func(c calendar.CalendarInfo) bool {
			return c.AccessRole != "owner" && c.AccessRole != "writer"
		})
	}
	slices.SortStableFunc(calendars, func(a, b calendar.CalendarInfo) int {
		switch {
		case a.Primary == b.Primary:
			return 0
		case a.Primary:
			return -1
		default:
			return 1
		}
	})

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d calendar(s):\n\n", len(calendars))
	for i, cal := range calendars {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, cal.Summary)
		fmt.Fprintf(&sb, "   ID: %s\n", cal.ID)
		fmt.Fprintf(&sb, "   Access Role: %s\n", cal.AccessRole)
		if cal.Primary {
			sb.WriteString("   [PRIMARY]\n")
		}
		if cal.TimeZone != "" {
			fmt.Fprintf(&sb, "   Time Zone: %s\n", cal.TimeZone)
		}
		sb.WriteString("\n")
	}

	return mcp.NewToolResultText(sb.String()), nil
}
