package calendar_tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/lifeassist/internal/calendar"
	"github.com/teemow/lifeassist/internal/instrumentation"
	"github.com/teemow/lifeassist/internal/server"
	"github.com/teemow/lifeassist/internal/tools/batch"
	"github.com/teemow/lifeassist/internal/tools/common"
)

// maxListResults caps calendar_list_events.
const maxListResults = 250

// RegisterEventTools registers event-related tools with the MCP server
func RegisterEventTools(s *mcpserver.MCPServer, sc *server.ServerContext, readOnly bool) error {
	listEventsTool := mcp.NewTool("calendar_list_events",
		mcp.WithDescription("List/search calendar events. Without a range, lists from 30 days ago to a year ahead."),
		mcp.WithString(common.UserArg,
			mcp.Description(userArgDescription),
		),
		mcp.WithString("calendarId",
			mcp.Description("Calendar ID (use 'primary' for primary calendar)"),
		),
		mcp.WithString("timeMin",
			mcp.Description("Start time for the range (RFC3339 format, e.g., '2026-01-01T00:00:00Z')"),
		),
		mcp.WithString("timeMax",
			mcp.Description("End time for the range (RFC3339 format, e.g., '2026-01-31T23:59:59Z')"),
		),
		mcp.WithString("query",
			mcp.Description("Optional search query to filter events"),
		),
		mcp.WithNumber("maxResults",
			mcp.Description("Maximum number of events (default 10, at most 250)"),
		),
	)

	s.AddTool(listEventsTool, common.InstrumentedToolHandlerWithService(
		"calendar_list_events", instrumentation.ServiceCalendar, instrumentation.OperationList, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleListEvents(ctx, request, sc)
		}))

	getEventTool := mcp.NewTool("calendar_get_event",
		mcp.WithDescription("Get details of a specific calendar event"),
		mcp.WithString(common.UserArg,
			mcp.Description(userArgDescription),
		),
		mcp.WithString("calendarId",
			mcp.Description("Calendar ID (use 'primary' for primary calendar)"),
		),
		mcp.WithString("eventId",
			mcp.Required(),
			mcp.Description("The ID of the event to retrieve"),
		),
	)

	s.AddTool(getEventTool, common.InstrumentedToolHandlerWithService(
		"calendar_get_event", instrumentation.ServiceCalendar, instrumentation.OperationGet, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleGetEvent(ctx, request, sc)
		}))

	if readOnly {
		return nil
	}

	createEventTool := mcp.NewTool("calendar_create_event",
		mcp.WithDescription("Create a new calendar event (supports all-day and recurring events)"),
		mcp.WithString(common.UserArg,
			mcp.Description(userArgDescription),
		),
		mcp.WithString("calendarId",
			mcp.Description("Calendar ID (use 'primary' for primary calendar)"),
		),
		mcp.WithString("summary",
			mcp.Required(),
			mcp.Description("Event title/summary"),
		),
		mcp.WithString("description",
			mcp.Description("Event description"),
		),
		mcp.WithString("location",
			mcp.Description("Event location"),
		),
		mcp.WithString("start",
			mcp.Required(),
			mcp.Description("Start time (RFC3339 format, e.g., '2026-01-15T14:00:00Z')"),
		),
		mcp.WithString("end",
			mcp.Required(),
			mcp.Description("End time (RFC3339 format, e.g., '2026-01-15T15:00:00Z')"),
		),
		mcp.WithString("timeZone",
			mcp.Description("Time zone (e.g., 'America/New_York'). Defaults to UTC."),
		),
		mcp.WithString("attendees",
			mcp.Description("Comma-separated list of attendee email addresses"),
		),
		mcp.WithString("recurrence",
			mcp.Description("Recurrence rule (e.g., 'RRULE:FREQ=WEEKLY;BYDAY=MO,WE,FR')"),
		),
		mcp.WithBoolean("allDay",
			mcp.Description("Create as all-day event (ignores time portion of start/end)"),
		),
	)

	s.AddTool(createEventTool, common.InstrumentedToolHandlerWithService(
		"calendar_create_event", instrumentation.ServiceCalendar, instrumentation.OperationCreate, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleCreateEvent(ctx, request, sc)
		}))

	updateEventTool := mcp.NewTool("calendar_update_event",
		mcp.WithDescription("Update an existing calendar event. Only the given fields change."),
		mcp.WithString(common.UserArg,
			mcp.Description(userArgDescription),
		),
		mcp.WithString("calendarId",
			mcp.Description("Calendar ID (use 'primary' for primary calendar)"),
		),
		mcp.WithString("eventId",
			mcp.Required(),
			mcp.Description("The ID of the event to update"),
		),
		mcp.WithString("summary",
			mcp.Description("New event title/summary"),
		),
		mcp.WithString("description",
			mcp.Description("New event description"),
		),
		mcp.WithString("location",
			mcp.Description("New event location"),
		),
		mcp.WithString("start",
			mcp.Description("New start time (RFC3339 format)"),
		),
		mcp.WithString("end",
			mcp.Description("New end time (RFC3339 format)"),
		),
		mcp.WithString("timeZone",
			mcp.Description("Time zone (e.g., 'America/New_York')"),
		),
		mcp.WithString("attendees",
			mcp.Description("New comma-separated list of attendee email addresses"),
		),
	)

	s.AddTool(updateEventTool, common.InstrumentedToolHandlerWithService(
		"calendar_update_event", instrumentation.ServiceCalendar, instrumentation.OperationUpdate, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleUpdateEvent(ctx, request, sc)
		}))

	deleteEventTool := mcp.NewTool("calendar_delete_event",
		mcp.WithDescription("Delete one or more calendar events"),
		mcp.WithString(common.UserArg,
			mcp.Description(userArgDescription),
		),
		mcp.WithString("calendarId",
			mcp.Description("Calendar ID (use 'primary' for primary calendar)"),
		),
		mcp.WithString("eventId",
			mcp.Required(),
			mcp.Description("The ID of the event to delete, or a JSON array of IDs"),
		),
	)

	s.AddTool(deleteEventTool, common.InstrumentedToolHandlerWithService(
		"calendar_delete_event", instrumentation.ServiceCalendar, instrumentation.OperationDelete, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleDeleteEvent(ctx, request, sc)
		}))

	return nil
}

func formatEventLine(b *strings.Builder, i int, event calendar.EventSummary) {
	fmt.Fprintf(b, "%d. %s\n", i+1, event.Summary)
	fmt.Fprintf(b, "   ID: %s\n", event.ID)
	if event.AllDay {
		fmt.Fprintf(b, "   Date: %s (all day)\n", event.Start.Format(time.DateOnly))
	} else {
		fmt.Fprintf(b, "   Start: %s\n", event.Start.Format(time.RFC3339))
		fmt.Fprintf(b, "   End: %s\n", event.End.Format(time.RFC3339))
	}
	if event.Location != "" {
		fmt.Fprintf(b, "   Location: %s\n", event.Location)
	}
	if len(event.Attendees) > 0 {
		fmt.Fprintf(b, "   Attendees: %d\n", len(event.Attendees))
	}
	b.WriteString("\n")
}

func handleListEvents(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	timeMin, err := timeArg(args, "timeMin")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	timeMax, err := timeArg(args, "timeMax")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	now := time.Now()
	if timeMin.IsZero() {
		timeMin = now.Add(-calendar.UpcomingLookBack)
	}
	if timeMax.IsZero() {
		timeMax = now.Add(calendar.UpcomingLookAhead)
	}
	if !timeMax.After(timeMin) {
		return mcp.NewToolResultError("timeMax must be after timeMin"), nil
	}

	maxResults := calendar.DefaultUpcomingMax
	if v, ok := args["maxResults"].(float64); ok {
		if v < 1 || v > maxListResults {
			return mcp.NewToolResultError(fmt.Sprintf("maxResults must be between 1 and %d", maxListResults)), nil
		}
		maxResults = int(v)
	}

	client, err := getCalendarClient(ctx, args, sc)
	if err != nil {
		return toolError("list events", err), nil
	}

	events, err := client.ListEvents(ctx, calendarIDArg(args), timeMin, timeMax, stringArg(args, "query"), maxResults)
	if err != nil {
		return toolError("list events", err), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d events:\n\n", len(events))
	for i, event := range events {
		formatEventLine(&b, i, event)
	}

	return mcp.NewToolResultText(b.String()), nil
}

func handleGetEvent(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	eventID := stringArg(args, "eventId")
	if eventID == "" {
		return mcp.NewToolResultError("eventId is required"), nil
	}

	client, err := getCalendarClient(ctx, args, sc)
	if err != nil {
		return toolError("get event", err), nil
	}

	event, err := client.GetEvent(ctx, calendarIDArg(args), eventID)
	if err != nil {
		return toolError("get event", err), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Event: %s\n", event.Summary)
	fmt.Fprintf(&b, "ID: %s\n", event.ID)
	fmt.Fprintf(&b, "Start: %s\n", event.Start.Format(time.RFC3339))
	fmt.Fprintf(&b, "End: %s\n", event.End.Format(time.RFC3339))
	if event.Status != "" {
		fmt.Fprintf(&b, "Status: %s\n", event.Status)
	}
	if event.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", event.Description)
	}
	if event.Location != "" {
		fmt.Fprintf(&b, "Location: %s\n", event.Location)
	}
	if event.Organizer != "" {
		fmt.Fprintf(&b, "Organizer: %s\n", event.Organizer)
	}
	if event.MeetLink != "" {
		fmt.Fprintf(&b, "Google Meet: %s\n", event.MeetLink)
	}
	if event.HTMLLink != "" {
		fmt.Fprintf(&b, "Link: %s\n", event.HTMLLink)
	}

	if len(event.Attendees) > 0 {
		fmt.Fprintf(&b, "\nAttendees (%d):\n", len(event.Attendees))
		for _, att := range event.Attendees {
			fmt.Fprintf(&b, "  - %s (%s)", att.Email, att.ResponseStatus)
			if att.DisplayName != "" {
				fmt.Fprintf(&b, " - %s", att.DisplayName)
			}
			if att.Optional {
				b.WriteString(" [optional]")
			}
			b.WriteString("\n")
		}
	}

	return mcp.NewToolResultText(b.String()), nil
}

// eventInputFromArgs reads the optional event fields shared by create and update.
func eventInputFromArgs(args map[string]interface{}) (calendar.EventInput, error) {
	input := calendar.EventInput{
		Summary:     stringArg(args, "summary"),
		Description: stringArg(args, "description"),
		Location:    stringArg(args, "location"),
		TimeZone:    stringArg(args, "timeZone"),
		Attendees:   splitList(stringArg(args, "attendees")),
	}

	var err error
	if input.Start, err = timeArg(args, "start"); err != nil {
		return input, err
	}
	if input.End, err = timeArg(args, "end"); err != nil {
		return input, err
	}
	if !input.Start.IsZero() && !input.End.IsZero() && input.End.Before(input.Start) {
		return input, fmt.Errorf("end must not be before start")
	}

	if recurrence := stringArg(args, "recurrence"); recurrence != "" {
		input.Recurrence = []string{recurrence}
	}
	if allDay, ok := args["allDay"].(bool); ok {
		input.AllDay = allDay
	}
	return input, nil
}

func handleCreateEvent(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	input, err := eventInputFromArgs(args)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	switch {
	case input.Summary == "":
		return mcp.NewToolResultError("summary is required"), nil
	case input.Start.IsZero():
		return mcp.NewToolResultError("start is required"), nil
	case input.End.IsZero():
		return mcp.NewToolResultError("end is required"), nil
	}

	client, err := getCalendarClient(ctx, args, sc)
	if err != nil {
		return toolError("create event", err), nil
	}

	event, err := client.CreateEvent(ctx, calendarIDArg(args), input)
	if err != nil {
		return toolError("create event", err), nil
	}

	result := fmt.Sprintf("Successfully created event: %s\n", event.Summary)
	result += fmt.Sprintf("ID: %s\n", event.ID)
	result += fmt.Sprintf("Start: %s\n", event.Start.Format(time.RFC3339))
	result += fmt.Sprintf("End: %s\n", event.End.Format(time.RFC3339))

	return mcp.NewToolResultText(result), nil
}

func handleUpdateEvent(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	eventID := stringArg(args, "eventId")
	if eventID == "" {
		return mcp.NewToolResultError("eventId is required"), nil
	}

	input, err := eventInputFromArgs(args)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	client, err := getCalendarClient(ctx, args, sc)
	if err != nil {
		return toolError("update event", err), nil
	}

	event, err := client.UpdateEvent(ctx, calendarIDArg(args), eventID, input)
	if err != nil {
		return toolError("update event", err), nil
	}

	result := fmt.Sprintf("Successfully updated event: %s\n", event.Summary)
	result += fmt.Sprintf("ID: %s\n", event.ID)
	result += fmt.Sprintf("Start: %s\n", event.Start.Format(time.RFC3339))
	result += fmt.Sprintf("End: %s\n", event.End.Format(time.RFC3339))

	return mcp.NewToolResultText(result), nil
}

func handleDeleteEvent(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	eventIDs, err := batch.ParseStringOrArray(args["eventId"], "eventId")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	client, err := getCalendarClient(ctx, args, sc)
	if err != nil {
		return toolError("delete event", err), nil
	}

	calendarID := calendarIDArg(args)
	if len(eventIDs) == 1 {
		if err := client.DeleteEvent(ctx, calendarID, eventIDs[0]); err != nil {
			return toolError("delete event", err), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Successfully deleted event %s", eventIDs[0])), nil
	}

	results := batch.ProcessBatch(ctx, eventIDs, func(ctx context.Context, id string) (string, error) {
		if err := client.DeleteEvent(ctx, calendarID, id); err != nil {
			return "", err
		}
		return "deleted", nil
	})
	if batch.Summarize(results).Successful == 0 {
		return mcp.NewToolResultError(batch.FormatResults(results)), nil
	}
	return mcp.NewToolResultText(batch.FormatResults(results)), nil
}
