package calendar

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	calendar "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/teemow/lifeassist/internal/google"
	"github.com/teemow/lifeassist/internal/instrumentation"
	"github.com/teemow/lifeassist/internal/session"
)

// PrimaryCalendar is the id of the user's main calendar.
const PrimaryCalendar = "primary"

// ClientConfig holds the optional settings shared by all clients.
type ClientConfig struct {
	// HTTPClient is the base client; its transport gets the token attached.
	HTTPClient *http.Client
	// Endpoint overrides the API base URL, for tests.
	Endpoint string
	Metrics  *instrumentation.Metrics
}

// Client wraps the Google Calendar service for one user.
type Client struct {
	svc     *calendar.Service
	metrics *instrumentation.Metrics
}

// NewClient creates a Calendar client authenticated by ts.
// HTTP/2 is disabled like for every other Google call.
func NewClient(ctx context.Context, ts oauth2.TokenSource, cfg ClientConfig) (*Client, error) {
	if ts == nil {
		return nil, fmt.Errorf("token source cannot be nil")
	}

	opts := []option.ClientOption{
		option.WithHTTPClient(google.NewAuthenticatedClient(ctx, ts, cfg.HTTPClient)),
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	svc, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Calendar service: %w", err)
	}

	metrics := cfg.Metrics
	if metrics == nil {
		metrics = &instrumentation.Metrics{}
	}
	return &Client{svc: svc, metrics: metrics}, nil
}

// observe runs one API call inside a span and records its metrics.
// Failures become RemoteServiceErrors unless they are auth errors from the
// token source.
func (c *Client) observe(ctx context.Context, op string, fn func(context.Context) error) error {
	ctx, span := instrumentation.StartRemoteSpan(ctx, "google."+instrumentation.ServiceCalendar, op)
	defer span.End()

	start := time.Now()
	err := fn(ctx)

	status := instrumentation.StatusSuccess
	if err != nil {
		status = instrumentation.StatusError
		instrumentation.SetSpanError(span, err)
	} else {
		instrumentation.SetSpanSuccess(span)
	}
	c.metrics.RecordRemoteOperation(ctx, instrumentation.ServiceCalendar, op, status, time.Since(start))

	return session.NewRemoteServiceError(instrumentation.ServiceCalendar, op, err)
}

// ListEvents lists single (expanded) events between timeMin and timeMax
// ordered by start time. maxResults <= 0 leaves the API default.
func (c *Client) ListEvents(ctx context.Context, calendarID string, timeMin, timeMax time.Time, query string, maxResults int) ([]EventSummary, error) {
	if calendarID == "" {
		calendarID = PrimaryCalendar
	}

	call := c.svc.Events.List(calendarID).
		SingleEvents(true).
		OrderBy("startTime")
	if !timeMin.IsZero() {
		call = call.TimeMin(timeMin.Format(time.RFC3339))
	}
	if !timeMax.IsZero() {
		call = call.TimeMax(timeMax.Format(time.RFC3339))
	}
	if query != "" {
		call = call.Q(query)
	}
	if maxResults > 0 {
		call = call.MaxResults(int64(maxResults))
	}

	summaries := []EventSummary{}
	err := c.observe(ctx, instrumentation.OperationList, func(ctx context.Context) error {
		events, err := call.Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("failed to list events: %w", err)
		}
		for _, event := range events.Items {
			summaries = append(summaries, toEventSummary(event))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return summaries, nil
}

// GetEvent retrieves an event by id.
func (c *Client) GetEvent(ctx context.Context, calendarID, eventID string) (*EventSummary, error) {
	var summary EventSummary
	err := c.observe(ctx, instrumentation.OperationGet, func(ctx context.Context) error {
		event, err := c.svc.Events.Get(defaultCalendar(calendarID), eventID).Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("failed to get event: %w", err)
		}
		summary = toEventSummary(event)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &summary, nil
}

// CreateEvent creates an event. Summary, Start and End are required.
func (c *Client) CreateEvent(ctx context.Context, calendarID string, input EventInput) (*EventSummary, error) {
	if input.Summary == "" || input.Start.IsZero() || input.End.IsZero() {
		return nil, fmt.Errorf("summary, start and end are required")
	}

	event := &calendar.Event{
		Summary:     input.Summary,
		Description: input.Description,
		Location:    input.Location,
		Start:       toEventDateTime(input.Start, input.AllDay, input.TimeZone),
		End:         toEventDateTime(input.End, input.AllDay, input.TimeZone),
	}
	if len(input.Attendees) > 0 {
		event.Attendees = toAttendees(input.Attendees)
	}
	if len(input.Recurrence) > 0 {
		event.Recurrence = input.Recurrence
	}

	var summary EventSummary
	err := c.observe(ctx, instrumentation.OperationCreate, func(ctx context.Context) error {
		created, err := c.svc.Events.Insert(defaultCalendar(calendarID), event).Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("failed to create event: %w", err)
		}
		summary = toEventSummary(created)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &summary, nil
}

// UpdateEvent fetches the event and overlays the non-empty fields of input.
func (c *Client) UpdateEvent(ctx context.Context, calendarID, eventID string, input EventInput) (*EventSummary, error) {
	calendarID = defaultCalendar(calendarID)

	var summary EventSummary
	err := c.observe(ctx, instrumentation.OperationUpdate, func(ctx context.Context) error {
		existing, err := c.svc.Events.Get(calendarID, eventID).Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("failed to get existing event: %w", err)
		}

		mergeEvent(existing, input)

		updated, err := c.svc.Events.Update(calendarID, eventID, existing).Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("failed to update event: %w", err)
		}
		summary = toEventSummary(updated)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &summary, nil
}

func mergeEvent(existing *calendar.Event, input EventInput) {
	if input.Summary != "" {
		existing.Summary = input.Summary
	}
	if input.Description != "" {
		existing.Description = input.Description
	}
	if input.Location != "" {
		existing.Location = input.Location
	}
	if !input.Start.IsZero() {
		existing.Start = toEventDateTime(input.Start, input.AllDay, input.TimeZone)
	}
	if !input.End.IsZero() {
		existing.End = toEventDateTime(input.End, input.AllDay, input.TimeZone)
	}
	if len(input.Attendees) > 0 {
		existing.Attendees = toAttendees(input.Attendees)
	}
	if len(input.Recurrence) > 0 {
		existing.Recurrence = input.Recurrence
	}
}

// DeleteEvent deletes an event.
func (c *Client) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	return c.observe(ctx, instrumentation.OperationDelete, func(ctx context.Context) error {
		if err := c.svc.Events.Delete(defaultCalendar(calendarID), eventID).Context(ctx).Do(); err != nil {
			return fmt.Errorf("failed to delete event: %w", err)
		}
		return nil
	})
}

// ListCalendars lists the calendars in the user's calendar list.
func (c *Client) ListCalendars(ctx context.Context) ([]CalendarInfo, error) {
	calendars := []CalendarInfo{}
	err := c.observe(ctx, "list_calendars", func(ctx context.Context) error {
		list, err := c.svc.CalendarList.List().Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("failed to list calendars: %w", err)
		}
		for _, entry := range list.Items {
			calendars = append(calendars, toCalendarInfo(entry))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return calendars, nil
}

func defaultCalendar(id string) string {
	if id == "" {
		return PrimaryCalendar
	}
	return id
}
