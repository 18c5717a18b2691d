package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/teemow/lifeassist/internal/calendar"
	"github.com/teemow/lifeassist/internal/instrumentation"
	"github.com/teemow/lifeassist/internal/logging"
	"github.com/teemow/lifeassist/internal/session"
)

// ErrNoUserMessage is returned when a conversation has no user turn with
// content.
var ErrNoUserMessage = errors.New("no user message found in the conversation")

// calendarContextEvents is how many upcoming events go into the prompt.
const calendarContextEvents = 20

const baseInstructions = `You are a helpful AI assistant that can help with various tasks including calendar management.

When the user asks about calendar-related topics, you can:
1. Discuss calendar events: provide information about their schedule
2. Summarize the calendar: provide a summary of upcoming events
3. Suggest scheduling: help them find good times for new events

For calendar events, include relevant details like:
- Title/summary of the event
- Date and time
- Location (if available)
- Description/details (if available)

When summarizing calendar events:
- Group events by day
- Highlight important events
- Mention conflicts or busy periods

For all other topics, be a helpful and informative assistant that provides accurate and thoughtful responses.

Always respond in a friendly, conversational manner.`

// EventSource provides the upcoming events of a user.
type EventSource interface {
	UpcomingEvents(ctx context.Context, userID string, max int) ([]calendar.EventSummary, error)
}

// Reply is the answer to a chat turn.
type Reply struct {
	Message       Message  `json:"message"`
	Usage         Usage    `json:"usage"`
	CalendarQuery bool     `json:"calendarQuery"`
	Keywords      []string `json:"keywords,omitempty"`
	EventCount    int      `json:"eventCount"`
}

// Service answers chat turns, adding calendar context when the user asks
// about their schedule.
type Service struct {
	events    EventSource
	completer Completer
	logger    *slog.Logger
}

// NewService creates a Service. events may be nil, which disables calendar
// context. logger may be nil.
func NewService(events EventSource, completer Completer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{events: events, completer: completer, logger: logger}
}

// Chat answers the last user message of history on behalf of userID.
// Calendar failures do not fail the turn. A failing model is reported as a
// RemoteServiceError and leaves the user's session alone.
func (s *Service) Chat(ctx context.Context, userID string, history []Message) (*Reply, error) {
	last, ok := lastUserMessage(history)
	if !ok || strings.TrimSpace(last.Content) == "" {
		return nil, ErrNoUserMessage
	}

	reply := &Reply{}
	reply.CalendarQuery, reply.Keywords = IsCalendarQuery(last.Content)

	var events []calendar.EventSummary
	if reply.CalendarQuery && s.events != nil {
		var err error
		events, err = s.events.UpcomingEvents(ctx, userID, calendarContextEvents)
		if err != nil {
			return nil, err
		}
		reply.EventCount = len(events)
	}

	system, err := SystemPrompt(events)
	if err != nil {
		return nil, err
	}

	completion, err := s.completer.Complete(ctx, system, history)
	if err != nil {
		s.logger.ErrorContext(ctx, "Assistant completion failed",
			logging.UserID(userID),
			logging.Err(err),
		)
		return nil, session.NewRemoteServiceError(instrumentation.ServiceAnthropic, instrumentation.OperationComplete, err)
	}

	reply.Message = Message{Role: RoleAssistant, Content: completion.Text}
	reply.Usage = completion.Usage
	return reply, nil
}

// lastUserMessage returns the latest user turn, wherever it sits in history.
func lastUserMessage(history []Message) (Message, bool) {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == RoleUser {
			return history[i], true
		}
	}
	return Message{}, false
}

// SystemPrompt returns the instructions for the model, followed by the
// user's events when there are any.
func SystemPrompt(events []calendar.EventSummary) (string, error) {
	if len(events) == 0 {
		return baseInstructions, nil
	}

	data, err := json.MarshalIndent(events, "", "  ")
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(baseInstructions)
	b.WriteString("\n\nThe user's Google Calendar events are:\n")
	b.Write(data)
	b.WriteString("\n\nIMPORTANT: The app is connected to Google Calendar. When discussing calendar events, you have access to the user's actual Google Calendar data.")
	return b.String(), nil
}
