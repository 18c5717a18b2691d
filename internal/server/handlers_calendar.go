package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/teemow/lifeassist/internal/calendar"
)

// Limits of the events listing.
const (
	defaultListMax = calendar.DefaultUpcomingMax
	maxListMax     = 250
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

type successResponse struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, successResponse{Success: true, Data: data})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return invalid(fmt.Sprintf("invalid request body: %v", err))
	}
	return nil
}

func parseTimeParam(q map[string][]string, name string) (time.Time, error) {
	vals := q[name]
	if len(vals) == 0 || vals[0] == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, vals[0])
	if err != nil {
		return time.Time{}, invalid(fmt.Sprintf("%s must be an RFC3339 time", name))
	}
	return t, nil
}

// calendarClient returns the Calendar client of the signed-in user.
func (s *HTTPServer) calendarClient(r *http.Request) (*calendar.Client, error) {
	id, ok := IdentityFromContext(r.Context())
	if !ok {
		return nil, ErrNoIdentity
	}
	return s.sc.Calendar().ForUser(r.Context(), id.UserID)
}

// handleListEvents lists events. Without timeMin/timeMax the window is the
// one of upcoming events: 30 days back to a year ahead.
func (s *HTTPServer) handleListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	maxResults := defaultListMax
	if v := q.Get("maxResults"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxListMax {
			writeError(w, r, s.logger, invalid(fmt.Sprintf("maxResults must be between 1 and %d", maxListMax)))
			return
		}
		maxResults = n
	}

	timeMin, err := parseTimeParam(q, "timeMin")
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	timeMax, err := parseTimeParam(q, "timeMax")
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	now := time.Now()
	if timeMin.IsZero() {
		timeMin = now.Add(-calendar.UpcomingLookBack)
	}
	if timeMax.IsZero() {
		timeMax = now.Add(calendar.UpcomingLookAhead)
	}
	if !timeMax.After(timeMin) {
		writeError(w, r, s.logger, invalid("timeMax must be after timeMin"))
		return
	}

	client, err := s.calendarClient(r)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	events, err := client.ListEvents(r.Context(), q.Get("calendarId"), timeMin, timeMax, q.Get("q"), maxResults)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeData(w, http.StatusOK, events)
}

func (s *HTTPServer) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	client, err := s.calendarClient(r)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	event, err := client.GetEvent(r.Context(), r.URL.Query().Get("calendarId"), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeData(w, http.StatusOK, event)
}

func validateEventTimes(in calendar.EventInput) error {
	if !in.Start.IsZero() && !in.End.IsZero() && in.End.Before(in.Start) {
		return invalid("end must not be before start")
	}
	return nil
}

func (s *HTTPServer) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	var in calendar.EventInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	switch {
	case in.Summary == "":
		writeError(w, r, s.logger, invalid("summary is required"))
		return
	case in.Start.IsZero() || in.End.IsZero():
		writeError(w, r, s.logger, invalid("start and end are required"))
		return
	}
	if err := validateEventTimes(in); err != nil {
		writeError(w, r, s.logger, err)
		return
	}

	client, err := s.calendarClient(r)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	event, err := client.CreateEvent(r.Context(), r.URL.Query().Get("calendarId"), in)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeData(w, http.StatusCreated, event)
}

// handleUpdateEvent merges the given fields into the stored event.
func (s *HTTPServer) handleUpdateEvent(w http.ResponseWriter, r *http.Request) {
	var in calendar.EventInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	if err := validateEventTimes(in); err != nil {
		writeError(w, r, s.logger, err)
		return
	}

	client, err := s.calendarClient(r)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	event, err := client.UpdateEvent(r.Context(), r.URL.Query().Get("calendarId"), chi.URLParam(r, "id"), in)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeData(w, http.StatusOK, event)
}

func (s *HTTPServer) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	client, err := s.calendarClient(r)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	if err := client.DeleteEvent(r.Context(), r.URL.Query().Get("calendarId"), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleListCalendars(w http.ResponseWriter, r *http.Request) {
	client, err := s.calendarClient(r)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	calendars, err := client.ListCalendars(r.Context())
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeData(w, http.StatusOK, calendars)
}
