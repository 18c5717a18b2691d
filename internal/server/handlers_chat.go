package server

import (
	"net/http"

	"github.com/oklog/ulid/v2"

	"github.com/teemow/lifeassist/internal/assistant"
)

type chatRequest struct {
	Messages []assistant.Message `json:"messages"`
}

// ChatMessageJSON is one assistant reply.
type ChatMessageJSON struct {
	ID            string          `json:"id"`
	Role          string          `json:"role"`
	Content       string          `json:"content"`
	Usage         assistant.Usage `json:"usage"`
	CalendarQuery bool            `json:"calendarQuery"`
}

func (s *HTTPServer) handleChat(w http.ResponseWriter, r *http.Request) {
	id, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, s.logger, ErrNoIdentity)
		return
	}

	var req chatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, s.logger, err)
		return
	}

	reply, err := s.sc.Assistant().Chat(r.Context(), id.UserID, req.Messages)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}

	writeData(w, http.StatusOK, ChatMessageJSON{
		ID:            ulid.Make().String(),
		Role:          reply.Message.Role,
		Content:       reply.Message.Content,
		Usage:         reply.Usage,
		CalendarQuery: reply.CalendarQuery,
	})
}
