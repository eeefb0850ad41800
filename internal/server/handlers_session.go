package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/chatframe-ai/chatframe/internal/pagination"
	"github.com/chatframe-ai/chatframe/internal/session"
	"github.com/chatframe-ai/chatframe/pkg/types"
)

// SendMessageRequest is the body for POST /session/{sessionID}/message.
type SendMessageRequest struct {
	Text string `json:"text"`
}

// SendMessageResponse carries the assistant's reply. Message is null when the
// generation ended without appending one (stopped or timed out).
type SendMessageResponse struct {
	Message *types.Message `json:"message"`
}

// ClearSessionResponse is the re-seeded transcript after a clear.
type ClearSessionResponse struct {
	SessionID string          `json:"sessionID"`
	Messages  []types.Message `json:"messages"`
}

// listSessions handles GET /session
func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.List())
}

// getSession handles GET /session/{sessionID}
func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	sess, err := s.store.Get(sessionID)
	if err != nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "Session not found")
		return
	}

	writeJSON(w, http.StatusOK, sess)
}

// getHistory handles GET /session/{sessionID}/history?page=
func (s *Server) getHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	page := 1
	if raw := r.URL.Query().Get("page"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "page must be an integer")
			return
		}
		page = parsed
	}

	messages, err := s.store.History(sessionID)
	if err != nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "Session not found")
		return
	}

	writeJSON(w, http.StatusOK, pagination.Slice(messages, page, pagination.DefaultPageSize))
}

// postMessage handles POST /session/{sessionID}/message. It is the HTTP entry
// to the chat turn and blocks until the generation reaches a terminal state.
func (s *Server) postMessage(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "text is required")
		return
	}

	msg, err := s.controller.HandleMessage(r.Context(), sessionID, req.Text)
	if err != nil {
		if errors.Is(err, session.ErrSessionBusy) {
			writeError(w, http.StatusConflict, ErrCodeSessionBusy, "A generation is already running for this session")
			return
		}
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, SendMessageResponse{Message: msg})
}

// postStop handles POST /session/{sessionID}/stop
func (s *Server) postStop(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	stopped := s.controller.HandleStop(sessionID)
	writeJSON(w, http.StatusOK, map[string]bool{"stopped": stopped})
}

// postClear handles POST /session/{sessionID}/clear
func (s *Server) postClear(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	id, messages, err := s.controller.HandleClear(sessionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, ClearSessionResponse{SessionID: id, Messages: messages})
}
