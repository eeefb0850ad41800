package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/tidwall/jsonc"

	"github.com/chatframe-ai/chatframe/pkg/types"
)

// configCachePrefix scopes cache keys for extracted config documents.
const configCachePrefix = "configs_"

// ConfigDocument is one framework configuration extracted from an assistant
// turn. Config holds the normalized JSON document.
type ConfigDocument struct {
	Name      string          `json:"name"`
	MessageID string          `json:"messageID"`
	Config    json.RawMessage `json:"config"`
}

// getConfigs handles GET /session/{sessionID}/configs. It scans the
// transcript's assistant turns for fenced JSON documents, normalizes them
// (comments and trailing commas stripped) and returns them for the dashboard's
// configuration viewer. Extraction is cached per transcript length so repeated
// dashboard polls don't rescan an unchanged conversation.
func (s *Server) getConfigs(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	count, err := s.store.Len(sessionID)
	if err != nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "Session not found")
		return
	}

	key := fmt.Sprintf("%s%s_%d", configCachePrefix, sessionID, count)
	cached, err := s.cache.GetOrFill(key, func() (any, error) {
		messages, err := s.store.History(sessionID)
		if err != nil {
			return nil, err
		}
		return extractConfigDocuments(messages), nil
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, cached)
}

// extractConfigDocuments pulls every well-formed fenced JSON block out of the
// assistant turns, in transcript order.
func extractConfigDocuments(messages []types.Message) []ConfigDocument {
	docs := []ConfigDocument{}
	for _, msg := range messages {
		if msg.Role != types.RoleAssistant {
			continue
		}
		for _, block := range fencedJSONBlocks(msg.Content) {
			normalized, ok := normalizeConfig(block)
			if !ok {
				continue
			}
			docs = append(docs, ConfigDocument{
				Name:      fmt.Sprintf("Configuration %d", len(docs)+1),
				MessageID: msg.ID,
				Config:    normalized,
			})
		}
	}
	return docs
}

// fencedJSONBlocks returns the bodies of ```json and ```jsonc fences.
func fencedJSONBlocks(content string) []string {
	var blocks []string
	var body []string
	inFence := false

	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if inFence {
			if trimmed == "```" {
				blocks = append(blocks, strings.Join(body, "\n"))
				body = nil
				inFence = false
				continue
			}
			body = append(body, line)
			continue
		}
		if lang, ok := strings.CutPrefix(trimmed, "```"); ok {
			switch strings.ToLower(strings.TrimSpace(lang)) {
			case "json", "jsonc":
				inFence = true
			}
		}
	}
	return blocks
}

// normalizeConfig converts a possibly-commented JSON document to compact
// standard JSON. Malformed documents are dropped rather than surfaced; the
// assistant sometimes sketches fragments mid-explanation.
func normalizeConfig(block string) (json.RawMessage, bool) {
	cleaned := jsonc.ToJSON([]byte(block))

	var buf bytes.Buffer
	if err := json.Compact(&buf, cleaned); err != nil {
		return nil, false
	}
	return json.RawMessage(buf.Bytes()), true
}
