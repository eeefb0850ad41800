package server

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/chatframe-ai/chatframe/internal/agent"
	"github.com/chatframe-ai/chatframe/pkg/types"
)

const fencedConfig = "Here is your configuration:\n\n```json\n{\n  \"AWSVersion\": \"2022-04-02\",\n  \"Name\": \"OPCUA to S3\"\n}\n```\n\nDeploy it when ready."

func TestExtractConfigDocuments(t *testing.T) {
	messages := []types.Message{
		{ID: "m1", Role: types.RoleUser, Content: "```json\n{\"from\":\"user\"}\n```"},
		{ID: "m2", Role: types.RoleAssistant, Content: fencedConfig},
		{ID: "m3", Role: types.RoleAssistant, Content: "Some prose with no fences."},
		{ID: "m4", Role: types.RoleAssistant, Content: "```\n{\"untagged\": true}\n```"},
		{ID: "m5", Role: types.RoleAssistant, Content: "```json\nnot valid json\n```"},
		{ID: "m6", Role: types.RoleAssistant, Content: "```jsonc\n{\n  // keep the schema version\n  \"AWSVersion\": \"2022-04-02\",\n}\n```"},
	}

	docs := extractConfigDocuments(messages)

	if len(docs) != 2 {
		t.Fatalf("Expected 2 documents, got %d", len(docs))
	}

	if docs[0].MessageID != "m2" {
		t.Errorf("First document should come from m2, got %s", docs[0].MessageID)
	}
	if docs[0].Name != "Configuration 1" || docs[1].Name != "Configuration 2" {
		t.Errorf("Document names wrong: %q, %q", docs[0].Name, docs[1].Name)
	}

	var first map[string]string
	if err := json.Unmarshal(docs[0].Config, &first); err != nil {
		t.Fatalf("First document is not valid JSON: %v", err)
	}
	if first["Name"] != "OPCUA to S3" {
		t.Errorf("First document content wrong: %s", docs[0].Config)
	}

	// The jsonc fence had a comment and a trailing comma; both are gone.
	var second map[string]string
	if err := json.Unmarshal(docs[1].Config, &second); err != nil {
		t.Fatalf("Normalized jsonc is not valid JSON: %v", err)
	}
	if second["AWSVersion"] != "2022-04-02" {
		t.Errorf("Second document content wrong: %s", docs[1].Config)
	}
}

func TestExtractConfigDocuments_Empty(t *testing.T) {
	docs := extractConfigDocuments(nil)
	if docs == nil {
		t.Error("Expected an empty slice, not nil")
	}
	if len(docs) != 0 {
		t.Errorf("Expected no documents, got %d", len(docs))
	}
}

func TestFencedJSONBlocks_MultiplePerMessage(t *testing.T) {
	content := "First:\n```json\n{\"a\": 1}\n```\nSecond:\n```JSON\n{\"b\": 2}\n```"

	blocks := fencedJSONBlocks(content)
	if len(blocks) != 2 {
		t.Fatalf("Expected 2 blocks, got %d", len(blocks))
	}
	if blocks[0] != "{\"a\": 1}" {
		t.Errorf("First block wrong: %q", blocks[0])
	}
}

func TestFencedJSONBlocks_UnterminatedFence(t *testing.T) {
	blocks := fencedJSONBlocks("```json\n{\"a\": 1}")
	if len(blocks) != 0 {
		t.Errorf("Unterminated fence should yield nothing, got %d blocks", len(blocks))
	}
}

func TestGetConfigs(t *testing.T) {
	srv := setupTestServer(t, &agent.ScriptedAgent{Fallback: "unused"})

	srv.store.GetOrCreate("session_cfg")
	if _, err := srv.store.Append("session_cfg", types.RoleAssistant, fencedConfig); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	w := getPath(t, srv, "/session/session_cfg/configs")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var docs []ConfigDocument
	if err := json.NewDecoder(w.Body).Decode(&docs); err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("Expected 1 document, got %d", len(docs))
	}
	if docs[0].Name != "Configuration 1" {
		t.Errorf("Name mismatch: got %s", docs[0].Name)
	}
}

func TestGetConfigs_UnknownSession(t *testing.T) {
	srv := setupTestServer(t, &agent.ScriptedAgent{Fallback: "unused"})

	w := getPath(t, srv, "/session/nonexistent/configs")

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}

func TestGetConfigs_CachedPerTranscriptLength(t *testing.T) {
	srv := setupTestServer(t, &agent.ScriptedAgent{Fallback: "unused"})

	srv.store.GetOrCreate("session_cfg")
	srv.store.Append("session_cfg", types.RoleAssistant, fencedConfig)

	getPath(t, srv, "/session/session_cfg/configs")
	getPath(t, srv, "/session/session_cfg/configs")

	if got := srv.cache.Stats().Entries; got != 1 {
		t.Errorf("Repeated polls of an unchanged transcript should share one cache entry, got %d", got)
	}

	// Growing the transcript keys a fresh extraction.
	srv.store.Append("session_cfg", types.RoleAssistant, "no fences here")
	w := getPath(t, srv, "/session/session_cfg/configs")

	var docs []ConfigDocument
	if err := json.NewDecoder(w.Body).Decode(&docs); err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}
	if len(docs) != 1 {
		t.Errorf("Expected 1 document, got %d", len(docs))
	}
	if got := srv.cache.Stats().Entries; got != 2 {
		t.Errorf("Expected a second cache entry after the transcript grew, got %d", got)
	}
}
