package mcp

import (
	"context"
	"encoding/json"
	"io"
	"path/filepath"
	"strings"
	"testing"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/ananasregina/fnord/internal/core"
	"github.com/ananasregina/fnord/internal/storage"
)

func makeServer(t *testing.T) *Server {
	t.Helper()

	log := logrus.New()
	log.SetOutput(io.Discard)

	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "fnord.db"), storage.FixedChance(0), log)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	server, err := NewServer(core.New(store, nil, log), log)
	if err != nil {
		t.Fatalf("NewServer error: %v", err)
	}
	return server
}

func callTool(t *testing.T, s *Server, name string, args any) *gomcp.CallToolResult {
	t.Helper()

	argsJSON, err := json.Marshal(args)
	if err != nil {
		t.Fatalf("marshal args: %v", err)
	}
	req := &gomcp.CallToolRequest{
		Params: &gomcp.CallToolParamsRaw{
			Name:      name,
			Arguments: argsJSON,
		},
	}

	ctx := context.Background()
	var result *gomcp.CallToolResult
	switch name {
	case "ingest_fnord":
		result, err = s.handleIngest(ctx, req)
	case "get_fnord_by_id":
		result, err = s.handleGet(ctx, req)
	case "update_fnord":
		result, err = s.handleUpdate(ctx, req)
	case "delete_fnord":
		result, err = s.handleDelete(ctx, req)
	case "list_fnords":
		result, err = s.handleList(ctx, req)
	case "search_fnords":
		result, err = s.handleSearch(ctx, req)
	case "query_fnord_count":
		result, err = s.handleCount(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	return result
}

func textContent(result *gomcp.CallToolResult) string {
	if len(result.Content) == 0 {
		return ""
	}
	if tc, ok := result.Content[0].(*gomcp.TextContent); ok {
		return tc.Text
	}
	return ""
}

func TestIngestAndGet(t *testing.T) {
	s := makeServer(t)

	result := callTool(t, s, "ingest_fnord", map[string]any{
		"when":             "2026-01-07T14:23:00Z",
		"where_place_name": "Seattle, WA",
		"source":           "News Article",
		"summary":          "Found fnord hidden in a tech news article about privacy",
	})
	if result.IsError {
		t.Fatalf("ingest failed: %s", textContent(result))
	}
	if !strings.Contains(textContent(result), "id 1") {
		t.Errorf("expected id 1 in response, got: %s", textContent(result))
	}

	result = callTool(t, s, "get_fnord_by_id", map[string]any{"id": 1})
	if result.IsError {
		t.Fatalf("get failed: %s", textContent(result))
	}
	if !strings.Contains(textContent(result), "Seattle, WA") {
		t.Errorf("record missing place name: %s", textContent(result))
	}
}

func TestIngestRejectsBadTimestamp(t *testing.T) {
	s := makeServer(t)

	result := callTool(t, s, "ingest_fnord", map[string]any{
		"when":    "last tuesday, probably",
		"source":  "Dream",
		"summary": "vague fnord",
	})
	if !result.IsError {
		t.Error("expected error result for unparseable timestamp")
	}
}

func TestUpdateChangesOnlyGivenFields(t *testing.T) {
	s := makeServer(t)

	callTool(t, s, "ingest_fnord", map[string]any{
		"when":    "2026-01-07T14:23:00Z",
		"source":  "Walk",
		"summary": "fnord on a lamppost",
	})

	result := callTool(t, s, "update_fnord", map[string]any{
		"id":      1,
		"summary": "fnord sticker on a lamppost",
	})
	if result.IsError {
		t.Fatalf("update failed: %s", textContent(result))
	}

	got := textContent(callTool(t, s, "get_fnord_by_id", map[string]any{"id": 1}))
	if !strings.Contains(got, "sticker") {
		t.Errorf("summary not updated: %s", got)
	}
	if !strings.Contains(got, "Walk") {
		t.Errorf("source should be untouched: %s", got)
	}
}

func TestDeleteThenGetReportsError(t *testing.T) {
	s := makeServer(t)

	callTool(t, s, "ingest_fnord", map[string]any{
		"when":    "2026-01-07T14:23:00Z",
		"source":  "Code",
		"summary": "fnord in a comment",
	})

	if result := callTool(t, s, "delete_fnord", map[string]any{"id": 1}); result.IsError {
		t.Fatalf("delete failed: %s", textContent(result))
	}
	if result := callTool(t, s, "get_fnord_by_id", map[string]any{"id": 1}); !result.IsError {
		t.Error("expected error result after delete")
	}
}

func TestSearchFallsBackToLexical(t *testing.T) {
	s := makeServer(t)

	callTool(t, s, "ingest_fnord", map[string]any{
		"when":    "2026-01-07T14:23:00Z",
		"source":  "News Article",
		"summary": "Found fnord hidden in a tech news article",
	})
	callTool(t, s, "ingest_fnord", map[string]any{
		"when":    "2026-01-08T09:00:00Z",
		"source":  "Dream",
		"summary": "A golden apple with the word kallisti",
	})

	result := callTool(t, s, "search_fnords", map[string]any{"query": "kallisti"})
	if result.IsError {
		t.Fatalf("search failed: %s", textContent(result))
	}
	got := textContent(result)
	if !strings.Contains(got, "lexical") {
		t.Errorf("sqlite backend should search lexically, got: %s", got)
	}
	if !strings.Contains(got, "golden apple") || strings.Contains(got, "tech news") {
		t.Errorf("wrong matches: %s", got)
	}
}

func TestCount(t *testing.T) {
	s := makeServer(t)

	for i := 0; i < 3; i++ {
		callTool(t, s, "ingest_fnord", map[string]any{
			"when":    "2026-01-07T14:23:00Z",
			"source":  "Walk",
			"summary": "yet another fnord",
		})
	}

	got := textContent(callTool(t, s, "query_fnord_count", map[string]any{}))
	if !strings.Contains(got, "3") {
		t.Errorf("count = %s, want 3", got)
	}
}
