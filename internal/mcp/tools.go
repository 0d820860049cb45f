package mcp

import (
	"context"
	"encoding/json"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ananasregina/fnord/internal/fnord"
)

func (s *Server) registerTools() {
	s.mcp.AddTool(&gomcp.Tool{
		Name:        "ingest_fnord",
		Description: "Record a new fnord sighting. Returns the stored record with its assigned id.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"when": {"type": "string", "description": "When the fnord appeared, ISO8601 (e.g. 2026-01-07T14:23:00Z)"},
				"where_place_name": {"type": "string", "description": "Optional human-readable location"},
				"source": {"type": "string", "description": "Where the fnord was found (News, Walk, Code, Dream, ...)"},
				"summary": {"type": "string", "description": "Brief description of the sighting"},
				"notes": {"type": "object", "description": "Optional structured metadata"},
				"logical_fallacies": {"type": "array", "items": {"type": "string"}, "description": "Optional list of fallacy names"}
			},
			"required": ["when", "source", "summary"]
		}`),
	}, s.handleIngest)

	s.mcp.AddTool(&gomcp.Tool{
		Name:        "get_fnord_by_id",
		Description: "Fetch a single fnord sighting by its id.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"id": {"type": "number", "description": "The fnord's id"}
			},
			"required": ["id"]
		}`),
	}, s.handleGet)

	s.mcp.AddTool(&gomcp.Tool{
		Name:        "update_fnord",
		Description: "Update fields of an existing fnord sighting. Only supplied fields change.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"id": {"type": "number", "description": "The fnord's id"},
				"when": {"type": "string", "description": "New observation time, ISO8601"},
				"where_place_name": {"type": "string"},
				"source": {"type": "string"},
				"summary": {"type": "string"},
				"notes": {"type": "object"},
				"logical_fallacies": {"type": "array", "items": {"type": "string"}}
			},
			"required": ["id"]
		}`),
	}, s.handleUpdate)

	s.mcp.AddTool(&gomcp.Tool{
		Name:        "delete_fnord",
		Description: "Permanently delete a fnord sighting. Its id is never reused.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"id": {"type": "number", "description": "The fnord's id"}
			},
			"required": ["id"]
		}`),
	}, s.handleDelete)

	s.mcp.AddTool(&gomcp.Tool{
		Name:        "list_fnords",
		Description: "List fnord sightings in id order with pagination.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"limit": {"type": "number", "description": "Page size (default 23)"},
				"offset": {"type": "number", "description": "Records to skip"}
			}
		}`),
	}, s.handleList)

	s.mcp.AddTool(&gomcp.Tool{
		Name:        "search_fnords",
		Description: "Search fnord sightings by meaning (falls back to substring matching when the embedding endpoint is unavailable).",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"query": {"type": "string", "description": "Search query text"},
				"limit": {"type": "number", "description": "Maximum results (default 23)"},
				"offset": {"type": "number", "description": "Results to skip"}
			},
			"required": ["query"]
		}`),
	}, s.handleSearch)

	s.mcp.AddTool(&gomcp.Tool{
		Name:        "query_fnord_count",
		Description: "Return the total number of recorded fnord sightings.",
		InputSchema: json.RawMessage(`{"type": "object", "properties": {}}`),
	}, s.handleCount)
}

type ingestArgs struct {
	When             string         `json:"when"`
	WherePlaceName   string         `json:"where_place_name"`
	Source           string         `json:"source"`
	Summary          string         `json:"summary"`
	Notes            map[string]any `json:"notes"`
	LogicalFallacies []string       `json:"logical_fallacies"`
}

func (s *Server) handleIngest(ctx context.Context, req *gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
	var args ingestArgs
	if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
		return toolError("invalid arguments: %v", err), nil
	}

	when, err := fnord.ParseWhen(args.When)
	if err != nil {
		return toolError("%v", err), nil
	}

	res, err := s.engine.Create(ctx, &fnord.Sighting{
		When:             when,
		WherePlaceName:   args.WherePlaceName,
		Source:           args.Source,
		Summary:          args.Summary,
		Notes:            args.Notes,
		LogicalFallacies: args.LogicalFallacies,
	})
	if err != nil {
		return toolError("failed to ingest fnord: %v", err), nil
	}

	out, _ := json.MarshalIndent(res.Sighting, "", "  ")
	if res.EmbeddingSkipped {
		return toolText("Fnord ingested with id %d (warning: embedding unavailable, stored without one):\n%s", res.Sighting.ID, out), nil
	}
	return toolText("Fnord ingested with id %d:\n%s", res.Sighting.ID, out), nil
}

type idArgs struct {
	ID int64 `json:"id"`
}

func (s *Server) handleGet(ctx context.Context, req *gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
	var args idArgs
	if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
		return toolError("invalid arguments: %v", err), nil
	}

	rec, err := s.engine.Get(ctx, args.ID)
	if err != nil {
		return toolError("failed to get fnord %d: %v", args.ID, err), nil
	}
	out, _ := json.MarshalIndent(rec, "", "  ")
	return toolText("%s", out), nil
}

type updateArgs struct {
	ID               int64           `json:"id"`
	When             *string         `json:"when"`
	WherePlaceName   *string         `json:"where_place_name"`
	Source           *string         `json:"source"`
	Summary          *string         `json:"summary"`
	Notes            *map[string]any `json:"notes"`
	LogicalFallacies *[]string       `json:"logical_fallacies"`
}

func (s *Server) handleUpdate(ctx context.Context, req *gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
	var args updateArgs
	if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
		return toolError("invalid arguments: %v", err), nil
	}

	upd := fnord.Update{
		WherePlaceName:   args.WherePlaceName,
		Source:           args.Source,
		Summary:          args.Summary,
		Notes:            args.Notes,
		LogicalFallacies: args.LogicalFallacies,
	}
	if args.When != nil {
		when, err := fnord.ParseWhen(*args.When)
		if err != nil {
			return toolError("%v", err), nil
		}
		upd.When = &when
	}

	res, err := s.engine.Update(ctx, args.ID, upd)
	if err != nil {
		return toolError("failed to update fnord %d: %v", args.ID, err), nil
	}
	out, _ := json.MarshalIndent(res.Sighting, "", "  ")
	return toolText("Fnord %d updated:\n%s", args.ID, out), nil
}

func (s *Server) handleDelete(ctx context.Context, req *gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
	var args idArgs
	if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
		return toolError("invalid arguments: %v", err), nil
	}

	if err := s.engine.Delete(ctx, args.ID); err != nil {
		return toolError("failed to delete fnord %d: %v", args.ID, err), nil
	}
	return toolText("Fnord %d deleted. It has vanished into the void.", args.ID), nil
}

type pageArgs struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

func (s *Server) handleList(ctx context.Context, req *gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
	var args pageArgs
	if len(req.Params.Arguments) > 0 {
		if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
			return toolError("invalid arguments: %v", err), nil
		}
	}

	recs, err := s.engine.List(ctx, args.Offset, args.Limit)
	if err != nil {
		return toolError("failed to list fnords: %v", err), nil
	}
	out, _ := json.MarshalIndent(recs, "", "  ")
	return toolText("%d fnords:\n%s", len(recs), out), nil
}

type searchArgs struct {
	Query  string `json:"query"`
	Limit  int    `json:"limit"`
	Offset int    `json:"offset"`
}

func (s *Server) handleSearch(ctx context.Context, req *gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
	var args searchArgs
	if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
		return toolError("invalid arguments: %v", err), nil
	}
	if args.Limit <= 0 {
		args.Limit = fnord.DefaultPageSize
	}

	res, err := s.engine.Search(ctx, args.Query, args.Offset, args.Limit)
	if err != nil {
		return toolError("search failed: %v", err), nil
	}

	mode := "lexical"
	if res.Semantic {
		mode = "semantic"
	}
	out, _ := json.MarshalIndent(res.Sightings, "", "  ")
	return toolText("%d of %d matches (%s):\n%s", len(res.Sightings), res.Total, mode, out), nil
}

func (s *Server) handleCount(ctx context.Context, req *gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
	n, err := s.engine.Count(ctx)
	if err != nil {
		return toolError("failed to count fnords: %v", err), nil
	}
	return toolText("The sacred count of fnords: %d", n), nil
}
