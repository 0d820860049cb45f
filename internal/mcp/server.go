// Package mcp exposes the engine to AI agents over the Model Context
// Protocol (stdio). Thin transport: tools parse arguments, call the
// engine and render text.
package mcp

import (
	"context"
	"fmt"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/ananasregina/fnord/internal/core"
)

// Server wraps the MCP server with the fnord engine.
type Server struct {
	mcp    *gomcp.Server
	engine *core.Engine
	log    *logrus.Logger
}

// NewServer creates an MCP server exposing the seven fnord tools.
func NewServer(engine *core.Engine, log *logrus.Logger) (*Server, error) {
	if engine == nil {
		return nil, fmt.Errorf("engine is required")
	}

	mcpServer := gomcp.NewServer(
		&gomcp.Implementation{
			Name:    "fnord-tracker",
			Version: "23.5.0",
		},
		nil,
	)

	s := &Server{mcp: mcpServer, engine: engine, log: log}
	s.registerTools()
	return s, nil
}

// Serve starts the MCP server in stdio mode.
func (s *Server) Serve(ctx context.Context) error {
	s.log.Info("mcp server listening on stdio")
	return s.mcp.Run(ctx, &gomcp.StdioTransport{})
}

func toolError(format string, args ...interface{}) *gomcp.CallToolResult {
	return &gomcp.CallToolResult{
		Content: []gomcp.Content{&gomcp.TextContent{Text: fmt.Sprintf(format, args...)}},
		IsError: true,
	}
}

func toolText(format string, args ...interface{}) *gomcp.CallToolResult {
	return &gomcp.CallToolResult{
		Content: []gomcp.Content{&gomcp.TextContent{Text: fmt.Sprintf(format, args...)}},
	}
}
