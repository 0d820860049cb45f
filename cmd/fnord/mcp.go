package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/ananasregina/fnord/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the MCP server on stdio",
	Long: `Start the Model Context Protocol server on stdio so AI agents can
record and search fnords through the seven fnord tools.`,
	RunE: runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	srv, err := mcp.NewServer(a.engine, a.log)
	if err != nil {
		return err
	}
	return srv.Serve(ctx)
}
