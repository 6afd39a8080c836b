// ABOUTME: MCP command starts Model Context Protocol server
// ABOUTME: Lets LLM agents log reflections and read practice data via stdio
package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/harper/sitjournal/internal/mcp"
)

// NewMCPCmd creates the MCP command
func NewMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Start MCP server for LLM agents",
		Long: `Start MCP server for LLM agents

Runs sitjournal as an MCP (Model Context Protocol) server, so LLM agents
like Claude can log reflections, read guidance and nudges, and look up
practice history via stdio. Tools act for the user set by --user or
SITJOURNAL_USER.

Configure in Claude Desktop's config file to enable the journal tools.`,
		RunE: runMCP,
		Example: `  # Start MCP server (typically called by Claude Desktop)
  sitjournal mcp

  # Configure in claude_desktop_config.json:
  # {
  #   "mcpServers": {
  #     "sitjournal": {
  #       "command": "sitjournal",
  #       "args": ["mcp"]
  #     }
  #   }
  # }`,
	}
}

func runMCP(cmd *cobra.Command, args []string) error {
	a, err := openApp(true)
	if err != nil {
		return err
	}

	server := mcpserver.NewMCPServer("sitjournal", versionInfo.Version)
	handlers := mcp.RegisterTools(server, a.pipeline, a.userID)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.log.Info("mcp server starting on stdio", "user", a.userID)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- mcpserver.ServeStdio(server)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			runErr = fmt.Errorf("server error: %w", err)
		}
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), a.cfg.BackgroundTimeout)
	defer cancel()
	if err := handlers.Shutdown(drainCtx); err != nil {
		a.log.Warn("background work did not finish", "error", err)
	}
	if err := a.Close(); err != nil {
		a.log.Warn("closing storage", "error", err)
	}
	return runErr
}
