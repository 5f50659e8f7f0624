package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/northwind-labs/atlas/internal/adapters/driving/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "MCP server commands",
	Long:  `Commands for the Model Context Protocol (MCP) server integration.`,
}

var mcpServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server",
	Long: `Start the Model Context Protocol server for AI assistant integration.

The server exposes the same two tools the chat agent uses: knowledge-base
search and guarded structured-data queries. By default it communicates
over stdio using JSON-RPC; use --port for an HTTP server instead.

Examples:
  # Stdio mode (default, for Claude Desktop)
  atlas mcp serve

  # HTTP mode (for MCP Inspector, remote access)
  atlas mcp serve --port 8080`,
	RunE: runMCPServe,
}

func init() {
	mcpServeCmd.Flags().IntP("port", "p", 0, "HTTP port (0 = use stdio)")
	mcpCmd.AddCommand(mcpServeCmd)
	rootCmd.AddCommand(mcpCmd)
}

func runMCPServe(cmd *cobra.Command, _ []string) error {
	port, err := cmd.Flags().GetInt("port")
	if err != nil {
		return fmt.Errorf("getting port flag: %w", err)
	}

	retrieval, index, closeRetrieval, err := buildRetrieval()
	if err != nil {
		return err
	}
	defer closeRetrieval()

	guard, closeGuard, err := buildQueryGuard()
	if err != nil {
		return err
	}
	defer closeGuard()

	server, err := mcp.NewServer(&mcp.Ports{
		Retrieval: retrieval,
		Query:     guard,
		Stats:     index,
	})
	if err != nil {
		return err
	}

	if port > 0 {
		addr := fmt.Sprintf(":%d", port)
		fmt.Fprintf(cmd.OutOrStdout(), "MCP server listening on http://localhost%s\n", addr)
		return server.RunHTTP(cmd.Context(), addr)
	}

	return server.Run(cmd.Context())
}
