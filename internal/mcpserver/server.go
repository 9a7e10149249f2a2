// Package mcpserver exposes the tool-call surface (internal/toolsurface)
// over stdio via github.com/mark3labs/mcp-go, grounded on the
// server.NewMCPServer/AddTool construction pattern used by
// internal/agentctl/server/mcp and internal/mcpserver in kdlbs-kandev. It
// owns wire framing, JSON-RPC, and per-tool argument schema validation; this
// package only supplies handlers that call internal/toolsurface and return
// the formatted text blocks spec.md §6 specifies.
package mcpserver

import (
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/edirooss/procexecd/internal/toolsurface"
)

// New builds an MCP server with all seven tool-call operations registered.
func New(log *zap.Logger, tools *toolsurface.Tools) *server.MCPServer {
	s := server.NewMCPServer(
		"procexecd",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	h := &handlers{tools: tools, log: log.Named("mcpserver")}
	h.register(s)

	return s
}

// Serve blocks, handling MCP requests over stdin/stdout until the client
// disconnects or the process is signaled.
func Serve(s *server.MCPServer) error {
	return server.ServeStdio(s)
}
