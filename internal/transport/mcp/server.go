package mcp

import (
	"net/http"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/alanyang/job-dispatch/internal/service/orchestrator"
	"github.com/alanyang/job-dispatch/internal/service/tracker"
)

// Server wraps the mark3labs/mcp-go MCPServer and its StreamableHTTPServer.
// [SRP] HTTP/SSE server lifecycle only. Tools are registered in tools.go.
// [OCP] Adding new tools never requires changes to this file.
type Server struct {
	httpSrv *mcpserver.StreamableHTTPServer
}

// New creates the agent-facing MCP server. Its tools call the same orchestrator callbacks as the
// HTTP endpoints.
func New(orch *orchestrator.Service, tr *tracker.Service, version string) *Server {
	mcpSrv := mcpserver.NewMCPServer(
		"job-dispatch",
		version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithRecovery(),
	)

	RegisterTools(mcpSrv, orch, tr)

	return &Server{httpSrv: mcpserver.NewStreamableHTTPServer(mcpSrv)}
}

// Handler returns an http.Handler that serves the MCP endpoint.
func (s *Server) Handler() http.Handler {
	return s.httpSrv
}
