// Package mcp exposes manual search and question answering to MCP clients
// over stdio.
package mcp

import (
	"github.com/mark3labs/mcp-go/server"

	"github.com/ziadkadry99/crm-manual-rag/internal/embeddings"
	"github.com/ziadkadry99/crm-manual-rag/internal/history"
	"github.com/ziadkadry99/crm-manual-rag/internal/rag"
	"github.com/ziadkadry99/crm-manual-rag/internal/router"
)

// Version is set via ldflags at build time.
var Version = "dev"

// Deps are the services behind the tools. Assistant and History may be nil;
// the tools that need them then report an error result.
type Deps struct {
	Retriever *rag.Retriever
	Assistant *rag.Assistant
	Embedder  embeddings.Embedder
	Router    *router.Router
	History   *history.Store
}

// Server wraps an MCP server that exposes manual search tools.
type Server struct {
	deps Deps
	mcp  *server.MCPServer
}

// NewServer creates a new MCP server with the given dependencies.
func NewServer(deps Deps) *Server {
	s := &Server{deps: deps}

	s.mcp = server.NewMCPServer(
		"crmrag",
		Version,
		server.WithToolCapabilities(false),
	)

	s.registerTools()

	return s
}

func (s *Server) registerTools() {
	s.mcp.AddTool(searchManualsTool, s.handleSearchManuals)
	s.mcp.AddTool(askManualTool, s.handleAskManual)
	s.mcp.AddTool(listCollectionsTool, s.handleListCollections)
	s.mcp.AddTool(popularQueriesTool, s.handlePopularQueries)
}

// Serve starts the MCP server on stdio. Stdout is used for MCP protocol
// messages; all logging must go to stderr.
func (s *Server) Serve() error {
	return server.ServeStdio(s.mcp)
}
