package mcp

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/standardbeagle/relidx/internal/indexing"
	"github.com/standardbeagle/relidx/internal/version"
)

const serverName = "relidx-mcp-server"

// Server answers relationship queries over MCP against a coordinator's index
type Server struct {
	coordinator *indexing.Coordinator
	server      *mcp.Server
	logger      *DiagnosticLogger
}

// NewServer creates a server for c. A nil logger discards diagnostics.
func NewServer(c *indexing.Coordinator, logger *DiagnosticLogger) *Server {
	if logger == nil {
		logger = NoOpLogger
	}
	s := &Server{
		coordinator: c,
		logger:      logger,
		server: mcp.NewServer(&mcp.Implementation{
			Name:    serverName,
			Version: version.Info(),
		}, nil),
	}
	s.registerTools()
	logger.Printf("MCP server created for %s", c.Config().Project.Root)
	return s
}

func (s *Server) registerTools() {
	subjectSchema := &jsonschema.Schema{
		Type:        "string",
		Description: "Subject identity (kind:unit#Name, e.g. function:pkg/a.go#Run) or a bare name such as Run or Server.Start",
	}

	s.server.AddTool(&mcp.Tool{
		Name:        "relationships",
		Description: "Locations that have a relationship to a subject: callers (is-invoked-by), readers, writers, references, definitions. Omit kind to list every kind.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"subject": subjectSchema,
				"kind": {
					Type:        "string",
					Description: "Relationship kind, e.g. is-invoked-by, is-referenced-by, is-read-by, is-written-by, defines-function",
				},
				"max": {
					Type:        "integer",
					Description: "Maximum locations returned (default 100)",
				},
			},
			Required: []string{"subject"},
		},
	}, s.wrap("relationships", s.handleRelationships))

	s.server.AddTool(&mcp.Tool{
		Name:        "statistics",
		Description: "Index size: relationships, keys, units, declared subjects, attributes. With detail, a breakdown by kind and the most referenced subjects.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"detail": {Type: "boolean", Description: "Include the per-kind breakdown"},
				"top":    {Type: "integer", Description: "Most referenced subjects listed with detail (default 10)"},
			},
		},
	}, s.wrap("statistics", s.handleStatistics))

	s.server.AddTool(&mcp.Tool{
		Name:        "attribute",
		Description: "Metadata recorded for a subject: display-name, signature, exported. Omit attribute to list all of them.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"subject":   subjectSchema,
				"attribute": {Type: "string", Description: "Attribute name"},
			},
			Required: []string{"subject"},
		},
	}, s.wrap("attribute", s.handleAttribute))

	s.server.AddTool(&mcp.Tool{
		Name:        "suggest",
		Description: "Subjects whose names resemble a name that matched nothing",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"name": {Type: "string", Description: "Name to look up"},
				"max":  {Type: "integer", Description: "Maximum suggestions (default 10)"},
			},
			Required: []string{"name"},
		},
	}, s.wrap("suggest", s.handleSuggest))
}

// wrap recovers handler panics and turns them into tool errors
func (s *Server) wrap(operation string, handler mcp.ToolHandler) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (result *mcp.CallToolResult, err error) {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Errorf("panic in %s: %v\n%s", operation, r, debug.Stack())
				result, err = createErrorResponse(operation, fmt.Errorf("internal error: %v", r))
			}
		}()
		return handler(ctx, req)
	}
}

// Start serves MCP over stdio until ctx is cancelled or the client disconnects
func (s *Server) Start(ctx context.Context) error {
	s.logger.Printf("Starting MCP server with stdio transport")
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// Shutdown saves the index, stops the coordinator and closes the log
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Printf("Shutting down MCP server")
	err := s.coordinator.Shutdown(ctx)
	if err != nil {
		s.logger.Errorf("shutdown: %v", err)
	}
	s.logger.Close()
	return err
}
