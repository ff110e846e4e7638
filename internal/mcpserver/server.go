// Package mcpserver provides an MCP (Model Context Protocol) server that
// exposes Ansuz sync operations for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/ansuz/internal/syncservice"
)

// Server wraps the MCP server with Ansuz tools.
type Server struct {
	mcp *server.MCPServer
	svc *syncservice.Service
}

// New creates a new MCP server with all Ansuz tools registered.
func New(svc *syncservice.Service) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Ansuz",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("run_sync",
		mcp.WithDescription("Run one sync pass: poll the source repository for new "+
			"resolutions and file or update tracking issues. Returns the run report."),
	), s.runSync)

	s.mcp.AddTool(mcp.NewTool("sync_status",
		mcp.WithDescription("Return the sync cursor, tracking record count, and last run report."),
	), s.syncStatus)

	s.mcp.AddTool(mcp.NewTool("lookup_record",
		mcp.WithDescription("Look up the tracking record for a source issue number."),
		mcp.WithString("number", mcp.Required(), mcp.Description("Source issue number")),
	), s.lookupRecord)

	s.mcp.AddTool(mcp.NewTool("search_resolutions",
		mcp.WithDescription("Full-text search over synced issue titles and resolution text."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchResolutions)

	// Resource: tracking issue format.
	s.mcp.AddResource(
		mcp.NewResource("ansuz://issue-format", "Tracking Issue Format",
			mcp.WithResourceDescription("Format of the tracking issues Ansuz files in the destination repository."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readIssueFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) runSync(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	report, err := s.svc.TriggerSync(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(report, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) syncStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st, err := s.svc.Status()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(st, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) lookupRecord(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := req.RequireString("number")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	number, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid issue number: %s", raw)), nil
	}
	rec, err := s.svc.Record(number)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if rec == nil {
		return mcp.NewToolResultText(fmt.Sprintf("no tracking record for source issue #%d", number)), nil
	}
	out, _ := json.MarshalIndent(rec, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) searchResolutions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	records, err := s.svc.Search(query, 20)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(records) == 0 {
		return mcp.NewToolResultText("no matches"), nil
	}
	out, _ := json.MarshalIndent(records, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) readIssueFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "ansuz://issue-format",
			MIMEType: "text/markdown",
			Text:     IssueFormatContract,
		},
	}, nil
}
