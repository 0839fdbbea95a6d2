// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes strikezone analyses for LLM integration via stdio transport.
package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/strikezone/internal/aggregate"
	"github.com/starford/strikezone/internal/analysisservice"
	"github.com/starford/strikezone/internal/report"
	"github.com/starford/strikezone/internal/schema"
)

const inputFormatURI = "strikezone://input-format"

// Server wraps the MCP server with strikezone tools.
type Server struct {
	mcp *server.MCPServer
	svc *analysisservice.Service
}

// New creates a new MCP server with all strikezone tools registered.
func New(svc *analysisservice.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"strikezone",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	def := svc.Defaults()
	s.mcp.AddTool(mcp.NewTool("analyze_exports",
		mcp.WithDescription("Find keywords in striking distance: joins a ranking export with a crawl export "+
			"and reports, per page, the keywords ranking inside the position window together with whether "+
			"each already appears in the page title, H1 and copy. Read the input format first via "+
			"get_input_format or the "+inputFormatURI+" resource."),
		mcp.WithString("ranking_path", mcp.Required(), mcp.Description("Path to the ranking export (CSV or TSV)")),
		mcp.WithString("crawl_path", mcp.Required(), mcp.Description("Path to the crawl export (CSV or TSV)")),
		mcp.WithNumber("min_position", mcp.Description("Lowest position kept"), mcp.DefaultNumber(float64(def.Match.MinPosition))),
		mcp.WithNumber("max_position", mcp.Description("Highest position kept"), mcp.DefaultNumber(float64(def.Match.MaxPosition))),
		mcp.WithNumber("min_volume", mcp.Description("Minimum monthly search volume"), mcp.DefaultNumber(float64(def.Match.MinVolume))),
		mcp.WithBoolean("exclude_paginated", mcp.Description("Drop paginated URLs"), mcp.DefaultBool(def.Match.ExcludePaginated)),
		mcp.WithBoolean("drop_optimized", mcp.Description("Drop keywords already in title, H1 and copy"), mcp.DefaultBool(def.Match.DropOptimized)),
		mcp.WithBoolean("include_non_indexable", mcp.Description("Keep pages the crawl marks non-indexable"), mcp.DefaultBool(def.Match.IncludeNonIndexable)),
		mcp.WithBoolean("enrich", mcp.Description("Fetch missing difficulty and CPC from the metrics provider"), mcp.DefaultBool(def.Enrich)),
		mcp.WithString("view", mcp.Description("Row selection"), mcp.Enum(string(aggregate.ViewAll), string(aggregate.ViewGaps), string(aggregate.ViewUnoptimized))),
		mcp.WithString("format", mcp.Description("Output encoding"), mcp.Enum(string(report.FormatJSON), string(report.FormatRowsCSV), string(report.FormatPagesCSV), string(report.FormatNDJSON))),
		mcp.WithNumber("top", mcp.Description("Keyword groups per page in pages-csv"), mcp.DefaultNumber(report.DefaultTop)),
	), s.analyzeExports)

	s.mcp.AddTool(mcp.NewTool("list_column_aliases",
		mcp.WithDescription("List the column headers accepted for every field, in priority order."),
	), s.listColumnAliases)

	s.mcp.AddTool(mcp.NewTool("list_analyses",
		mcp.WithDescription("List recent analysis runs, newest first."),
		mcp.WithNumber("limit", mcp.Description("Maximum number of runs"), mcp.DefaultNumber(20)),
	), s.listAnalyses)

	s.mcp.AddTool(mcp.NewTool("get_input_format",
		mcp.WithDescription("Returns the expected layout of the ranking and crawl exports."),
	), s.getInputFormat)

	s.mcp.AddResource(
		mcp.NewResource(inputFormatURI, "Input Format",
			mcp.WithResourceDescription("Expected columns of the ranking and crawl exports."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readInputFormatResource,
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

func (s *Server) analyzeExports(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rankingPath, err := req.RequireString("ranking_path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	crawlPath, err := req.RequireString("crawl_path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	cfg := s.svc.Defaults()
	cfg.Match.MinPosition = req.GetInt("min_position", cfg.Match.MinPosition)
	cfg.Match.MaxPosition = req.GetInt("max_position", cfg.Match.MaxPosition)
	cfg.Match.MinVolume = req.GetInt("min_volume", cfg.Match.MinVolume)
	cfg.Match.ExcludePaginated = req.GetBool("exclude_paginated", cfg.Match.ExcludePaginated)
	cfg.Match.DropOptimized = req.GetBool("drop_optimized", cfg.Match.DropOptimized)
	cfg.Match.IncludeNonIndexable = req.GetBool("include_non_indexable", cfg.Match.IncludeNonIndexable)
	cfg.Enrich = req.GetBool("enrich", cfg.Enrich)

	view, err := aggregate.ParseView(req.GetString("view", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	format, err := report.ParseFormat(req.GetString("format", string(report.FormatJSON)))
	if err != nil || format == report.FormatTable {
		return mcp.NewToolResultError(fmt.Sprintf("unsupported format %q", req.GetString("format", ""))), nil
	}

	res, err := s.svc.AnalyzeFiles(ctx, rankingPath, crawlPath, cfg)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var buf bytes.Buffer
	opts := report.Options{View: view, Top: req.GetInt("top", report.DefaultTop)}
	if err := report.Render(&buf, format, res, opts); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(buf.String()), nil
}

func (s *Server) listColumnAliases(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	out, _ := json.MarshalIndent(map[string]any{
		"aliases":          schema.Aliases,
		"ranking_required": schema.RankingRequired,
		"crawl_required":   schema.CrawlRequired,
	}, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) listAnalyses(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	items, total, err := s.svc.ListRuns(ctx, req.GetInt("limit", 20), 0)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(map[string]any{"analyses": items, "total": total}, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) getInputFormat(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(InputFormat()), nil
}

func (s *Server) readInputFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      inputFormatURI,
			MIMEType: "text/markdown",
			Text:     InputFormat(),
		},
	}, nil
}
