// Package mcp implements the Model Context Protocol server for the
// capture & retrieval engine.
//
// It exposes the same Retrieval API operations as the HTTP `/api/*`
// surface through MCP tools backed by the same internal/retrieval.Service,
// so an MCP-capable client can query its own captured history directly.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/recall-run/recall/internal/retrieval"
)

// Server wraps the MCP server with the retrieval service layer.
type Server struct {
	mcpServer *mcpserver.MCPServer
	svc       *retrieval.Service
	logger    *slog.Logger
}

// New creates and configures a new MCP server exposing every Retrieval API
// operation as a tool.
func New(svc *retrieval.Service, logger *slog.Logger) *Server {
	s := &Server{svc: svc, logger: logger}

	s.mcpServer = mcpserver.NewMCPServer(
		"recall",
		"0.1.0",
		mcpserver.WithToolCapabilities(true),
	)

	s.registerTools()
	return s
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcplib.NewTool("search_memory",
			mcplib.WithDescription("Semantic search over captured conversation snapshots, falling back to lexical search when embedding fails"),
			mcplib.WithString("query", mcplib.Description("Natural language search query"), mcplib.Required()),
			mcplib.WithString("project_path", mcplib.Description("Restrict results to this project path")),
			mcplib.WithNumber("limit", mcplib.Description("Maximum results to return")),
		),
		s.handleSearchMemory,
	)

	s.mcpServer.AddTool(
		mcplib.NewTool("search_raw_messages",
			mcplib.WithDescription("Substring scan across raw conversation text, returning hit snippets with surrounding context"),
			mcplib.WithString("query", mcplib.Description("Substring to search for"), mcplib.Required()),
			mcplib.WithString("project_path", mcplib.Description("Restrict results to this project path")),
			mcplib.WithNumber("limit", mcplib.Description("Maximum results to return")),
		),
		s.handleSearchRawMessages,
	)

	s.mcpServer.AddTool(
		mcplib.NewTool("search_exact_phrase",
			mcplib.WithDescription("Literal case-insensitive phrase match across assistant messages"),
			mcplib.WithString("phrase", mcplib.Description("Exact phrase to match"), mcplib.Required()),
			mcplib.WithString("project_path", mcplib.Description("Restrict results to this project path")),
			mcplib.WithNumber("limit", mcplib.Description("Maximum results to return")),
		),
		s.handleSearchExactPhrase,
	)

	s.mcpServer.AddTool(
		mcplib.NewTool("get_timeline",
			mcplib.WithDescription("Chronologically descending snapshots with trigger classification"),
			mcplib.WithString("project_path", mcplib.Description("Project path"), mcplib.Required()),
			mcplib.WithNumber("limit", mcplib.Description("Maximum results to return")),
		),
		s.handleGetTimeline,
	)

	s.mcpServer.AddTool(
		mcplib.NewTool("get_snapshot",
			mcplib.WithDescription("Fetch the full snapshot record by id"),
			mcplib.WithNumber("id", mcplib.Description("Snapshot id"), mcplib.Required()),
		),
		s.handleGetSnapshot,
	)

	s.mcpServer.AddTool(
		mcplib.NewTool("get_quality_report",
			mcplib.WithDescription("Quality view rows at or above a minimum score, plus aggregate high/medium/low buckets"),
			mcplib.WithString("project_path", mcplib.Description("Restrict results to this project path")),
			mcplib.WithNumber("min_score", mcplib.Description("Minimum quality score 0-10")),
			mcplib.WithNumber("limit", mcplib.Description("Maximum results to return")),
		),
		s.handleGetQualityReport,
	)

	s.mcpServer.AddTool(
		mcplib.NewTool("get_project_stats",
			mcplib.WithDescription("Per-project dashboard aggregates"),
			mcplib.WithString("project_path", mcplib.Description("Restrict to this project path")),
		),
		s.handleGetProjectStats,
	)

	s.mcpServer.AddTool(
		mcplib.NewTool("search_decisions",
			mcplib.WithDescription("Flattened key-decision mentions containing a keyword"),
			mcplib.WithString("project_path", mcplib.Description("Restrict results to this project path")),
			mcplib.WithString("keyword", mcplib.Description("Keyword to filter decisions by")),
			mcplib.WithNumber("limit", mcplib.Description("Maximum results to return")),
		),
		s.handleSearchDecisions,
	)

	s.mcpServer.AddTool(
		mcplib.NewTool("analyze_bugs",
			mcplib.WithDescription("Flattened bug mentions with category classification"),
			mcplib.WithString("project_path", mcplib.Description("Restrict results to this project path")),
			mcplib.WithString("category", mcplib.Description("Bug category: crash, regression, data, performance, ui, other")),
			mcplib.WithNumber("limit", mcplib.Description("Maximum results to return")),
		),
		s.handleAnalyzeBugs,
	)

	s.mcpServer.AddTool(
		mcplib.NewTool("get_file_activity",
			mcplib.WithDescription("File-mention heatmap with type classification"),
			mcplib.WithString("project_path", mcplib.Description("Restrict results to this project path")),
			mcplib.WithString("file_type", mcplib.Description("Filter by file type classification")),
			mcplib.WithNumber("min_mentions", mcplib.Description("Minimum mention count")),
			mcplib.WithNumber("limit", mcplib.Description("Maximum results to return")),
		),
		s.handleGetFileActivity,
	)

	s.mcpServer.AddTool(
		mcplib.NewTool("search_agent_work",
			mcplib.WithDescription("Semantic search over agent-work result summaries, falling back to lexical search"),
			mcplib.WithString("query", mcplib.Description("Natural language search query"), mcplib.Required()),
			mcplib.WithNumber("limit", mcplib.Description("Maximum results to return")),
		),
		s.handleSearchAgentWork,
	)

	s.mcpServer.AddTool(
		mcplib.NewTool("get_agent_analytics",
			mcplib.WithDescription("Per-definition performance rollup and per-type tool-usage rollup for an agent type"),
			mcplib.WithString("agent_type", mcplib.Description("Agent type label"), mcplib.Required()),
			mcplib.WithNumber("limit", mcplib.Description("Maximum rows to return")),
		),
		s.handleGetAgentAnalytics,
	)

	s.mcpServer.AddTool(
		mcplib.NewTool("compare_agent_configs",
			mcplib.WithDescription("Version-over-version average duration comparison for an agent type"),
			mcplib.WithString("agent_type", mcplib.Description("Agent type label"), mcplib.Required()),
		),
		s.handleCompareAgentConfigs,
	)
}

func (s *Server) handleSearchMemory(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	query := request.GetString("query", "")
	if query == "" {
		return errorResult("query is required"), nil
	}
	results, err := s.svc.SearchMemory(ctx, query, request.GetString("project_path", ""), request.GetInt("limit", 0))
	if err != nil {
		return errorResult(fmt.Sprintf("search_memory failed: %v", err)), nil
	}
	return jsonResult(results)
}

func (s *Server) handleSearchRawMessages(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	query := request.GetString("query", "")
	if query == "" {
		return errorResult("query is required"), nil
	}
	hits, err := s.svc.SearchRawMessages(ctx, query, request.GetString("project_path", ""), request.GetInt("limit", 0))
	if err != nil {
		return errorResult(fmt.Sprintf("search_raw_messages failed: %v", err)), nil
	}
	return jsonResult(hits)
}

func (s *Server) handleSearchExactPhrase(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	phrase := request.GetString("phrase", "")
	if phrase == "" {
		return errorResult("phrase is required"), nil
	}
	results, err := s.svc.SearchExactPhrase(ctx, phrase, request.GetString("project_path", ""), request.GetInt("limit", 0))
	if err != nil {
		return errorResult(fmt.Sprintf("search_exact_phrase failed: %v", err)), nil
	}
	return jsonResult(results)
}

func (s *Server) handleGetTimeline(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	projectPath := request.GetString("project_path", "")
	if projectPath == "" {
		return errorResult("project_path is required"), nil
	}
	rows, err := s.svc.GetTimeline(ctx, projectPath, request.GetInt("limit", 0))
	if err != nil {
		return errorResult(fmt.Sprintf("get_timeline failed: %v", err)), nil
	}
	return jsonResult(rows)
}

func (s *Server) handleGetSnapshot(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	id := request.GetInt("id", 0)
	if id <= 0 {
		return errorResult("id is required"), nil
	}
	snap, err := s.svc.GetSnapshot(ctx, int64(id))
	if err != nil {
		return errorResult(fmt.Sprintf("get_snapshot failed: %v", err)), nil
	}
	return jsonResult(snap)
}

func (s *Server) handleGetQualityReport(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	rows, buckets, err := s.svc.GetQualityReport(ctx, request.GetString("project_path", ""), request.GetInt("min_score", 0), request.GetInt("limit", 0))
	if err != nil {
		return errorResult(fmt.Sprintf("get_quality_report failed: %v", err)), nil
	}
	return jsonResult(map[string]any{"rows": rows, "buckets": buckets})
}

func (s *Server) handleGetProjectStats(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	stats, err := s.svc.GetProjectStats(ctx, request.GetString("project_path", ""))
	if err != nil {
		return errorResult(fmt.Sprintf("get_project_stats failed: %v", err)), nil
	}
	return jsonResult(stats)
}

func (s *Server) handleSearchDecisions(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	rows, err := s.svc.SearchDecisions(ctx, request.GetString("project_path", ""), request.GetString("keyword", ""), request.GetInt("limit", 0))
	if err != nil {
		return errorResult(fmt.Sprintf("search_decisions failed: %v", err)), nil
	}
	return jsonResult(rows)
}

func (s *Server) handleAnalyzeBugs(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	rows, err := s.svc.AnalyzeBugs(ctx, request.GetString("project_path", ""), request.GetString("category", ""), request.GetInt("limit", 0))
	if err != nil {
		return errorResult(fmt.Sprintf("analyze_bugs failed: %v", err)), nil
	}
	return jsonResult(rows)
}

func (s *Server) handleGetFileActivity(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	rows, err := s.svc.GetFileActivity(ctx, request.GetString("project_path", ""), request.GetString("file_type", ""), request.GetInt("min_mentions", 0), request.GetInt("limit", 0))
	if err != nil {
		return errorResult(fmt.Sprintf("get_file_activity failed: %v", err)), nil
	}
	return jsonResult(rows)
}

func (s *Server) handleSearchAgentWork(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	query := request.GetString("query", "")
	if query == "" {
		return errorResult("query is required"), nil
	}
	rows, err := s.svc.SearchAgentWork(ctx, query, request.GetInt("limit", 0))
	if err != nil {
		return errorResult(fmt.Sprintf("search_agent_work failed: %v", err)), nil
	}
	return jsonResult(rows)
}

func (s *Server) handleGetAgentAnalytics(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	agentType := request.GetString("agent_type", "")
	if agentType == "" {
		return errorResult("agent_type is required"), nil
	}
	analytics, err := s.svc.GetAgentAnalytics(ctx, agentType, request.GetInt("limit", 0))
	if err != nil {
		return errorResult(fmt.Sprintf("get_agent_analytics failed: %v", err)), nil
	}
	return jsonResult(analytics)
}

func (s *Server) handleCompareAgentConfigs(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	agentType := request.GetString("agent_type", "")
	if agentType == "" {
		return errorResult("agent_type is required"), nil
	}
	rows, err := s.svc.CompareAgentConfigs(ctx, agentType)
	if err != nil {
		return errorResult(fmt.Sprintf("compare_agent_configs failed: %v", err)), nil
	}
	return jsonResult(rows)
}

func jsonResult(v any) (*mcplib.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: string(data)},
		},
	}, nil
}

func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
