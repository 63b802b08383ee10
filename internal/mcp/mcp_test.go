package mcp

import (
	"context"
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/recall-run/recall/internal/embedding"
	"github.com/recall-run/recall/internal/model"
	"github.com/recall-run/recall/internal/retrieval"
	"github.com/recall-run/recall/internal/storage"
	"github.com/recall-run/recall/internal/testutil"
)

var (
	testDB  *storage.DB
	testSvc *retrieval.Service
	testSrv *Server
)

func TestMain(m *testing.M) {
	tc := testutil.MustStartPostgres()
	logger := testutil.TestLogger()

	db, err := tc.NewTestDB(context.Background(), logger)
	if err != nil {
		tc.Terminate()
		os.Exit(1)
	}
	testDB = db
	testSvc = retrieval.New(testDB, embedding.NewSyntheticProvider(384), nil, nil, logger)
	testSrv = New(testSvc, logger)

	code := m.Run()
	tc.Terminate()
	os.Exit(code)
}

func toolRequest(name string, args map[string]any) mcplib.CallToolRequest {
	return mcplib.CallToolRequest{
		Params: mcplib.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func parseToolText(t *testing.T, result *mcplib.CallToolResult) string {
	t.Helper()
	for _, c := range result.Content {
		if tc, ok := c.(mcplib.TextContent); ok {
			return tc.Text
		}
	}
	t.Fatal("no TextContent found in tool result")
	return ""
}

func mustPersist(t *testing.T, rec model.Snapshot) model.Snapshot {
	t.Helper()
	res, err := testDB.Persist(context.Background(), rec)
	require.NoError(t, err)
	rec.ID = res.ID
	return rec
}

func TestHandleSearchMemory(t *testing.T) {
	path := "/tmp/mcp-search-memory"
	mustPersist(t, model.Snapshot{
		ProjectPath:  path,
		Trigger:      "manual",
		MessageCount: 1,
		RawContext:   model.Conversation{Messages: []model.Message{{Role: "user", Content: "rework the retry backoff"}}},
		Summary:      "rework the retry backoff",
	})

	result, err := testSrv.handleSearchMemory(context.Background(), toolRequest("search_memory", map[string]any{
		"query":        "retry backoff",
		"project_path": path,
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, parseToolText(t, result))

	var rows []model.Snapshot
	require.NoError(t, json.Unmarshal([]byte(parseToolText(t, result)), &rows))
	require.NotEmpty(t, rows)
}

func TestHandleSearchMemory_MissingQuery(t *testing.T) {
	result, err := testSrv.handleSearchMemory(context.Background(), toolRequest("search_memory", map[string]any{}))
	require.NoError(t, err)
	require.True(t, result.IsError)
}

func TestHandleGetTimeline_MissingProjectPath(t *testing.T) {
	result, err := testSrv.handleGetTimeline(context.Background(), toolRequest("get_timeline", map[string]any{}))
	require.NoError(t, err)
	require.True(t, result.IsError)
}

func TestHandleGetSnapshot_NotFound(t *testing.T) {
	result, err := testSrv.handleGetSnapshot(context.Background(), toolRequest("get_snapshot", map[string]any{
		"id": float64(9_999_999),
	}))
	require.NoError(t, err)
	require.True(t, result.IsError)
}

func TestHandleGetSnapshot_Found(t *testing.T) {
	rec := mustPersist(t, model.Snapshot{
		ProjectPath:  "/tmp/mcp-get-snapshot",
		Trigger:      "manual",
		MessageCount: 1,
		RawContext:   model.Conversation{Messages: []model.Message{{Role: "user", Content: "hello"}}},
	})

	result, err := testSrv.handleGetSnapshot(context.Background(), toolRequest("get_snapshot", map[string]any{
		"id": float64(rec.ID),
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, parseToolText(t, result))

	var got model.Snapshot
	require.NoError(t, json.Unmarshal([]byte(parseToolText(t, result)), &got))
	require.Equal(t, rec.ID, got.ID)
}

func TestHandleGetQualityReport(t *testing.T) {
	path := "/tmp/mcp-quality"
	mustPersist(t, model.Snapshot{
		ProjectPath:  path,
		Trigger:      "manual",
		MessageCount: 20,
		RawContext:   model.Conversation{Messages: []model.Message{{Role: "user", Content: "hello"}}},
		Summary:      "a detailed summary of substantial work done",
		Tags:         []string{"backend", "bugfix"},
	})

	result, err := testSrv.handleGetQualityReport(context.Background(), toolRequest("get_quality_report", map[string]any{
		"project_path": path,
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, parseToolText(t, result))

	var out struct {
		Rows    []model.QualityRow  `json:"rows"`
		Buckets model.QualityBuckets `json:"buckets"`
	}
	require.NoError(t, json.Unmarshal([]byte(parseToolText(t, result)), &out))
	require.NotEmpty(t, out.Rows)
}

func TestHandleSearchAgentWork_MissingQuery(t *testing.T) {
	result, err := testSrv.handleSearchAgentWork(context.Background(), toolRequest("search_agent_work", map[string]any{}))
	require.NoError(t, err)
	require.True(t, result.IsError)
}

func TestHandleGetAgentAnalytics_MissingAgentType(t *testing.T) {
	result, err := testSrv.handleGetAgentAnalytics(context.Background(), toolRequest("get_agent_analytics", map[string]any{}))
	require.NoError(t, err)
	require.True(t, result.IsError)
}

func TestHandleCompareAgentConfigs_Empty(t *testing.T) {
	result, err := testSrv.handleCompareAgentConfigs(context.Background(), toolRequest("compare_agent_configs", map[string]any{
		"agent_type": "no-such-agent-type",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, parseToolText(t, result))
}
