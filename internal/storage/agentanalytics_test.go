package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recall-run/recall/internal/model"
)

func TestAgentPerformance(t *testing.T) {
	ctx := context.Background()
	def := mustUpsertAgentDef(t, "perf-agent", "hash-perf-1")

	_, err := testDB.PersistAgentWork(ctx, model.AgentWork{
		ParentSessionID: "session-perf",
		AgentDefID:      def.ID,
		AgentInstanceID: "instance-perf",
		Task:            "perf task",
		ToolUsage:       map[string]int{"Read": 3},
		ResultSummary:   "done",
		StartedAt:       time.Now().Add(-30 * time.Second),
		EndedAt:         time.Now(),
	})
	require.NoError(t, err)

	rows, err := testDB.AgentPerformance(ctx, "perf-agent", 10)
	require.NoError(t, err)
	require.NotEmpty(t, rows)
	assert.Equal(t, "perf-agent", rows[0].AgentType)
	assert.GreaterOrEqual(t, rows[0].TimesUsed, 1)
}

func TestAgentToolUsage(t *testing.T) {
	ctx := context.Background()
	def := mustUpsertAgentDef(t, "tool-agent", "hash-tool-1")

	_, err := testDB.PersistAgentWork(ctx, model.AgentWork{
		ParentSessionID: "session-tool",
		AgentDefID:      def.ID,
		AgentInstanceID: "instance-tool",
		Task:            "tool usage task",
		ToolUsage:       map[string]int{"Grep": 4},
		StartedAt:       time.Now(),
		EndedAt:         time.Now(),
	})
	require.NoError(t, err)

	rows, err := testDB.AgentToolUsage(ctx, "tool-agent", 10)
	require.NoError(t, err)
	assert.NotEmpty(t, rows)
}

func TestAgentVersionComparison(t *testing.T) {
	ctx := context.Background()
	mustUpsertAgentDef(t, "compare-agent", "hash-compare-1")
	mustUpsertAgentDef(t, "compare-agent", "hash-compare-2")

	rows, err := testDB.AgentVersionComparison(ctx, "compare-agent")
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}
