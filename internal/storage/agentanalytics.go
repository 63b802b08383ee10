package storage

import (
	"context"
	"fmt"

	"github.com/recall-run/recall/internal/model"
)

// AgentPerformance returns a rollup per agent-definition: how often it was
// used, its average duration and message count, and a success rate proxied
// by the fraction of runs whose result_summary is non-empty (a work row
// with no result text is treated as a failed/aborted run).
func (db *DB) AgentPerformance(ctx context.Context, agentType string, limit int) ([]model.AgentPerformanceRow, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT d.id, d.agent_type, d.version,
		       COUNT(w.id) AS times_used,
		       COALESCE(AVG(EXTRACT(EPOCH FROM (w.ended_at - w.started_at))), 0) AS avg_duration_sec,
		       COALESCE(AVG(jsonb_array_length(w.messages)), 0) AS avg_message_count,
		       COALESCE(AVG(CASE WHEN length(w.result_summary) > 0 THEN 1.0 ELSE 0.0 END), 0) AS success_rate
		FROM agent_definitions d
		LEFT JOIN agent_work w ON w.agent_def_id = d.id
		WHERE ($1 = '' OR d.agent_type = $1)
		GROUP BY d.id, d.agent_type, d.version
		ORDER BY times_used DESC
		LIMIT $2
	`, agentType, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: agent performance: %w", err)
	}
	defer rows.Close()

	var out []model.AgentPerformanceRow
	for rows.Next() {
		var r model.AgentPerformanceRow
		if err := rows.Scan(&r.AgentDefID, &r.AgentType, &r.Version, &r.TimesUsed, &r.AvgDurationSec, &r.AvgMessageCount, &r.SuccessRate); err != nil {
			return nil, fmt.Errorf("storage: agent performance: scan: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// AgentToolUsage rolls up tool_usage histograms by agent_type and tool name.
func (db *DB) AgentToolUsage(ctx context.Context, agentType string, limit int) ([]model.AgentToolUsageRow, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT d.agent_type, kv.key AS tool, SUM(kv.value::int) AS count
		FROM agent_work w
		JOIN agent_definitions d ON d.id = w.agent_def_id
		CROSS JOIN LATERAL jsonb_each_text(w.tool_usage) AS kv
		WHERE ($1 = '' OR d.agent_type = $1)
		GROUP BY d.agent_type, kv.key
		ORDER BY count DESC
		LIMIT $2
	`, agentType, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: agent tool usage: %w", err)
	}
	defer rows.Close()

	var out []model.AgentToolUsageRow
	for rows.Next() {
		var r model.AgentToolUsageRow
		if err := rows.Scan(&r.AgentType, &r.Tool, &r.Count); err != nil {
			return nil, fmt.Errorf("storage: agent tool usage: scan: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// AgentVersionComparison computes, per agent_type/version, the average
// duration and its percentage change relative to the version immediately
// preceding it.
func (db *DB) AgentVersionComparison(ctx context.Context, agentType string) ([]model.AgentVersionComparisonRow, error) {
	rows, err := db.pool.Query(ctx, `
		WITH per_version AS (
			SELECT d.agent_type, d.version,
			       COALESCE(AVG(EXTRACT(EPOCH FROM (w.ended_at - w.started_at))), 0) AS avg_duration_sec
			FROM agent_definitions d
			LEFT JOIN agent_work w ON w.agent_def_id = d.id
			WHERE ($1 = '' OR d.agent_type = $1)
			GROUP BY d.agent_type, d.version
		)
		SELECT cur.agent_type, cur.version, cur.avg_duration_sec,
		       COALESCE(prev.avg_duration_sec, 0) AS prev_avg_duration_sec
		FROM per_version cur
		LEFT JOIN per_version prev
		  ON prev.agent_type = cur.agent_type AND prev.version = cur.version - 1
		ORDER BY cur.agent_type, cur.version
	`, agentType)
	if err != nil {
		return nil, fmt.Errorf("storage: agent version comparison: %w", err)
	}
	defer rows.Close()

	var out []model.AgentVersionComparisonRow
	for rows.Next() {
		var r model.AgentVersionComparisonRow
		if err := rows.Scan(&r.AgentType, &r.Version, &r.AvgDurationSec, &r.PrevAvgDurationSec); err != nil {
			return nil, fmt.Errorf("storage: agent version comparison: scan: %w", err)
		}
		if r.PrevAvgDurationSec > 0 {
			r.PctChange = (r.AvgDurationSec - r.PrevAvgDurationSec) / r.PrevAvgDurationSec * 100
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
