package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/recall-run/recall/internal/model"
)

// qualityScoreExpr sums ten binary indicators of metadata completeness into
// a single 0-10 rubric. Each indicator is a cheap, column-local predicate —
// no cross-table lookups — so the score can be computed inline in any query
// that already has a snapshots row in scope.
const qualityScoreExpr = `(
	(CASE WHEN summary IS NOT NULL AND length(summary) > 0 THEN 1 ELSE 0 END) +
	(CASE WHEN length(summary) > 200 THEN 1 ELSE 0 END) +
	(CASE WHEN embedding IS NOT NULL THEN 1 ELSE 0 END) +
	(CASE WHEN cardinality(tags) > 0 THEN 1 ELSE 0 END) +
	(CASE WHEN cardinality(mentioned_files) > 0 THEN 1 ELSE 0 END) +
	(CASE WHEN cardinality(key_decisions) > 0 THEN 1 ELSE 0 END) +
	(CASE WHEN cardinality(bugs_fixed) > 0 THEN 1 ELSE 0 END) +
	(CASE WHEN git_hash IS NOT NULL THEN 1 ELSE 0 END) +
	(CASE WHEN session_id IS NOT NULL THEN 1 ELSE 0 END) +
	(CASE WHEN message_count >= 5 THEN 1 ELSE 0 END)
)`

// QualityReport returns up to limit snapshots scoring at least minScore,
// highest score first, plus
// aggregate bucket counts (high >= 8, medium 5-7, low < 5) over the full
// unfiltered population.
func (db *DB) QualityReport(ctx context.Context, projectPath string, minScore, limit int) ([]model.QualityRow, model.QualityBuckets, error) {
	query := `SELECT id, ` + qualityScoreExpr + ` AS score FROM snapshots WHERE (` + qualityScoreExpr + `) >= $1`
	args := []any{minScore}
	if projectPath != "" {
		query += ` AND project_path = $2 ORDER BY score DESC LIMIT $3`
		args = append(args, projectPath, limit)
	} else {
		query += ` ORDER BY score DESC LIMIT $2`
		args = append(args, limit)
	}

	pgRows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, model.QualityBuckets{}, fmt.Errorf("storage: quality report: %w", err)
	}
	defer pgRows.Close()

	var out []model.QualityRow
	for pgRows.Next() {
		var r model.QualityRow
		if err := pgRows.Scan(&r.SnapshotID, &r.Score); err != nil {
			return nil, model.QualityBuckets{}, fmt.Errorf("storage: quality report: scan: %w", err)
		}
		out = append(out, r)
	}
	if err := pgRows.Err(); err != nil {
		return nil, model.QualityBuckets{}, err
	}

	buckets, err := db.qualityBuckets(ctx, projectPath)
	if err != nil {
		return nil, model.QualityBuckets{}, err
	}
	return out, buckets, nil
}

func (db *DB) qualityBuckets(ctx context.Context, projectPath string) (model.QualityBuckets, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE score >= 8) AS high,
			COUNT(*) FILTER (WHERE score >= 5 AND score < 8) AS medium,
			COUNT(*) FILTER (WHERE score < 5) AS low
		FROM (SELECT ` + qualityScoreExpr + ` AS score FROM snapshots`
	var args []any
	if projectPath != "" {
		query += ` WHERE project_path = $1`
		args = append(args, projectPath)
	}
	query += `) scored`

	var b model.QualityBuckets
	if err := db.pool.QueryRow(ctx, query, args...).Scan(&b.High, &b.Medium, &b.Low); err != nil {
		return model.QualityBuckets{}, fmt.Errorf("storage: quality buckets: %w", err)
	}
	return b, nil
}

// ProjectStats returns a dashboard row per project, or a single row when
// projectPath is non-empty.
func (db *DB) ProjectStats(ctx context.Context, projectPath string) ([]model.ProjectStats, error) {
	query := `
		SELECT project_path, COUNT(*), MAX(timestamp), AVG(` + qualityScoreExpr + `),
		       SUM(cardinality(tags)), SUM(cardinality(mentioned_files))
		FROM snapshots`
	var args []any
	if projectPath != "" {
		query += ` WHERE project_path = $1`
		args = append(args, projectPath)
	}
	query += ` GROUP BY project_path ORDER BY project_path`

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: project stats: %w", err)
	}
	defer rows.Close()

	var out []model.ProjectStats
	for rows.Next() {
		var s model.ProjectStats
		if err := rows.Scan(&s.ProjectPath, &s.SnapshotCount, &s.LastCapturedAt, &s.AvgQualityScore, &s.TotalTags, &s.TotalFiles); err != nil {
			return nil, fmt.Errorf("storage: project stats: scan: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Timeline returns chronologically descending snapshots for a project, with
// a trigger classification derived from the free-form trigger label.
func (db *DB) Timeline(ctx context.Context, projectPath string, limit int) ([]model.TimelineRow, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT id, project_path, timestamp, trigger_event, summary, message_count
		FROM snapshots
		WHERE ($1 = '' OR project_path = $1)
		ORDER BY timestamp DESC
		LIMIT $2
	`, projectPath, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: timeline: %w", err)
	}
	defer rows.Close()

	var out []model.TimelineRow
	for rows.Next() {
		var r model.TimelineRow
		if err := rows.Scan(&r.SnapshotID, &r.ProjectPath, &r.Timestamp, &r.Trigger, &r.Summary, &r.MessageCount); err != nil {
			return nil, fmt.Errorf("storage: timeline: scan: %w", err)
		}
		r.TriggerClass = classifyTrigger(r.Trigger)
		out = append(out, r)
	}
	return out, rows.Err()
}

func classifyTrigger(trigger string) string {
	switch trigger {
	case "auto-compact", "post-compact":
		return "automatic"
	case "manual":
		return "manual"
	default:
		return "other"
	}
}

// Decisions flattens key_decisions arrays into rows, filtered by an
// optional case-insensitive keyword.
func (db *DB) Decisions(ctx context.Context, projectPath, keyword string, limit int) ([]model.DecisionRow, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT s.id, d, s.timestamp
		FROM snapshots s, unnest(s.key_decisions) AS d
		WHERE ($1 = '' OR s.project_path = $1)
		  AND ($2 = '' OR d ILIKE '%' || $2 || '%')
		ORDER BY s.timestamp DESC
		LIMIT $3
	`, projectPath, keyword, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: decisions: %w", err)
	}
	defer rows.Close()

	var out []model.DecisionRow
	for rows.Next() {
		var r model.DecisionRow
		if err := rows.Scan(&r.SnapshotID, &r.Text, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("storage: decisions: scan: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

var bugCategoryKeywords = map[string][]string{
	"crash":       {"crash", "panic", "segfault", "fatal"},
	"regression":  {"regress", "broke", "broken"},
	"data":        {"data loss", "corrupt", "incorrect data"},
	"performance": {"slow", "timeout", "hang", "latency"},
	"ui":          {"render", "display", "layout", "style"},
}

// Bugs flattens bugs_fixed arrays into rows, each classified into a category
// by keyword, optionally filtered to one category.
func (db *DB) Bugs(ctx context.Context, projectPath, category string, limit int) ([]model.BugRow, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT s.id, b
		FROM snapshots s, unnest(s.bugs_fixed) AS b
		WHERE ($1 = '' OR s.project_path = $1)
		ORDER BY s.timestamp DESC
		LIMIT $2
	`, projectPath, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: bugs: %w", err)
	}
	defer rows.Close()

	var out []model.BugRow
	for rows.Next() {
		var r model.BugRow
		if err := rows.Scan(&r.SnapshotID, &r.Text); err != nil {
			return nil, fmt.Errorf("storage: bugs: scan: %w", err)
		}
		r.Category = classifyBug(r.Text)
		if category == "" || r.Category == category {
			out = append(out, r)
		}
	}
	return out, rows.Err()
}

func classifyBug(text string) string {
	lower := strings.ToLower(text)
	for category, keywords := range bugCategoryKeywords {
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				return category
			}
		}
	}
	return "other"
}

// FileActivity returns a file-mention heatmap, each file classified by
// extension, optionally filtered by type and minimum mention count.
func (db *DB) FileActivity(ctx context.Context, projectPath, fileType string, minMentions, limit int) ([]model.FileActivityRow, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT f, COUNT(*)
		FROM snapshots s, unnest(s.mentioned_files) AS f
		WHERE ($1 = '' OR s.project_path = $1)
		GROUP BY f
		HAVING COUNT(*) >= $2
		ORDER BY COUNT(*) DESC
		LIMIT $3
	`, projectPath, minMentions, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: file activity: %w", err)
	}
	defer rows.Close()

	var out []model.FileActivityRow
	for rows.Next() {
		var r model.FileActivityRow
		if err := rows.Scan(&r.File, &r.Mentions); err != nil {
			return nil, fmt.Errorf("storage: file activity: scan: %w", err)
		}
		r.FileType = classifyFileType(r.File)
		if fileType == "" || r.FileType == fileType {
			out = append(out, r)
		}
	}
	return out, rows.Err()
}

func classifyFileType(file string) string {
	for i := len(file) - 1; i >= 0; i-- {
		if file[i] == '.' {
			return file[i+1:]
		}
		if file[i] == '/' {
			break
		}
	}
	return "unknown"
}
