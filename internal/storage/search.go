package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/pgvector/pgvector-go"

	"github.com/recall-run/recall/internal/model"
)

// SemanticSearch returns the k snapshots with smallest cosine distance to
// query, ordered ascending, optionally scoped to a project. Callers that
// could not produce a query vector should use LexicalSearch instead; this
// method never falls back on its own.
func (db *DB) SemanticSearch(ctx context.Context, query []float32, projectPath string, limit int) ([]model.Snapshot, error) {
	vec := pgvector.NewVector(query)
	rows, err := db.pool.Query(ctx, snapshotSelectColumns+`
		FROM snapshots
		WHERE embedding IS NOT NULL AND ($2 = '' OR project_path = $2)
		ORDER BY embedding <=> $1
		LIMIT $3
	`, vec, projectPath, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: semantic search: %w", err)
	}
	defer rows.Close()
	return scanSnapshots(rows)
}

// LexicalSearch degrades semantic search to a case-insensitive ILIKE scan
// over the summary column.
func (db *DB) LexicalSearch(ctx context.Context, query, projectPath string, limit int) ([]model.Snapshot, error) {
	rows, err := db.pool.Query(ctx, snapshotSelectColumns+`
		FROM snapshots
		WHERE summary ILIKE '%' || $1 || '%' AND ($2 = '' OR project_path = $2)
		ORDER BY timestamp DESC
		LIMIT $3
	`, query, projectPath, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: lexical search: %w", err)
	}
	defer rows.Close()
	return scanSnapshots(rows)
}

const rawMessageContextChars = 80

// RawMessageSearch scans each snapshot's raw conversation for substring
// matches, in Go rather than SQL, since matches must be reported with
// character-offset context snippets taken from the concatenated message
// text, not from the jsonb column itself.
func (db *DB) RawMessageSearch(ctx context.Context, query, projectPath string, limit int) ([]model.RawMessageHit, error) {
	if query == "" {
		return nil, nil
	}
	rows, err := db.pool.Query(ctx, snapshotSelectColumns+`
		FROM snapshots
		WHERE ($1 = '' OR project_path = $1)
		ORDER BY timestamp DESC
		LIMIT $2
	`, projectPath, rawMessageScanWindow(limit))
	if err != nil {
		return nil, fmt.Errorf("storage: raw message search: %w", err)
	}
	defer rows.Close()

	snapshots, err := scanSnapshots(rows)
	if err != nil {
		return nil, err
	}

	lowerQuery := strings.ToLower(query)
	var hits []model.RawMessageHit
	for _, s := range snapshots {
		for _, m := range s.RawContext.Messages {
			lower := strings.ToLower(m.Content)
			idx := strings.Index(lower, lowerQuery)
			if idx < 0 {
				continue
			}
			start := idx - rawMessageContextChars
			if start < 0 {
				start = 0
			}
			end := idx + len(query) + rawMessageContextChars
			if end > len(m.Content) {
				end = len(m.Content)
			}
			hits = append(hits, model.RawMessageHit{
				SnapshotID: s.ID,
				Snippet:    m.Content[start:end],
				Offset:     idx,
			})
			if len(hits) >= limit {
				return hits, nil
			}
		}
	}
	return hits, nil
}

func rawMessageScanWindow(limit int) int {
	window := limit * 20
	if window < 200 {
		window = 200
	}
	return window
}

// ExactPhraseSearch returns snapshots whose assistant messages contain the
// literal phrase, case-insensitively.
func (db *DB) ExactPhraseSearch(ctx context.Context, phrase, projectPath string, limit int) ([]model.Snapshot, error) {
	rows, err := db.pool.Query(ctx, snapshotSelectColumns+`
		FROM snapshots
		WHERE ($1 = '' OR project_path = $1)
		ORDER BY timestamp DESC
		LIMIT $2
	`, projectPath, rawMessageScanWindow(limit))
	if err != nil {
		return nil, fmt.Errorf("storage: exact phrase search: %w", err)
	}
	defer rows.Close()

	snapshots, err := scanSnapshots(rows)
	if err != nil {
		return nil, err
	}

	lowerPhrase := strings.ToLower(phrase)
	var out []model.Snapshot
	for _, s := range snapshots {
		for _, m := range s.RawContext.Messages {
			if m.Role != "assistant" {
				continue
			}
			if strings.Contains(strings.ToLower(m.Content), lowerPhrase) {
				out = append(out, s)
				break
			}
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

// AgentWorkSemanticSearch mirrors SemanticSearch over the agent_work table.
func (db *DB) AgentWorkSemanticSearch(ctx context.Context, query []float32, limit int) ([]model.AgentWork, error) {
	vec := pgvector.NewVector(query)
	rows, err := db.pool.Query(ctx, agentWorkSelectColumns+`
		FROM agent_work
		WHERE embedding IS NOT NULL
		ORDER BY embedding <=> $1
		LIMIT $2
	`, vec, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: agent work semantic search: %w", err)
	}
	defer rows.Close()

	var out []model.AgentWork
	for rows.Next() {
		w, err := scanAgentWork(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// AgentWorkLexicalSearch degrades AgentWorkSemanticSearch to an ILIKE scan
// over result_summary and task.
func (db *DB) AgentWorkLexicalSearch(ctx context.Context, query string, limit int) ([]model.AgentWork, error) {
	rows, err := db.pool.Query(ctx, agentWorkSelectColumns+`
		FROM agent_work
		WHERE result_summary ILIKE '%' || $1 || '%' OR task ILIKE '%' || $1 || '%'
		ORDER BY started_at DESC
		LIMIT $2
	`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: agent work lexical search: %w", err)
	}
	defer rows.Close()

	var out []model.AgentWork
	for rows.Next() {
		w, err := scanAgentWork(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}
