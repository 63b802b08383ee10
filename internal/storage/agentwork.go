package storage

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/recall-run/recall/internal/model"
)

// PersistAgentWork inserts a capture of one subagent's completed work. The
// pair (agent_instance_id, parent_session_id) is unique: replaying the same
// capture for the same subagent instance within the same parent session
// updates the existing row rather than duplicating it.
func (db *DB) PersistAgentWork(ctx context.Context, rec model.AgentWork) (model.AgentWork, error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return model.AgentWork{}, model.Wrap(model.KindStoreFatal, "storage: begin transaction", err)
	}
	defer tx.Rollback(ctx)

	var existingID *int64
	if rec.AgentInstanceID != "" && rec.ParentSessionID != "" {
		var id int64
		err := tx.QueryRow(ctx, `
			SELECT id FROM agent_work
			WHERE agent_instance_id = $1 AND parent_session_id = $2
			FOR UPDATE
		`, rec.AgentInstanceID, rec.ParentSessionID).Scan(&id)
		if err == nil {
			existingID = &id
		} else if err != pgx.ErrNoRows {
			return model.AgentWork{}, model.Wrap(model.KindStoreFatal, "storage: find agent work", err)
		}
	}

	var out model.AgentWork
	if existingID != nil {
		out, err = updateAgentWork(ctx, tx, *existingID, rec)
	} else {
		out, err = insertAgentWork(ctx, tx, rec)
	}
	if err != nil {
		return model.AgentWork{}, model.Wrap(model.KindStoreFatal, "storage: persist agent work", err)
	}

	var verifyID int64
	if err := tx.QueryRow(ctx, `SELECT id FROM agent_work WHERE id = $1`, out.ID).Scan(&verifyID); err != nil {
		return model.AgentWork{}, model.Wrap(model.KindStoreFatal, "storage: read-back verification failed", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return model.AgentWork{}, model.Wrap(model.KindStoreFatal, "storage: commit transaction", err)
	}
	return out, nil
}

func insertAgentWork(ctx context.Context, tx pgx.Tx, rec model.AgentWork) (model.AgentWork, error) {
	messagesJSON, err := json.Marshal(rec.Messages)
	if err != nil {
		return model.AgentWork{}, err
	}
	toolUsageJSON, err := json.Marshal(rec.ToolUsage)
	if err != nil {
		return model.AgentWork{}, err
	}
	vec := vectorOf(rec.Embedding)

	err = tx.QueryRow(ctx, `
		INSERT INTO agent_work (
			request_id, parent_snapshot_id, parent_session_id, agent_def_id, agent_instance_id,
			task, transcript_path, messages, tool_usage, files_examined, urls_fetched,
			result_summary, embedding, started_at, ended_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		RETURNING id
	`,
		rec.RequestID, rec.ParentSnapshotID, rec.ParentSessionID, rec.AgentDefID, rec.AgentInstanceID,
		rec.Task, rec.TranscriptPath, messagesJSON, toolUsageJSON, rec.FilesExamined, rec.URLsFetched,
		rec.ResultSummary, vec, rec.StartedAt, rec.EndedAt,
	).Scan(&rec.ID)
	if err != nil {
		return model.AgentWork{}, err
	}
	return rec, nil
}

func updateAgentWork(ctx context.Context, tx pgx.Tx, id int64, rec model.AgentWork) (model.AgentWork, error) {
	messagesJSON, err := json.Marshal(rec.Messages)
	if err != nil {
		return model.AgentWork{}, err
	}
	toolUsageJSON, err := json.Marshal(rec.ToolUsage)
	if err != nil {
		return model.AgentWork{}, err
	}
	vec := vectorOf(rec.Embedding)

	_, err = tx.Exec(ctx, `
		UPDATE agent_work SET
			request_id = $2, parent_snapshot_id = $3, agent_def_id = $4,
			task = $5, transcript_path = $6, messages = $7, tool_usage = $8,
			files_examined = $9, urls_fetched = $10, result_summary = $11,
			embedding = $12, started_at = $13, ended_at = $14
		WHERE id = $1
	`,
		id, rec.RequestID, rec.ParentSnapshotID, rec.AgentDefID,
		rec.Task, rec.TranscriptPath, messagesJSON, toolUsageJSON,
		rec.FilesExamined, rec.URLsFetched, rec.ResultSummary,
		vec, rec.StartedAt, rec.EndedAt,
	)
	if err != nil {
		return model.AgentWork{}, err
	}
	rec.ID = id
	return rec, nil
}

func vectorOf(embedding []float32) *pgvector.Vector {
	if embedding == nil {
		return nil
	}
	v := pgvector.NewVector(embedding)
	return &v
}

const agentWorkSelectColumns = `
	SELECT id, request_id, parent_snapshot_id, parent_session_id, agent_def_id, agent_instance_id,
	       task, transcript_path, messages, tool_usage, files_examined, urls_fetched,
	       result_summary, embedding, started_at, ended_at
`

func scanAgentWork(row rowScanner) (model.AgentWork, error) {
	var w model.AgentWork
	var messagesJSON, toolUsageJSON []byte
	var vec *pgvector.Vector

	err := row.Scan(
		&w.ID, &w.RequestID, &w.ParentSnapshotID, &w.ParentSessionID, &w.AgentDefID, &w.AgentInstanceID,
		&w.Task, &w.TranscriptPath, &messagesJSON, &toolUsageJSON, &w.FilesExamined, &w.URLsFetched,
		&w.ResultSummary, &vec, &w.StartedAt, &w.EndedAt,
	)
	if err == pgx.ErrNoRows {
		return model.AgentWork{}, model.ErrNotFound
	}
	if err != nil {
		return model.AgentWork{}, err
	}
	if len(messagesJSON) > 0 {
		_ = json.Unmarshal(messagesJSON, &w.Messages)
	}
	if len(toolUsageJSON) > 0 {
		_ = json.Unmarshal(toolUsageJSON, &w.ToolUsage)
	}
	if vec != nil {
		w.Embedding = vec.Slice()
	}
	return w, nil
}

// GetAgentWork returns the full record by id.
func (db *DB) GetAgentWork(ctx context.Context, id int64) (model.AgentWork, error) {
	row := db.pool.QueryRow(ctx, agentWorkSelectColumns+`FROM agent_work WHERE id = $1`, id)
	return scanAgentWork(row)
}

// RecentAgentWork returns the most recently started agent-work rows,
// bounded by limit, for the system-status / recent-activity read surface.
func (db *DB) RecentAgentWork(ctx context.Context, limit int) ([]model.AgentWork, error) {
	rows, err := db.pool.Query(ctx, agentWorkSelectColumns+`
		FROM agent_work ORDER BY started_at DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
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

// AgentWorkForSession returns every subagent capture recorded under a
// parent session, ordered by start time.
func (db *DB) AgentWorkForSession(ctx context.Context, parentSessionID string) ([]model.AgentWork, error) {
	rows, err := db.pool.Query(ctx, agentWorkSelectColumns+`
		FROM agent_work WHERE parent_session_id = $1 ORDER BY started_at
	`, parentSessionID)
	if err != nil {
		return nil, err
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
