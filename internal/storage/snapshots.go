package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/recall-run/recall/internal/model"
)

// Persist enforces the upsert invariant: a record carrying a session_id or
// transcript_path that matches an existing row updates that row; otherwise
// a new row is inserted. The match-and-write path runs inside a single
// transaction so concurrent writers for the same session_id are serialized
// by Postgres row-level locking, and the write is verified by a
// same-transaction read-back of the id.
func (db *DB) Persist(ctx context.Context, rec model.Snapshot) (model.PersistResult, error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return model.PersistResult{}, model.Wrap(model.KindStoreFatal, "storage: begin transaction", err)
	}
	defer tx.Rollback(ctx)

	var result model.PersistResult

	if rec.SessionID != nil || rec.TranscriptPath != nil {
		matchID, err := findMatchForUpdate(ctx, tx, rec)
		if err != nil {
			return model.PersistResult{}, model.Wrap(model.KindStoreFatal, "storage: find existing snapshot", err)
		}

		if matchID != nil {
			result, err = updateSnapshot(ctx, tx, *matchID, rec)
			if err != nil {
				return model.PersistResult{}, model.Wrap(model.KindStoreFatal, "storage: update snapshot", err)
			}
		} else {
			// Insert inside a savepoint: a 23505 here means another writer won
			// the race between our lookup and our insert. Rolling back to the
			// savepoint un-poisons the outer transaction so the StoreConflict
			// recovery (retry as an update) can still run on it, instead of
			// every later statement failing with 25P02.
			sp, err := tx.Begin(ctx)
			if err != nil {
				return model.PersistResult{}, model.Wrap(model.KindStoreFatal, "storage: begin savepoint", err)
			}
			result, err = insertSnapshot(ctx, sp, rec)
			if isUniqueViolation(err) {
				_ = sp.Rollback(ctx)
				matchID, ferr := findMatchForUpdate(ctx, tx, rec)
				if ferr != nil || matchID == nil {
					return model.PersistResult{}, model.Wrap(model.KindStoreFatal, "storage: resolve store conflict", ferr)
				}
				result, err = updateSnapshot(ctx, tx, *matchID, rec)
			} else if err != nil {
				_ = sp.Rollback(ctx)
			} else if cerr := sp.Commit(ctx); cerr != nil {
				return model.PersistResult{}, model.Wrap(model.KindStoreFatal, "storage: commit savepoint", cerr)
			}
			if err != nil {
				return model.PersistResult{}, model.Wrap(model.KindStoreFatal, "storage: insert snapshot", err)
			}
		}
	} else {
		result, err = insertSnapshot(ctx, tx, rec)
		if err != nil {
			return model.PersistResult{}, model.Wrap(model.KindStoreFatal, "storage: insert snapshot", err)
		}
	}

	// Same-transaction read-back verification: a missing row here is a hard
	// abort, never silently swallowed.
	var verifyID int64
	if err := tx.QueryRow(ctx, `SELECT id FROM snapshots WHERE id = $1`, result.ID).Scan(&verifyID); err != nil {
		return model.PersistResult{}, model.Wrap(model.KindStoreFatal, "storage: read-back verification failed", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO search_outbox (snapshot_id, operation) VALUES ($1, 'upsert')
	`, result.ID); err != nil {
		return model.PersistResult{}, model.Wrap(model.KindStoreFatal, "storage: enqueue search outbox", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return model.PersistResult{}, model.Wrap(model.KindStoreFatal, "storage: commit transaction", err)
	}

	return result, nil
}

func findMatchForUpdate(ctx context.Context, tx pgx.Tx, rec model.Snapshot) (*int64, error) {
	var id int64
	err := tx.QueryRow(ctx, `
		SELECT id FROM snapshots
		WHERE (session_id IS NOT NULL AND session_id = $1)
		   OR (transcript_path IS NOT NULL AND transcript_path = $2)
		ORDER BY id
		LIMIT 1
		FOR UPDATE
	`, rec.SessionID, rec.TranscriptPath).Scan(&id)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func insertSnapshot(ctx context.Context, tx pgx.Tx, rec model.Snapshot) (model.PersistResult, error) {
	rawContext, err := json.Marshal(rec.RawContext)
	if err != nil {
		return model.PersistResult{}, err
	}

	vec := vectorOf(rec.Embedding)

	var id int64
	var ts time.Time
	err = tx.QueryRow(ctx, `
		INSERT INTO snapshots (
			project_path, session_id, transcript_path, timestamp, trigger_event,
			message_count, raw_context, summary, embedding, tags, mentioned_files,
			key_decisions, bugs_fixed, git_hash, git_branch, storage_bytes
		) VALUES (
			$1, $2, $3, now(), $4,
			$5, $6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15
		)
		RETURNING id, timestamp
	`,
		rec.ProjectPath, rec.SessionID, rec.TranscriptPath, rec.Trigger,
		rec.MessageCount, rawContext, rec.Summary, vec, rec.Tags, rec.MentionedFiles,
		rec.KeyDecisions, rec.BugsFixed, rec.GitHash, rec.GitBranch, rec.StorageBytes,
	).Scan(&id, &ts)
	if err != nil {
		return model.PersistResult{}, err
	}

	return model.PersistResult{ID: id, Timestamp: ts, Action: model.ActionInserted}, nil
}

func updateSnapshot(ctx context.Context, tx pgx.Tx, id int64, rec model.Snapshot) (model.PersistResult, error) {
	rawContext, err := json.Marshal(rec.RawContext)
	if err != nil {
		return model.PersistResult{}, err
	}

	vec := vectorOf(rec.Embedding)

	var ts time.Time
	err = tx.QueryRow(ctx, `
		UPDATE snapshots SET
			project_path = $2, session_id = $3, transcript_path = $4, timestamp = now(),
			trigger_event = $5, message_count = $6, raw_context = $7, summary = $8,
			embedding = $9, tags = $10, mentioned_files = $11, key_decisions = $12,
			bugs_fixed = $13, git_hash = $14, git_branch = $15, storage_bytes = $16
		WHERE id = $1
		RETURNING timestamp
	`,
		id, rec.ProjectPath, rec.SessionID, rec.TranscriptPath,
		rec.Trigger, rec.MessageCount, rawContext, rec.Summary,
		vec, rec.Tags, rec.MentionedFiles, rec.KeyDecisions,
		rec.BugsFixed, rec.GitHash, rec.GitBranch, rec.StorageBytes,
	).Scan(&ts)
	if err != nil {
		return model.PersistResult{}, err
	}

	return model.PersistResult{ID: id, Timestamp: ts, Action: model.ActionUpdated}, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return containsPgErrCode(err, "23505")
}

// RewriteSummary updates an existing snapshot's summary and embedding only,
// the sole write path the out-of-core enhanced-summary utility is allowed
// to use.
func (db *DB) RewriteSummary(ctx context.Context, snapshotID int64, newSummary string, newEmbedding []float32) error {
	vec := vectorOf(newEmbedding)

	tag, err := db.pool.Exec(ctx, `
		UPDATE snapshots SET summary = $2, embedding = $3 WHERE id = $1
	`, snapshotID, newSummary, vec)
	if err != nil {
		return fmt.Errorf("storage: rewrite summary: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	if _, err := db.pool.Exec(ctx, `
		INSERT INTO search_outbox (snapshot_id, operation) VALUES ($1, 'upsert')
	`, snapshotID); err != nil {
		return fmt.Errorf("storage: rewrite summary: enqueue search outbox: %w", err)
	}
	return nil
}

// GetSnapshot returns the full record by id.
func (db *DB) GetSnapshot(ctx context.Context, id int64) (model.Snapshot, error) {
	row := db.pool.QueryRow(ctx, snapshotSelectColumns+` FROM snapshots WHERE id = $1`, id)
	return scanSnapshot(row)
}

// GetSnapshotForReprocess is an alias of GetSnapshot used by the
// reprocessing path, named separately to match its distinct call site in
// the Coordinator.
func (db *DB) GetSnapshotForReprocess(ctx context.Context, id int64) (model.Snapshot, error) {
	return db.GetSnapshot(ctx, id)
}

// MostRecentSnapshot returns the most recently captured snapshot for a
// project, excluding the given session id (the in-flight capture), for
// session-aware summarization. Returns model.ErrNotFound if none exists.
func (db *DB) MostRecentSnapshot(ctx context.Context, projectPath string, excludeSessionID *string) (model.Snapshot, error) {
	row := db.pool.QueryRow(ctx, snapshotSelectColumns+`
		FROM snapshots
		WHERE project_path = $1 AND ($2::text IS NULL OR session_id IS DISTINCT FROM $2)
		ORDER BY timestamp DESC
		LIMIT 1
	`, projectPath, excludeSessionID)
	return scanSnapshot(row)
}

// RecentSnapshots returns the most recent snapshots for project, bounded by
// limit.
func (db *DB) RecentSnapshots(ctx context.Context, projectPath string, limit int) ([]model.Snapshot, error) {
	var rows pgx.Rows
	var err error
	if projectPath != "" {
		rows, err = db.pool.Query(ctx, snapshotSelectColumns+`
			FROM snapshots WHERE project_path = $1 ORDER BY timestamp DESC LIMIT $2
		`, projectPath, limit)
	} else {
		rows, err = db.pool.Query(ctx, snapshotSelectColumns+`
			FROM snapshots ORDER BY timestamp DESC LIMIT $1
		`, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSnapshots(rows)
}

// SnapshotsMissingSessionID returns snapshots captured before session ids
// were wired through, for the offline backfill utility.
func (db *DB) SnapshotsMissingSessionID(ctx context.Context, limit int) ([]model.Snapshot, error) {
	rows, err := db.pool.Query(ctx, snapshotSelectColumns+`
		FROM snapshots WHERE session_id IS NULL ORDER BY id LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSnapshots(rows)
}

const snapshotSelectColumns = `
	SELECT id, project_path, session_id, transcript_path, timestamp, trigger_event,
	       message_count, raw_context, summary, embedding, tags, mentioned_files,
	       key_decisions, bugs_fixed, git_hash, git_branch, storage_bytes
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row rowScanner) (model.Snapshot, error) {
	var s model.Snapshot
	var rawContext []byte
	var vec *pgvector.Vector

	err := row.Scan(
		&s.ID, &s.ProjectPath, &s.SessionID, &s.TranscriptPath, &s.Timestamp, &s.Trigger,
		&s.MessageCount, &rawContext, &s.Summary, &vec, &s.Tags, &s.MentionedFiles,
		&s.KeyDecisions, &s.BugsFixed, &s.GitHash, &s.GitBranch, &s.StorageBytes,
	)
	if err == pgx.ErrNoRows {
		return model.Snapshot{}, model.ErrNotFound
	}
	if err != nil {
		return model.Snapshot{}, err
	}

	if len(rawContext) > 0 {
		_ = json.Unmarshal(rawContext, &s.RawContext)
	}
	if vec != nil {
		s.Embedding = vec.Slice()
	}

	return s, nil
}

func scanSnapshots(rows pgx.Rows) ([]model.Snapshot, error) {
	var out []model.Snapshot
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
