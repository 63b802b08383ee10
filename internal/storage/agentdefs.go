package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/recall-run/recall/internal/model"
)

// UpsertAgentDefinition finds the existing definition for
// (agent_type, config_hash) or creates a new one with the next version for
// that agent_type. (agent_type, config_hash) is unique — identical
// blueprints collapse to one definition regardless of how many agent-work
// rows reference it.
func (db *DB) UpsertAgentDefinition(ctx context.Context, def model.AgentDefinition) (model.AgentDefinition, error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return model.AgentDefinition{}, err
	}
	defer tx.Rollback(ctx)

	existing, err := getAgentDefinitionByHash(ctx, tx, def.AgentType, def.ConfigHash)
	if err == nil {
		if cerr := tx.Commit(ctx); cerr != nil {
			return model.AgentDefinition{}, cerr
		}
		return existing, nil
	}
	if err != model.ErrNotFound {
		return model.AgentDefinition{}, err
	}

	var nextVersion int
	if err := tx.QueryRow(ctx, `
		SELECT COALESCE(MAX(version), 0) + 1 FROM agent_definitions WHERE agent_type = $1
	`, def.AgentType).Scan(&nextVersion); err != nil {
		return model.AgentDefinition{}, err
	}
	def.Version = nextVersion

	configJSON, err := json.Marshal(def.Configuration)
	if err != nil {
		return model.AgentDefinition{}, err
	}

	// Insert inside a savepoint: a 23505 here means another writer created
	// the same (agent_type, config_hash) between our lookup and our insert.
	// Rolling back to the savepoint un-poisons the outer transaction so the
	// read-back below can still run on it, instead of failing with 25P02.
	sp, err := tx.Begin(ctx)
	if err != nil {
		return model.AgentDefinition{}, err
	}
	err = sp.QueryRow(ctx, `
		INSERT INTO agent_definitions (
			agent_type, name, system_prompt, configuration, tools, model,
			version, parent_definition_id, description, created_at, created_by, config_hash
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9, now(), $10, $11)
		RETURNING id, created_at
	`,
		def.AgentType, def.Name, def.SystemPrompt, configJSON, def.Tools, def.Model,
		def.Version, def.ParentDefinitionID, def.Description, def.CreatedBy, def.ConfigHash,
	).Scan(&def.ID, &def.CreatedAt)
	if err != nil {
		_ = sp.Rollback(ctx)
		if isUniqueViolation(err) {
			existing, gerr := getAgentDefinitionByHash(ctx, tx, def.AgentType, def.ConfigHash)
			if gerr != nil {
				return model.AgentDefinition{}, gerr
			}
			if cerr := tx.Commit(ctx); cerr != nil {
				return model.AgentDefinition{}, cerr
			}
			return existing, nil
		}
		return model.AgentDefinition{}, err
	}
	if err := sp.Commit(ctx); err != nil {
		return model.AgentDefinition{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return model.AgentDefinition{}, err
	}
	return def, nil
}

func getAgentDefinitionByHash(ctx context.Context, tx pgx.Tx, agentType, configHash string) (model.AgentDefinition, error) {
	row := tx.QueryRow(ctx, agentDefSelectColumns+`
		FROM agent_definitions WHERE agent_type = $1 AND config_hash = $2
	`, agentType, configHash)
	return scanAgentDefinition(row)
}

// GetAgentDefinition returns the full record by id.
func (db *DB) GetAgentDefinition(ctx context.Context, id int64) (model.AgentDefinition, error) {
	row := db.pool.QueryRow(ctx, agentDefSelectColumns+`FROM agent_definitions WHERE id = $1`, id)
	return scanAgentDefinition(row)
}

const agentDefSelectColumns = `
	SELECT id, agent_type, name, system_prompt, configuration, tools, model,
	       version, parent_definition_id, description, created_at, created_by, config_hash
`

func scanAgentDefinition(row rowScanner) (model.AgentDefinition, error) {
	var d model.AgentDefinition
	var configJSON []byte

	err := row.Scan(
		&d.ID, &d.AgentType, &d.Name, &d.SystemPrompt, &configJSON, &d.Tools, &d.Model,
		&d.Version, &d.ParentDefinitionID, &d.Description, &d.CreatedAt, &d.CreatedBy, &d.ConfigHash,
	)
	if err == pgx.ErrNoRows {
		return model.AgentDefinition{}, model.ErrNotFound
	}
	if err != nil {
		return model.AgentDefinition{}, err
	}
	if len(configJSON) > 0 {
		_ = json.Unmarshal(configJSON, &d.Configuration)
	}
	return d, nil
}

// ErrVersionConflict describes a version that is not strictly increasing
// for its agent_type. No function in this package returns it: versions are
// assigned by UpsertAgentDefinition (MAX(version)+1) and kept unique by the
// (agent_type, version) index.
var ErrVersionConflict = fmt.Errorf("storage: agent definition version must be strictly increasing per agent_type")
