package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/orchardhq/orchard/pkg/models"
	"github.com/orchardhq/orchard/pkg/persistence"
)

// AgentTriggerRepository handles agent trigger database operations.
type AgentTriggerRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func (r *AgentTriggerRepository) GetByID(ctx context.Context, id string) (*models.AgentTrigger, error) {
	query := `
		SELECT id, agent_id, trigger_id, node, workflow_id, created_at, updated_at
		FROM agent_triggers
		WHERE id = $1
	`

	trigger, err := scanAgentTrigger(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewStoreError("GetByID", "agent trigger", id, persistence.ErrAgentTriggerNotFound)
		}

		return nil, persistence.NewStoreError("GetByID", "agent trigger", id, err)
	}

	return trigger, nil
}

func (r *AgentTriggerRepository) ListByAgent(ctx context.Context, agentID string) ([]*models.AgentTrigger, error) {
	query := `
		SELECT id, agent_id, trigger_id, node, workflow_id, created_at, updated_at
		FROM agent_triggers
		WHERE agent_id = $1
		ORDER BY created_at
	`

	rows, err := r.db.QueryContext(ctx, query, agentID)
	if err != nil {
		return nil, persistence.NewStoreError("ListByAgent", "agent trigger", agentID, err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	triggers := make([]*models.AgentTrigger, 0)

	for rows.Next() {
		trigger, err := scanAgentTrigger(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan agent trigger: %w", err)
		}

		triggers = append(triggers, trigger)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating agent triggers: %w", err)
	}

	return triggers, nil
}

func (r *AgentTriggerRepository) Save(ctx context.Context, trigger *models.AgentTrigger) error {
	now := time.Now().UTC()

	if trigger.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return persistence.NewStoreError("Save", "agent trigger", "", err)
		}

		trigger.ID = id.String()
	}

	if trigger.CreatedAt.IsZero() {
		trigger.CreatedAt = now
	}

	trigger.UpdatedAt = now

	nodeJSON, err := json.Marshal(trigger.Node)
	if err != nil {
		return persistence.NewStoreError("Save", "agent trigger", trigger.ID, err)
	}

	var workflowID *string
	if trigger.WorkflowID != "" {
		workflowID = &trigger.WorkflowID
	}

	query := `
		INSERT INTO agent_triggers (id, agent_id, trigger_id, node, workflow_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			trigger_id = EXCLUDED.trigger_id,
			node = EXCLUDED.node,
			workflow_id = EXCLUDED.workflow_id,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		trigger.ID, trigger.AgentID, trigger.TriggerID, nodeJSON,
		workflowID, trigger.CreatedAt, trigger.UpdatedAt,
	)
	if err != nil {
		return persistence.NewStoreError("Save", "agent trigger", trigger.ID, err)
	}

	return nil
}

func (r *AgentTriggerRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM agent_triggers WHERE id = $1", id)
	if err != nil {
		return persistence.NewStoreError("Delete", "agent trigger", id, err)
	}

	return nil
}

func scanAgentTrigger(row rowScanner) (*models.AgentTrigger, error) {
	var (
		trigger    models.AgentTrigger
		nodeJSON   []byte
		workflowID sql.NullString
	)

	err := row.Scan(
		&trigger.ID, &trigger.AgentID, &trigger.TriggerID, &nodeJSON,
		&workflowID, &trigger.CreatedAt, &trigger.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	err = json.Unmarshal(nodeJSON, &trigger.Node)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal node: %w", err)
	}

	if workflowID.Valid {
		trigger.WorkflowID = workflowID.String
	}

	return &trigger, nil
}
