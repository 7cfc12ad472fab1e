package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/orchardhq/orchard/pkg/models"
	"github.com/orchardhq/orchard/pkg/persistence"
)

// ExecutionRepository handles execution-related database operations.
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

const executionColumns = `
	id
  , workflow_id
  , workspace_id
  , execution_number
  , status
  , status_message
  , nodes
  , edges
  , frontier
  , input_data
  , output
  , continue_execution_at
  , started_at
  , stopped_at
`

// Create persists a new execution. The workflow row is locked for the
// duration of the transaction so execution_number assignment is gap-free
// under concurrent creates.
func (r *ExecutionRepository) Create(ctx context.Context, execution *models.Execution) error {
	if execution.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return persistence.NewStoreError("Create", "execution", "", err)
		}

		execution.ID = id.String()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return persistence.NewStoreError("Create", "execution", execution.ID, err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	// Serializes concurrent creates for the same workflow.
	_, err = tx.ExecContext(ctx, "SELECT id FROM workflows WHERE id = $1 FOR UPDATE", execution.WorkflowID)
	if err != nil {
		return persistence.NewStoreError("Create", "execution", execution.ID, err)
	}

	var last int64

	err = tx.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(execution_number), 0) FROM executions WHERE workflow_id = $1",
		execution.WorkflowID,
	).Scan(&last)
	if err != nil {
		return persistence.NewStoreError("Create", "execution", execution.ID, err)
	}

	execution.ExecutionNumber = last + 1

	nodesJSON, edgesJSON, frontierJSON, err := marshalSubgraph(execution)
	if err != nil {
		return persistence.NewStoreError("Create", "execution", execution.ID, err)
	}

	inputJSON, err := json.Marshal(execution.InputData)
	if err != nil {
		return persistence.NewStoreError("Create", "execution", execution.ID, err)
	}

	outputJSON, err := json.Marshal(execution.Output)
	if err != nil {
		return persistence.NewStoreError("Create", "execution", execution.ID, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO executions (
			id, workflow_id, workspace_id, execution_number, status, status_message,
			nodes, edges, frontier, input_data, output, continue_execution_at,
			started_at, stopped_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`,
		execution.ID, execution.WorkflowID, execution.WorkspaceID,
		execution.ExecutionNumber, string(execution.Status), execution.StatusMessage,
		nodesJSON, edgesJSON, frontierJSON, inputJSON, outputJSON,
		execution.ContinueExecutionAt, execution.StartedAt, execution.StoppedAt,
	)
	if err != nil {
		return persistence.NewStoreError("Create", "execution", execution.ID, err)
	}

	err = tx.Commit()
	if err != nil {
		return persistence.NewStoreError("Create", "execution", execution.ID, err)
	}

	return nil
}

func (r *ExecutionRepository) GetByID(ctx context.Context, id string) (*models.Execution, error) {
	query := `SELECT ` + executionColumns + ` FROM executions WHERE id = $1`

	execution, err := scanExecution(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewStoreError("GetByID", "execution", id, persistence.ErrExecutionNotFound)
		}

		return nil, persistence.NewStoreError("GetByID", "execution", id, err)
	}

	return execution, nil
}

func (r *ExecutionRepository) ListByWorkspace(ctx context.Context, workspaceID string, limit, offset int) ([]*models.Execution, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `SELECT ` + executionColumns + `
		FROM executions
		WHERE workspace_id = $1
		ORDER BY started_at DESC
		LIMIT $2 OFFSET $3
	`

	return r.queryExecutions(ctx, query, workspaceID, limit, offset)
}

func (r *ExecutionRepository) ListDueWaiting(ctx context.Context, before time.Time) ([]*models.Execution, error) {
	query := `SELECT ` + executionColumns + `
		FROM executions
		WHERE status = 'WAITING' AND continue_execution_at <= $1
		ORDER BY continue_execution_at
	`

	return r.queryExecutions(ctx, query, before)
}

func (r *ExecutionRepository) Update(ctx context.Context, id string, update *models.ExecutionUpdate) error {
	sets := make([]string, 0, 8)
	args := make([]any, 0, 9)

	addSet := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if update.Status != nil {
		addSet("status", string(*update.Status))
	}

	if update.StatusMessage != nil {
		addSet("status_message", *update.StatusMessage)
	}

	if update.Nodes != nil {
		nodesJSON, err := json.Marshal(update.Nodes)
		if err != nil {
			return persistence.NewStoreError("Update", "execution", id, err)
		}

		addSet("nodes", nodesJSON)
	}

	if update.Edges != nil {
		edgesJSON, err := json.Marshal(update.Edges)
		if err != nil {
			return persistence.NewStoreError("Update", "execution", id, err)
		}

		addSet("edges", edgesJSON)
	}

	if update.Frontier != nil {
		frontierJSON, err := json.Marshal(update.Frontier)
		if err != nil {
			return persistence.NewStoreError("Update", "execution", id, err)
		}

		addSet("frontier", frontierJSON)
	}

	if update.Output != nil {
		outputJSON, err := json.Marshal(update.Output)
		if err != nil {
			return persistence.NewStoreError("Update", "execution", id, err)
		}

		addSet("output", outputJSON)
	}

	if update.ContinueExecutionAt != nil {
		addSet("continue_execution_at", *update.ContinueExecutionAt)
	}

	if update.ClearContinueAt {
		addSet("continue_execution_at", nil)
	}

	if update.StoppedAt != nil {
		addSet("stopped_at", *update.StoppedAt)
	}

	if len(sets) == 0 {
		return nil
	}

	args = append(args, id)
	query := fmt.Sprintf("UPDATE executions SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args))

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return persistence.NewStoreError("Update", "execution", id, err)
	}

	affected, err := result.RowsAffected()
	if err == nil && affected == 0 {
		return persistence.NewStoreError("Update", "execution", id, persistence.ErrExecutionNotFound)
	}

	return nil
}

func (r *ExecutionRepository) queryExecutions(ctx context.Context, query string, args ...any) ([]*models.Execution, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	executions := make([]*models.Execution, 0)

	for rows.Next() {
		execution, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}

		executions = append(executions, execution)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating executions: %w", err)
	}

	return executions, nil
}

func marshalSubgraph(execution *models.Execution) (nodes, edges, frontier []byte, err error) {
	nodes, err = json.Marshal(execution.Nodes)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal nodes: %w", err)
	}

	edges, err = json.Marshal(execution.Edges)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal edges: %w", err)
	}

	frontier, err = json.Marshal(execution.Frontier)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal frontier: %w", err)
	}

	return nodes, edges, frontier, nil
}

func scanExecution(row rowScanner) (*models.Execution, error) {
	var (
		execution    models.Execution
		status       string
		nodesJSON    []byte
		edgesJSON    []byte
		frontierJSON []byte
		inputJSON    []byte
		outputJSON   []byte
	)

	err := row.Scan(
		&execution.ID, &execution.WorkflowID, &execution.WorkspaceID,
		&execution.ExecutionNumber, &status, &execution.StatusMessage,
		&nodesJSON, &edgesJSON, &frontierJSON, &inputJSON, &outputJSON,
		&execution.ContinueExecutionAt, &execution.StartedAt, &execution.StoppedAt,
	)
	if err != nil {
		return nil, err
	}

	execution.Status = models.ExecutionStatus(status)

	err = json.Unmarshal(nodesJSON, &execution.Nodes)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal nodes: %w", err)
	}

	err = json.Unmarshal(edgesJSON, &execution.Edges)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal edges: %w", err)
	}

	err = json.Unmarshal(frontierJSON, &execution.Frontier)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal frontier: %w", err)
	}

	if len(inputJSON) > 0 && string(inputJSON) != "null" {
		err = json.Unmarshal(inputJSON, &execution.InputData)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal input_data: %w", err)
		}
	}

	if len(outputJSON) > 0 && string(outputJSON) != "null" {
		err = json.Unmarshal(outputJSON, &execution.Output)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal output: %w", err)
		}
	}

	return &execution, nil
}
