package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/orchardhq/orchard/pkg/models"
	"github.com/orchardhq/orchard/pkg/persistence"
)

// QueueRepository handles workspace execution queue database operations.
type QueueRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// Append upserts the workspace queue row and appends an item in one
// transaction. The position counter lives on the queue row and is bumped
// under the row lock taken by the UPDATE, so concurrent appends never
// read-then-write a stale position.
func (r *QueueRepository) Append(ctx context.Context, workspaceID, executionID string) (*models.WorkspaceExecutionQueueItem, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, persistence.NewStoreError("Append", "queue", workspaceID, err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, persistence.NewStoreError("Append", "queue", workspaceID, err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO workspace_execution_queues (workspace_id)
		VALUES ($1)
		ON CONFLICT (workspace_id) DO NOTHING
	`, workspaceID)
	if err != nil {
		return nil, persistence.NewStoreError("Append", "queue", workspaceID, err)
	}

	var position int64

	err = tx.QueryRowContext(ctx, `
		UPDATE workspace_execution_queues
		SET next_position = next_position + 1
		WHERE workspace_id = $1
		RETURNING next_position
	`, workspaceID).Scan(&position)
	if err != nil {
		return nil, persistence.NewStoreError("Append", "queue", workspaceID, err)
	}

	item := &models.WorkspaceExecutionQueueItem{
		ID:          id.String(),
		WorkspaceID: workspaceID,
		ExecutionID: executionID,
		Position:    position,
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO workspace_execution_queue_items (id, workspace_id, execution_id, position)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`, item.ID, workspaceID, executionID, position).Scan(&item.CreatedAt)
	if err != nil {
		return nil, persistence.NewStoreError("Append", "queue", workspaceID, err)
	}

	err = tx.Commit()
	if err != nil {
		return nil, persistence.NewStoreError("Append", "queue", workspaceID, err)
	}

	return item, nil
}

func (r *QueueRepository) PeekOldest(ctx context.Context, workspaceID string) (*models.WorkspaceExecutionQueueItem, error) {
	var item models.WorkspaceExecutionQueueItem

	err := r.db.QueryRowContext(ctx, `
		SELECT id, workspace_id, execution_id, position, created_at
		FROM workspace_execution_queue_items
		WHERE workspace_id = $1
		ORDER BY position
		LIMIT 1
	`, workspaceID).Scan(&item.ID, &item.WorkspaceID, &item.ExecutionID, &item.Position, &item.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, persistence.NewStoreError("PeekOldest", "queue", workspaceID, err)
	}

	return &item, nil
}

func (r *QueueRepository) DeleteItem(ctx context.Context, itemID string) error {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM workspace_execution_queue_items WHERE id = $1", itemID)
	if err != nil {
		return persistence.NewStoreError("DeleteItem", "queue", itemID, err)
	}

	affected, err := result.RowsAffected()
	if err == nil && affected == 0 {
		return persistence.NewStoreError("DeleteItem", "queue", itemID, persistence.ErrQueueItemNotFound)
	}

	return nil
}

func (r *QueueRepository) NonEmptyWorkspaces(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT DISTINCT workspace_id FROM workspace_execution_queue_items")
	if err != nil {
		return nil, persistence.NewStoreError("NonEmptyWorkspaces", "queue", "", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	workspaces := make([]string, 0)

	for rows.Next() {
		var workspaceID string

		err = rows.Scan(&workspaceID)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workspace id: %w", err)
		}

		workspaces = append(workspaces, workspaceID)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating workspaces: %w", err)
	}

	return workspaces, nil
}
