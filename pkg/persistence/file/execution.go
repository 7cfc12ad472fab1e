package file

import (
	"context"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/orchardhq/orchard/pkg/models"
	"github.com/orchardhq/orchard/pkg/persistence"
)

const executionsDir = "executions"

// ExecutionRepository handles execution-related file operations.
type ExecutionRepository struct {
	p *Persistence
}

// Create persists a new execution. The persistence mutex makes the
// max+1 execution number assignment atomic for this backend.
func (r *ExecutionRepository) Create(ctx context.Context, execution *models.Execution) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	if execution.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return persistence.NewStoreError("Create", "execution", "", err)
		}

		execution.ID = id.String()
	}

	last, err := r.lastExecutionNumber(ctx, execution.WorkflowID)
	if err != nil {
		return persistence.NewStoreError("Create", "execution", execution.ID, err)
	}

	execution.ExecutionNumber = last + 1

	err = r.p.write(executionsDir, execution.ID, execution)
	if err != nil {
		return persistence.NewStoreError("Create", "execution", execution.ID, err)
	}

	return nil
}

func (r *ExecutionRepository) lastExecutionNumber(ctx context.Context, workflowID string) (int64, error) {
	all, err := r.all(ctx)
	if err != nil {
		return 0, err
	}

	var last int64

	for _, execution := range all {
		if execution.WorkflowID == workflowID && execution.ExecutionNumber > last {
			last = execution.ExecutionNumber
		}
	}

	return last, nil
}

func (r *ExecutionRepository) GetByID(ctx context.Context, id string) (*models.Execution, error) {
	var execution models.Execution

	err := r.p.read(executionsDir, id, &execution)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewStoreError("GetByID", "execution", id, persistence.ErrExecutionNotFound)
		}

		return nil, persistence.NewStoreError("GetByID", "execution", id, err)
	}

	return &execution, nil
}

func (r *ExecutionRepository) ListByWorkspace(ctx context.Context, workspaceID string, limit, offset int) ([]*models.Execution, error) {
	all, err := r.all(ctx)
	if err != nil {
		return nil, persistence.NewStoreError("ListByWorkspace", "execution", "", err)
	}

	matched := make([]*models.Execution, 0)

	for _, execution := range all {
		if execution.WorkspaceID == workspaceID {
			matched = append(matched, execution)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].StartedAt.After(matched[j].StartedAt)
	})

	if limit <= 0 {
		limit = 20
	}

	if offset >= len(matched) {
		return []*models.Execution{}, nil
	}

	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}

	return matched[offset:end], nil
}

func (r *ExecutionRepository) Update(ctx context.Context, id string, update *models.ExecutionUpdate) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	execution, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}

	applyUpdate(execution, update)

	err = r.p.write(executionsDir, id, execution)
	if err != nil {
		return persistence.NewStoreError("Update", "execution", id, err)
	}

	return nil
}

func (r *ExecutionRepository) ListDueWaiting(ctx context.Context, before time.Time) ([]*models.Execution, error) {
	all, err := r.all(ctx)
	if err != nil {
		return nil, persistence.NewStoreError("ListDueWaiting", "execution", "", err)
	}

	due := make([]*models.Execution, 0)

	for _, execution := range all {
		if execution.Status != models.ExecutionStatusWaiting {
			continue
		}

		if execution.ContinueExecutionAt != nil && !execution.ContinueExecutionAt.After(before) {
			due = append(due, execution)
		}
	}

	return due, nil
}

func (r *ExecutionRepository) all(ctx context.Context) ([]*models.Execution, error) {
	ids, err := r.p.listIDs(executionsDir)
	if err != nil {
		return nil, err
	}

	executions := make([]*models.Execution, 0, len(ids))

	for _, id := range ids {
		execution, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}

		executions = append(executions, execution)
	}

	return executions, nil
}

func applyUpdate(execution *models.Execution, update *models.ExecutionUpdate) {
	if update.Status != nil {
		execution.Status = *update.Status
	}

	if update.StatusMessage != nil {
		execution.StatusMessage = *update.StatusMessage
	}

	if update.Nodes != nil {
		execution.Nodes = update.Nodes
	}

	if update.Edges != nil {
		execution.Edges = update.Edges
	}

	if update.Frontier != nil {
		execution.Frontier = update.Frontier
	}

	if update.Output != nil {
		execution.Output = update.Output
	}

	if update.ContinueExecutionAt != nil {
		execution.ContinueExecutionAt = update.ContinueExecutionAt
	}

	if update.ClearContinueAt {
		execution.ContinueExecutionAt = nil
	}

	if update.StoppedAt != nil {
		execution.StoppedAt = update.StoppedAt
	}
}
