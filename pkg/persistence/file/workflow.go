package file

import (
	"context"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/orchardhq/orchard/pkg/models"
	"github.com/orchardhq/orchard/pkg/persistence"
)

const workflowsDir = "workflows"

// WorkflowRepository handles workflow-related file operations.
type WorkflowRepository struct {
	p *Persistence
}

func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	var workflow models.Workflow

	err := r.p.read(workflowsDir, id, &workflow)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewStoreError("GetByID", "workflow", id, persistence.ErrWorkflowNotFound)
		}

		return nil, persistence.NewStoreError("GetByID", "workflow", id, err)
	}

	if workflow.DeletedAt != nil {
		return nil, persistence.NewStoreError("GetByID", "workflow", id, persistence.ErrWorkflowNotFound)
	}

	return &workflow, nil
}

func (r *WorkflowRepository) GetAll(ctx context.Context) ([]*models.Workflow, error) {
	ids, err := r.p.listIDs(workflowsDir)
	if err != nil {
		return nil, persistence.NewStoreError("GetAll", "workflow", "", err)
	}

	workflows := make([]*models.Workflow, 0, len(ids))

	for _, id := range ids {
		workflow, err := r.GetByID(ctx, id)
		if err != nil {
			if persistence.IsWorkflowNotFound(err) {
				continue
			}

			return nil, err
		}

		workflows = append(workflows, workflow)
	}

	return workflows, nil
}

func (r *WorkflowRepository) GetActiveByStrategy(ctx context.Context, strategy models.TriggerStrategy) ([]*models.Workflow, error) {
	all, err := r.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	matched := make([]*models.Workflow, 0)

	for _, workflow := range all {
		if workflow.IsActive && workflow.Strategy == strategy {
			matched = append(matched, workflow)
		}
	}

	return matched, nil
}

func (r *WorkflowRepository) Save(ctx context.Context, workflow *models.Workflow) error {
	now := time.Now().UTC()

	if workflow.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return persistence.NewStoreError("Save", "workflow", "", err)
		}

		workflow.ID = id.String()
	}

	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	err := r.p.write(workflowsDir, workflow.ID, workflow)
	if err != nil {
		return persistence.NewStoreError("Save", "workflow", workflow.ID, err)
	}

	return nil
}

func (r *WorkflowRepository) Delete(ctx context.Context, id string) error {
	err := r.p.remove(workflowsDir, id)
	if err != nil {
		return persistence.NewStoreError("Delete", "workflow", id, err)
	}

	return nil
}
