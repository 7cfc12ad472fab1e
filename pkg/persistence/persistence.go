// Package persistence provides the data storage abstraction for workflows,
// executions, workspace queues and agent triggers.
package persistence

import (
	"context"
	"time"

	"github.com/orchardhq/orchard/pkg/models"
)

type Persistence interface {
	WorkflowRepository() WorkflowRepository
	ExecutionRepository() ExecutionRepository
	QueueRepository() QueueRepository
	AgentTriggerRepository() AgentTriggerRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

type WorkflowRepository interface {
	GetByID(ctx context.Context, id string) (*models.Workflow, error)
	GetAll(ctx context.Context) ([]*models.Workflow, error)

	// GetActiveByStrategy returns active, non-deleted workflows with the
	// given strategy. Internal workflows are included: linked workflows
	// are activated through the same dispatch paths.
	GetActiveByStrategy(ctx context.Context, strategy models.TriggerStrategy) ([]*models.Workflow, error)

	Save(ctx context.Context, workflow *models.Workflow) error
	Delete(ctx context.Context, id string) error
}

type ExecutionRepository interface {
	// Create persists a new execution, assigning ExecutionNumber as the
	// workflow's current maximum plus one. The assignment is atomic:
	// concurrent creates for one workflow never observe the same number.
	Create(ctx context.Context, execution *models.Execution) error

	GetByID(ctx context.Context, id string) (*models.Execution, error)
	ListByWorkspace(ctx context.Context, workspaceID string, limit, offset int) ([]*models.Execution, error)

	// Update applies a partial mutation. Nil fields are untouched.
	Update(ctx context.Context, id string, update *models.ExecutionUpdate) error

	// ListDueWaiting returns WAITING executions whose continuation time is
	// at or before the given instant.
	ListDueWaiting(ctx context.Context, before time.Time) ([]*models.Execution, error)
}

type QueueRepository interface {
	// Append upserts the workspace's queue row and appends an item
	// referencing the execution, in one atomic operation.
	Append(ctx context.Context, workspaceID, executionID string) (*models.WorkspaceExecutionQueueItem, error)

	// PeekOldest returns the oldest unconsumed item for the workspace, or
	// nil when the queue is empty.
	PeekOldest(ctx context.Context, workspaceID string) (*models.WorkspaceExecutionQueueItem, error)

	DeleteItem(ctx context.Context, itemID string) error

	// NonEmptyWorkspaces lists workspaces that still hold queue items,
	// used by the reconciliation sweep.
	NonEmptyWorkspaces(ctx context.Context) ([]string, error)
}

type AgentTriggerRepository interface {
	GetByID(ctx context.Context, id string) (*models.AgentTrigger, error)
	ListByAgent(ctx context.Context, agentID string) ([]*models.AgentTrigger, error)
	Save(ctx context.Context, trigger *models.AgentTrigger) error
	Delete(ctx context.Context, id string) error
}
