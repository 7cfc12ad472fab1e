// Package workflows provides the workflow management service: CRUD over
// workflow templates with full structural and handler validation at save
// time, so the execution path never re-checks graph shape.
package workflows

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/orchardhq/orchard/pkg/graph"
	"github.com/orchardhq/orchard/pkg/models"
	"github.com/orchardhq/orchard/pkg/persistence"
	"github.com/orchardhq/orchard/pkg/registry"
)

// ErrUnknownReference rejects a node configuration whose ={{ref:...}}
// token names a node that is not part of the workflow graph.
var ErrUnknownReference = errors.New("reference target is not a node in this workflow")

type Service struct {
	persistence persistence.Persistence
	registry    *registry.Registry
	logger      *slog.Logger
}

func NewService(p persistence.Persistence, reg *registry.Registry, logger *slog.Logger) *Service {
	return &Service{
		persistence: p,
		registry:    reg,
		logger:      logger.With("module", "workflows"),
	}
}

// Create validates and persists a new workflow. The trigger node id is
// derived from the graph, never trusted from the client.
func (s *Service) Create(ctx context.Context, workflow *models.Workflow) (*models.Workflow, error) {
	workflow.ID = uuid.Must(uuid.NewV7()).String()
	now := time.Now().UTC()
	workflow.CreatedAt = now
	workflow.UpdatedAt = now
	workflow.IsInternal = false
	workflow.DeletedAt = nil

	err := s.validate(workflow)
	if err != nil {
		return nil, err
	}

	err = s.persistence.WorkflowRepository().Save(ctx, workflow)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "Workflow created",
		"workflow_id", workflow.ID, "workspace_id", workflow.WorkspaceID)

	return workflow, nil
}

// Update validates and persists changes to an existing workflow. Internal
// workflows are managed by the agent synchronizer and rejected here.
func (s *Service) Update(ctx context.Context, id string, workflow *models.Workflow) (*models.Workflow, error) {
	existing, err := s.persistence.WorkflowRepository().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if existing.IsInternal {
		return nil, persistence.ErrWorkflowNotFound
	}

	workflow.ID = existing.ID
	workflow.WorkspaceID = existing.WorkspaceID
	workflow.ProjectID = existing.ProjectID
	workflow.IsInternal = false
	workflow.CreatedAt = existing.CreatedAt
	workflow.UpdatedAt = time.Now().UTC()
	workflow.DeletedAt = nil

	err = s.validate(workflow)
	if err != nil {
		return nil, err
	}

	err = s.persistence.WorkflowRepository().Save(ctx, workflow)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "Workflow updated", "workflow_id", workflow.ID)

	return workflow, nil
}

// FetchByID returns a user-visible workflow. Internal carrier workflows
// are hidden from the API surface.
func (s *Service) FetchByID(ctx context.Context, id string) (*models.Workflow, error) {
	workflow, err := s.persistence.WorkflowRepository().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if workflow.IsInternal {
		return nil, persistence.ErrWorkflowNotFound
	}

	return workflow, nil
}

// ListByWorkspace returns the workspace's visible workflows.
func (s *Service) ListByWorkspace(ctx context.Context, workspaceID string) ([]*models.Workflow, error) {
	all, err := s.persistence.WorkflowRepository().GetAll(ctx)
	if err != nil {
		return nil, err
	}

	var visible []*models.Workflow

	for _, workflow := range all {
		if workflow.WorkspaceID != workspaceID || workflow.IsInternal || workflow.DeletedAt != nil {
			continue
		}

		visible = append(visible, workflow)
	}

	return visible, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	workflow, err := s.persistence.WorkflowRepository().GetByID(ctx, id)
	if err != nil {
		return err
	}

	if workflow.IsInternal {
		return persistence.ErrWorkflowNotFound
	}

	err = s.persistence.WorkflowRepository().Delete(ctx, id)
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "Workflow deleted", "workflow_id", id)

	return nil
}

func (s *Service) HealthCheck(ctx context.Context) error {
	return s.persistence.HealthCheck(ctx)
}

// validate runs structural checks, pins the trigger node id, and verifies
// every node against its registered handler schema. Reference targets are
// checked here so the execution path never sees a dangling ={{ref:...}}.
func (s *Service) validate(workflow *models.Workflow) error {
	workflow.TriggerNodeID = ""

	for _, node := range workflow.Nodes {
		if node.IsTrigger() {
			workflow.TriggerNodeID = node.ID
		}
	}

	err := workflow.Validate()
	if err != nil {
		return err
	}

	for _, node := range workflow.Nodes {
		err = s.registry.ValidateNode(node)
		if err != nil {
			return err
		}
	}

	return s.validateReferences(workflow)
}

// validateReferences rejects ={{ref:...}} tokens naming nodes absent from
// the graph.
func (s *Service) validateReferences(workflow *models.Workflow) error {
	for _, node := range workflow.Nodes {
		for _, target := range graph.ReferencedNodes(node.Value) {
			if workflow.NodeByID(target) == nil {
				return fmt.Errorf("node %s references %s: %w", node.ID, target, ErrUnknownReference)
			}
		}
	}

	return nil
}

// IsValidationError reports whether err is a save-time rejection the
// client can fix, as opposed to an infrastructure failure.
func IsValidationError(err error) bool {
	if _, ok := registry.IsNodeValidationError(err); ok {
		return true
	}

	return errors.Is(err, models.ErrNoTriggerNode) ||
		errors.Is(err, models.ErrMultipleTriggerNodes) ||
		errors.Is(err, models.ErrUnreachableNode) ||
		errors.Is(err, models.ErrDanglingEdge) ||
		errors.Is(err, ErrUnknownReference)
}
