// Package executions implements the execution store: admission control for
// new runs and lifecycle queries over existing ones. Every run enters the
// system through Create, which gates on workflow state, trigger strategy
// compatibility and workspace credits before the execution is persisted.
package executions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/orchardhq/orchard/pkg/models"
	"github.com/orchardhq/orchard/pkg/persistence"
	"github.com/orchardhq/orchard/pkg/protocol"
)

var (
	// ErrWorkflowInactive rejects runs against deactivated or deleted
	// workflows.
	ErrWorkflowInactive = errors.New("workflow is not active")

	// ErrInvalidTriggerStrategy rejects runs whose origin is incompatible
	// with the workflow's trigger strategy.
	ErrInvalidTriggerStrategy = errors.New("trigger strategy does not accept this origin")

	// ErrExecutionSettled rejects stop requests against executions that
	// already reached a terminal state.
	ErrExecutionSettled = errors.New("execution already settled")
)

// Origin identifies which dispatch path requested the run.
type Origin string

const (
	OriginManual   Origin = "manual"
	OriginSchedule Origin = "schedule"
	OriginWebhook  Origin = "webhook"
	OriginPoll     Origin = "poll"
	OriginAgent    Origin = "agent"
)

// allowedOrigins maps each trigger strategy to the origins it accepts.
// Manual is accepted everywhere except linked workflows, so users can
// test-run any workflow they own from the editor.
var allowedOrigins = map[models.TriggerStrategy][]Origin{
	models.StrategyManual:   {OriginManual},
	models.StrategySchedule: {OriginSchedule, OriginManual},
	models.StrategyWebhook:  {OriginWebhook, OriginManual},
	models.StrategyPoll:     {OriginPoll, OriginManual},
	models.StrategyLinked:   {OriginAgent, OriginManual},
}

// CreateParams describes an admission request for a new execution.
type CreateParams struct {
	WorkflowID string
	Origin     Origin
	InputData  map[string]any
}

type Store struct {
	persistence persistence.Persistence
	ledger      protocol.CreditLedger
	logger      *slog.Logger
}

func NewStore(p persistence.Persistence, ledger protocol.CreditLedger, logger *slog.Logger) *Store {
	return &Store{
		persistence: p,
		ledger:      ledger,
		logger:      logger.With("module", "executions"),
	}
}

// Create admits a new run for the workflow. On success the execution is
// persisted as RUNNING with a gap-free per-workflow execution number and
// the frontier pointing at the trigger node. Queued origins seed the
// materialized subgraph with the trigger node; manual runs start empty
// and materialize it when it executes. The execution is not yet queued;
// that is the caller's next step.
func (s *Store) Create(ctx context.Context, params CreateParams) (*models.Execution, error) {
	workflow, err := s.persistence.WorkflowRepository().GetByID(ctx, params.WorkflowID)
	if err != nil {
		return nil, err
	}

	if !workflow.IsActive || workflow.DeletedAt != nil {
		return nil, fmt.Errorf("workflow %s: %w", workflow.ID, ErrWorkflowInactive)
	}

	if !originAllowed(workflow.Strategy, params.Origin) {
		return nil, fmt.Errorf("workflow %s (strategy %s, origin %s): %w",
			workflow.ID, workflow.Strategy, params.Origin, ErrInvalidTriggerStrategy)
	}

	err = s.ledger.CheckSufficientCredits(ctx, workflow.WorkspaceID, protocol.UsageWorkflowExecution)
	if err != nil {
		return nil, err
	}

	trigger := workflow.TriggerNode()
	if trigger == nil {
		return nil, models.ErrNoTriggerNode
	}

	execution := &models.Execution{
		ID:          uuid.Must(uuid.NewV7()).String(),
		WorkflowID:  workflow.ID,
		WorkspaceID: workflow.WorkspaceID,
		Status:      models.ExecutionStatusRunning,
		Frontier:    []string{trigger.ID},
		InputData:   params.InputData,
		StartedAt:   time.Now().UTC(),
	}

	if params.Origin != OriginManual {
		execution.Nodes = []*models.Node{trigger}
	}

	err = s.persistence.ExecutionRepository().Create(ctx, execution)
	if err != nil {
		return nil, err
	}

	err = s.ledger.RecordUsage(ctx, workflow.WorkspaceID, 1, execution.ID)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to record execution usage",
			"execution_id", execution.ID, "error", err)
	}

	s.logger.InfoContext(ctx, "Execution created",
		"execution_id", execution.ID,
		"workflow_id", workflow.ID,
		"workspace_id", workflow.WorkspaceID,
		"execution_number", execution.ExecutionNumber,
		"origin", params.Origin)

	return execution, nil
}

func (s *Store) FindOne(ctx context.Context, id string) (*models.Execution, error) {
	return s.persistence.ExecutionRepository().GetByID(ctx, id)
}

func (s *Store) FindAllForWorkspace(ctx context.Context, workspaceID string, limit, offset int) ([]*models.Execution, error) {
	return s.persistence.ExecutionRepository().ListByWorkspace(ctx, workspaceID, limit, offset)
}

func (s *Store) Update(ctx context.Context, id string, update *models.ExecutionUpdate) error {
	return s.persistence.ExecutionRepository().Update(ctx, id, update)
}

// Stop marks a non-terminal execution STOPPED. The node runner observes the
// status between nodes and abandons traversal.
func (s *Store) Stop(ctx context.Context, id string) error {
	execution, err := s.persistence.ExecutionRepository().GetByID(ctx, id)
	if err != nil {
		return err
	}

	if execution.Status.IsTerminal() {
		return fmt.Errorf("execution %s (status %s): %w", id, execution.Status, ErrExecutionSettled)
	}

	status := models.ExecutionStatusStopped
	message := "stopped by operator"
	now := time.Now().UTC()

	err = s.persistence.ExecutionRepository().Update(ctx, id, &models.ExecutionUpdate{
		Status:        &status,
		StatusMessage: &message,
		StoppedAt:     &now,
	})
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "Execution stopped", "execution_id", id)

	return nil
}

func originAllowed(strategy models.TriggerStrategy, origin Origin) bool {
	for _, allowed := range allowedOrigins[strategy] {
		if allowed == origin {
			return true
		}
	}

	return false
}

// IsWorkflowInactive reports whether err is an inactive-workflow rejection.
func IsWorkflowInactive(err error) bool {
	return errors.Is(err, ErrWorkflowInactive)
}

// IsInvalidTriggerStrategy reports whether err is a strategy rejection.
func IsInvalidTriggerStrategy(err error) bool {
	return errors.Is(err, ErrInvalidTriggerStrategy)
}
