// Package agents keeps agent trigger declarations and their hidden
// carrier workflows in sync. Each agent trigger is backed by an internal
// two-node workflow: the declared trigger node wired to a message-agent
// action. The synchronizer converges the stored set of carrier workflows
// to the declared set, creating, updating and removing as needed.
package agents

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/orchardhq/orchard/pkg/models"
	"github.com/orchardhq/orchard/pkg/persistence"
)

type Synchronizer struct {
	persistence persistence.Persistence
	logger      *slog.Logger
}

func NewSynchronizer(p persistence.Persistence, logger *slog.Logger) *Synchronizer {
	return &Synchronizer{
		persistence: p,
		logger:      logger.With("module", "agents"),
	}
}

// Sync converges the agent's carrier workflows to the declared triggers.
// Declarations are diffed against the stored set by row id: a declaration
// without an id is new, a declaration whose id matches a stored row
// updates it in place, and stored rows absent from the declaration are
// removed together with their carrier workflows. Two declared triggers of
// the same kind are distinct rows. Creates, updates and removals are
// applied concurrently and independently, so one failing trigger does not
// block the rest. The first error is returned after all applications
// finish.
func (s *Synchronizer) Sync(ctx context.Context, agent *models.Agent, declared []*models.AgentTrigger) error {
	stored, err := s.persistence.AgentTriggerRepository().ListByAgent(ctx, agent.ID)
	if err != nil {
		return err
	}

	storedByID := make(map[string]*models.AgentTrigger, len(stored))
	for _, trigger := range stored {
		storedByID[trigger.ID] = trigger
	}

	declaredIDs := make(map[string]bool, len(declared))

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)

	record := func(err error) {
		if err == nil {
			return
		}

		mu.Lock()
		defer mu.Unlock()

		if firstErr == nil {
			firstErr = err
		}
	}

	for _, trigger := range declared {
		var existing *models.AgentTrigger

		if trigger.ID != "" {
			existing = storedByID[trigger.ID]
			declaredIDs[trigger.ID] = true
		}

		wg.Add(1)

		go func(trigger, existing *models.AgentTrigger) {
			defer wg.Done()
			record(s.apply(ctx, agent, trigger, existing))
		}(trigger, existing)
	}

	for _, trigger := range stored {
		if declaredIDs[trigger.ID] {
			continue
		}

		wg.Add(1)

		go func(trigger *models.AgentTrigger) {
			defer wg.Done()
			record(s.remove(ctx, trigger))
		}(trigger)
	}

	wg.Wait()

	return firstErr
}

// apply creates or updates one trigger and its carrier workflow.
func (s *Synchronizer) apply(ctx context.Context, agent *models.Agent, declared, existing *models.AgentTrigger) error {
	now := time.Now().UTC()

	trigger := &models.AgentTrigger{
		ID:        uuid.Must(uuid.NewV7()).String(),
		AgentID:   agent.ID,
		TriggerID: declared.TriggerID,
		Node:      declared.Node,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if existing != nil {
		trigger.ID = existing.ID
		trigger.WorkflowID = existing.WorkflowID
		trigger.CreatedAt = existing.CreatedAt
	}

	workflow, err := s.carrierWorkflow(ctx, agent, trigger)
	if err != nil {
		return err
	}

	err = s.persistence.WorkflowRepository().Save(ctx, workflow)
	if err != nil {
		return err
	}

	trigger.WorkflowID = workflow.ID

	err = s.persistence.AgentTriggerRepository().Save(ctx, trigger)
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "Agent trigger synchronized",
		"agent_id", agent.ID,
		"trigger_id", trigger.TriggerID,
		"workflow_id", workflow.ID)

	return nil
}

// remove deletes one trigger and soft-deletes its carrier workflow.
func (s *Synchronizer) remove(ctx context.Context, trigger *models.AgentTrigger) error {
	if trigger.WorkflowID != "" {
		err := s.persistence.WorkflowRepository().Delete(ctx, trigger.WorkflowID)
		if err != nil && !persistence.IsWorkflowNotFound(err) {
			return err
		}
	}

	err := s.persistence.AgentTriggerRepository().Delete(ctx, trigger.ID)
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "Agent trigger removed",
		"agent_id", trigger.AgentID,
		"trigger_id", trigger.TriggerID,
		"workflow_id", trigger.WorkflowID)

	return nil
}

// carrierWorkflow builds the hidden two-node workflow for a trigger: the
// declared trigger node feeding a message-agent action whose message is
// the trigger's whole output.
func (s *Synchronizer) carrierWorkflow(ctx context.Context, agent *models.Agent, trigger *models.AgentTrigger) (*models.Workflow, error) {
	now := time.Now().UTC()

	workflow := &models.Workflow{
		ID:          uuid.Must(uuid.NewV7()).String(),
		WorkspaceID: agent.WorkspaceID,
		ProjectID:   agent.ProjectID,
		Name:        "agent:" + agent.ID + ":" + trigger.TriggerID,
		Strategy:    models.StrategyLinked,
		IsActive:    true,
		IsInternal:  true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if trigger.WorkflowID != "" {
		existing, err := s.persistence.WorkflowRepository().GetByID(ctx, trigger.WorkflowID)
		if err != nil && !persistence.IsWorkflowNotFound(err) {
			return nil, err
		}

		if existing != nil {
			workflow.ID = existing.ID
			workflow.CreatedAt = existing.CreatedAt
		}
	}

	triggerNode := trigger.Node
	actionNode := &models.Node{
		ID:       "message-agent-" + trigger.TriggerID,
		AppID:    models.AppCore,
		Type:     models.NodeTypeAction,
		ActionID: models.ActionIDMessageAgent,
		Position: models.Position{X: triggerNode.Position.X + 300, Y: triggerNode.Position.Y},
		Value: map[string]any{
			"agent_id": agent.ID,
			"message":  "={{ref:" + triggerNode.ID + "}}",
		},
	}

	workflow.TriggerNodeID = triggerNode.ID
	workflow.Nodes = []*models.Node{triggerNode, actionNode}
	workflow.Edges = []*models.Edge{
		{
			ID:     triggerNode.ID + "-" + actionNode.ID,
			Source: triggerNode.ID,
			Target: actionNode.ID,
		},
	}

	err := workflow.Validate()
	if err != nil {
		return nil, err
	}

	return workflow, nil
}
