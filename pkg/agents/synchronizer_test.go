package agents_test

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orchardhq/orchard/pkg/agents"
	"github.com/orchardhq/orchard/pkg/models"
	"github.com/orchardhq/orchard/pkg/persistence/file"
)

func testAgent() *models.Agent {
	return &models.Agent{
		ID:          "agent-1",
		WorkspaceID: "ws-1",
		ProjectID:   "proj-1",
		Name:        "support bot",
	}
}

func declaredTrigger(triggerID string) *models.AgentTrigger {
	return &models.AgentTrigger{
		TriggerID: triggerID,
		Node: &models.Node{
			ID:        "trigger-" + triggerID,
			AppID:     models.AppCore,
			Type:      models.NodeTypeTrigger,
			TriggerID: "webhook",
			Value:     map[string]any{"path": "/agent/" + triggerID},
		},
	}
}

// redeclare echoes a stored row back into a declaration, the way a client
// round-trips existing triggers through the sync call.
func redeclare(stored *models.AgentTrigger) *models.AgentTrigger {
	return &models.AgentTrigger{
		ID:        stored.ID,
		TriggerID: stored.TriggerID,
		Node:      stored.Node,
	}
}

func TestSyncCreatesCarrierWorkflows(t *testing.T) {
	p := file.NewPersistence(t.TempDir())
	sync := agents.NewSynchronizer(p, slog.Default())
	agent := testAgent()

	err := sync.Sync(t.Context(), agent, []*models.AgentTrigger{
		declaredTrigger("on-ticket"),
		declaredTrigger("on-refund"),
	})
	require.NoError(t, err)

	stored, err := p.AgentTriggerRepository().ListByAgent(t.Context(), agent.ID)
	require.NoError(t, err)
	require.Len(t, stored, 2)

	for _, trigger := range stored {
		require.NotEmpty(t, trigger.WorkflowID)

		workflow, err := p.WorkflowRepository().GetByID(t.Context(), trigger.WorkflowID)
		require.NoError(t, err)

		assert.Equal(t, models.StrategyLinked, workflow.Strategy)
		assert.True(t, workflow.IsInternal)
		assert.True(t, workflow.IsActive)
		assert.Equal(t, "ws-1", workflow.WorkspaceID)
		require.Len(t, workflow.Nodes, 2)
		require.Len(t, workflow.Edges, 1)

		triggerNode := workflow.TriggerNode()
		require.NotNil(t, triggerNode)

		action := workflow.NodeByID(workflow.Edges[0].Target)
		require.NotNil(t, action)
		assert.Equal(t, models.ActionIDMessageAgent, action.ActionID)
		assert.Equal(t, "agent-1", action.Value["agent_id"])
		assert.Equal(t, "={{ref:"+triggerNode.ID+"}}", action.Value["message"])
	}
}

func TestSyncConvergesToDeclaredSet(t *testing.T) {
	p := file.NewPersistence(t.TempDir())
	sync := agents.NewSynchronizer(p, slog.Default())
	agent := testAgent()

	require.NoError(t, sync.Sync(t.Context(), agent, []*models.AgentTrigger{
		declaredTrigger("a"),
		declaredTrigger("b"),
	}))

	before, err := p.AgentTriggerRepository().ListByAgent(t.Context(), agent.ID)
	require.NoError(t, err)
	require.Len(t, before, 2)

	var removedWorkflowID, keptID string

	var kept *models.AgentTrigger

	for _, trigger := range before {
		switch trigger.TriggerID {
		case "a":
			removedWorkflowID = trigger.WorkflowID
		case "b":
			keptID = trigger.ID
			kept = trigger
		}
	}

	require.NotNil(t, kept)

	// Declare [b, c]: a is removed, b updated in place, c created.
	require.NoError(t, sync.Sync(t.Context(), agent, []*models.AgentTrigger{
		redeclare(kept),
		declaredTrigger("c"),
	}))

	after, err := p.AgentTriggerRepository().ListByAgent(t.Context(), agent.ID)
	require.NoError(t, err)
	require.Len(t, after, 2)

	afterByTrigger := make(map[string]*models.AgentTrigger, len(after))
	for _, trigger := range after {
		afterByTrigger[trigger.TriggerID] = trigger
	}

	assert.NotContains(t, afterByTrigger, "a")
	require.Contains(t, afterByTrigger, "b")
	require.Contains(t, afterByTrigger, "c")

	// b kept its identity and carrier workflow across the update.
	assert.Equal(t, keptID, afterByTrigger["b"].ID)

	// a's carrier workflow is soft-deleted.
	removed, err := p.WorkflowRepository().GetByID(t.Context(), removedWorkflowID)
	if err == nil {
		assert.NotNil(t, removed.DeletedAt)
	}
}

func TestSyncEmptyDeclarationRemovesAll(t *testing.T) {
	p := file.NewPersistence(t.TempDir())
	sync := agents.NewSynchronizer(p, slog.Default())
	agent := testAgent()

	require.NoError(t, sync.Sync(t.Context(), agent, []*models.AgentTrigger{declaredTrigger("a")}))
	require.NoError(t, sync.Sync(t.Context(), agent, nil))

	stored, err := p.AgentTriggerRepository().ListByAgent(t.Context(), agent.ID)
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestSyncPreservesCarrierWorkflowID(t *testing.T) {
	p := file.NewPersistence(t.TempDir())
	sync := agents.NewSynchronizer(p, slog.Default())
	agent := testAgent()

	require.NoError(t, sync.Sync(t.Context(), agent, []*models.AgentTrigger{declaredTrigger("a")}))

	first, err := p.AgentTriggerRepository().ListByAgent(t.Context(), agent.ID)
	require.NoError(t, err)
	require.Len(t, first, 1)

	require.NoError(t, sync.Sync(t.Context(), agent, []*models.AgentTrigger{redeclare(first[0])}))

	second, err := p.AgentTriggerRepository().ListByAgent(t.Context(), agent.ID)
	require.NoError(t, err)
	require.Len(t, second, 1)

	assert.Equal(t, first[0].ID, second[0].ID)
	assert.Equal(t, first[0].WorkflowID, second[0].WorkflowID)
}

func declaredScheduleTrigger(name, cron string) *models.AgentTrigger {
	return &models.AgentTrigger{
		TriggerID: "schedule",
		Node: &models.Node{
			ID:        "trigger-" + name,
			AppID:     models.AppCore,
			Type:      models.NodeTypeTrigger,
			TriggerID: "schedule",
			Value:     map[string]any{"cron": cron},
		},
	}
}

func TestSyncKeepsSameKindSiblingsDistinct(t *testing.T) {
	p := file.NewPersistence(t.TempDir())
	sync := agents.NewSynchronizer(p, slog.Default())
	agent := testAgent()

	// Two triggers of the same kind are separate rows with separate
	// carrier workflows.
	require.NoError(t, sync.Sync(t.Context(), agent, []*models.AgentTrigger{
		declaredScheduleTrigger("morning", "0 8 * * *"),
		declaredScheduleTrigger("evening", "0 20 * * *"),
	}))

	stored, err := p.AgentTriggerRepository().ListByAgent(t.Context(), agent.ID)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.NotEqual(t, stored[0].ID, stored[1].ID)
	assert.NotEqual(t, stored[0].WorkflowID, stored[1].WorkflowID)

	var morning, evening *models.AgentTrigger

	for _, trigger := range stored {
		switch trigger.Node.ID {
		case "trigger-morning":
			morning = trigger
		case "trigger-evening":
			evening = trigger
		}
	}

	require.NotNil(t, morning)
	require.NotNil(t, evening)

	// Keeping only the morning trigger removes the evening sibling and
	// its carrier workflow.
	require.NoError(t, sync.Sync(t.Context(), agent, []*models.AgentTrigger{redeclare(morning)}))

	after, err := p.AgentTriggerRepository().ListByAgent(t.Context(), agent.ID)
	require.NoError(t, err)
	require.Len(t, after, 1)
	assert.Equal(t, morning.ID, after[0].ID)

	removed, err := p.WorkflowRepository().GetByID(t.Context(), evening.WorkflowID)
	if err == nil {
		assert.NotNil(t, removed.DeletedAt)
	}
}
