package dispatch

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orchardhq/orchard/pkg/models"
	"github.com/orchardhq/orchard/pkg/persistence/file"
	"github.com/orchardhq/orchard/pkg/pollstore"
	"github.com/orchardhq/orchard/pkg/protocol"
	"github.com/orchardhq/orchard/pkg/registry"
)

// listTrigger returns a configurable batch of items per poll cycle.
type listTrigger struct {
	items []map[string]any
}

func (h *listTrigger) Run(_ context.Context, _ map[string]any, inputData map[string]any, _ protocol.ExecutionContext) (*protocol.TriggerResult, error) {
	if inputData != nil {
		return &protocol.TriggerResult{ConditionsMet: true, Outputs: []map[string]any{inputData}}, nil
	}

	if len(h.items) == 0 {
		return &protocol.TriggerResult{ConditionsMet: false}, nil
	}

	return &protocol.TriggerResult{ConditionsMet: true, Outputs: h.items}, nil
}

func savePollWorkflow(t *testing.T, p *file.Persistence) *models.Workflow {
	t.Helper()

	workflow := &models.Workflow{
		ID:            "wf-poll",
		WorkspaceID:   "ws-1",
		ProjectID:     "proj-1",
		Name:          "feed watcher",
		Strategy:      models.StrategyPoll,
		TriggerNodeID: "t",
		IsActive:      true,
		Nodes: []*models.Node{
			{ID: "t", AppID: "test", Type: models.NodeTypeTrigger, TriggerID: "list", Value: map[string]any{"url": "http://feed"}},
			{ID: "a", AppID: models.AppCore, Type: models.NodeTypeAction, ActionID: "log"},
		},
		Edges:     []*models.Edge{{ID: "e1", Source: "t", Target: "a"}},
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}

	require.NoError(t, p.WorkflowRepository().Save(t.Context(), workflow))

	return workflow
}

func newTestPoller(t *testing.T, trigger *listTrigger) (*Poller, *file.Persistence) {
	t.Helper()

	d, p, _ := newTestDispatcher(t)

	reg := registry.NewRegistry(slog.Default())
	require.NoError(t, reg.RegisterTrigger(registry.TriggerDescriptor{
		AppID:     "test",
		TriggerID: "list",
		Handler:   trigger,
	}))
	reg.Freeze()

	poller := NewPoller(d, p, reg, pollstore.NewMemoryStorage(), nil, DefaultPollInterval, slog.Default())

	return poller, p
}

func queuedExecutionIDs(t *testing.T, p *file.Persistence, workspaceID string) []string {
	t.Helper()

	var ids []string

	for {
		item, err := p.QueueRepository().PeekOldest(t.Context(), workspaceID)
		require.NoError(t, err)

		if item == nil {
			return ids
		}

		ids = append(ids, item.ExecutionID)
		require.NoError(t, p.QueueRepository().DeleteItem(t.Context(), item.ID))
	}
}

func TestPollOnceDispatchesFreshItems(t *testing.T) {
	trigger := &listTrigger{items: []map[string]any{
		{"id": "a", "title": "first"},
		{"id": "b", "title": "second"},
	}}
	poller, p := newTestPoller(t, trigger)
	savePollWorkflow(t, p)

	require.NoError(t, poller.PollOnce(t.Context()))

	queued := queuedExecutionIDs(t, p, "ws-1")
	require.Len(t, queued, 2)

	// Each execution carries its item as input data.
	seen := make(map[string]bool)

	for _, executionID := range queued {
		execution, err := p.ExecutionRepository().GetByID(t.Context(), executionID)
		require.NoError(t, err)

		id, _ := execution.InputData["id"].(string)
		seen[id] = true
	}

	assert.True(t, seen["a"])
	assert.True(t, seen["b"])
}

func TestPollOnceDedupsAcrossCycles(t *testing.T) {
	trigger := &listTrigger{items: []map[string]any{{"id": "a"}}}
	poller, p := newTestPoller(t, trigger)
	savePollWorkflow(t, p)

	require.NoError(t, poller.PollOnce(t.Context()))
	require.NoError(t, poller.PollOnce(t.Context()))

	// The second cycle saw nothing new.
	assert.Len(t, queuedExecutionIDs(t, p, "ws-1"), 1)

	// A new item in a later cycle is dispatched once.
	trigger.items = []map[string]any{{"id": "a"}, {"id": "b"}}
	require.NoError(t, poller.PollOnce(t.Context()))

	queued := queuedExecutionIDs(t, p, "ws-1")
	require.Len(t, queued, 1)

	execution, err := p.ExecutionRepository().GetByID(t.Context(), queued[0])
	require.NoError(t, err)
	assert.Equal(t, "b", execution.InputData["id"])
}

func TestPollOnceSkipsEmptyResult(t *testing.T) {
	poller, p := newTestPoller(t, &listTrigger{})
	savePollWorkflow(t, p)

	require.NoError(t, poller.PollOnce(t.Context()))
	assert.Empty(t, queuedExecutionIDs(t, p, "ws-1"))
}

func TestItemIDFallsBackToDigest(t *testing.T) {
	withID := map[string]any{"id": 42}
	assert.Equal(t, "42", itemID(withID))

	anonymous := map[string]any{"title": "no id here"}
	digest := itemID(anonymous)
	assert.Len(t, digest, 16)
	assert.Equal(t, digest, itemID(map[string]any{"title": "no id here"}))
}
