package dispatch

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orchardhq/orchard/pkg/models"
	"github.com/orchardhq/orchard/pkg/persistence/file"
)

func saveScheduleWorkflow(t *testing.T, p *file.Persistence, id, spec string) *models.Workflow {
	t.Helper()

	workflow := &models.Workflow{
		ID:            id,
		WorkspaceID:   "ws-1",
		ProjectID:     "proj-1",
		Name:          "nightly " + id,
		Strategy:      models.StrategySchedule,
		TriggerNodeID: "t",
		IsActive:      true,
		Nodes: []*models.Node{
			{ID: "t", AppID: models.AppCore, Type: models.NodeTypeTrigger, TriggerID: "schedule", Value: map[string]any{"cron": spec}},
			{ID: "a", AppID: models.AppCore, Type: models.NodeTypeAction, ActionID: "log"},
		},
		Edges:     []*models.Edge{{ID: "e1", Source: "t", Target: "a"}},
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}

	require.NoError(t, p.WorkflowRepository().Save(t.Context(), workflow))

	return workflow
}

func (s *Scheduler) entrySpecs() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	specs := make(map[string]string, len(s.entries))
	for workflowID, entry := range s.entries {
		specs[workflowID] = entry.spec
	}

	return specs
}

func TestSchedulerRefreshRegistersActiveWorkflows(t *testing.T) {
	d, p, _ := newTestDispatcher(t)
	scheduler := NewScheduler(d, p, slog.Default())

	saveScheduleWorkflow(t, p, "wf-nightly", "0 2 * * *")
	saveScheduleWorkflow(t, p, "wf-hourly", "@hourly")

	require.NoError(t, scheduler.refresh(t.Context()))

	specs := scheduler.entrySpecs()
	assert.Equal(t, "0 2 * * *", specs["wf-nightly"])
	assert.Equal(t, "@hourly", specs["wf-hourly"])
}

func TestSchedulerRefreshRemovesDeactivated(t *testing.T) {
	d, p, _ := newTestDispatcher(t)
	scheduler := NewScheduler(d, p, slog.Default())

	workflow := saveScheduleWorkflow(t, p, "wf-nightly", "0 2 * * *")
	require.NoError(t, scheduler.refresh(t.Context()))
	require.Contains(t, scheduler.entrySpecs(), "wf-nightly")

	workflow.IsActive = false
	require.NoError(t, p.WorkflowRepository().Save(t.Context(), workflow))

	require.NoError(t, scheduler.refresh(t.Context()))
	assert.NotContains(t, scheduler.entrySpecs(), "wf-nightly")
}

func TestSchedulerRefreshReplacesEditedSpec(t *testing.T) {
	d, p, _ := newTestDispatcher(t)
	scheduler := NewScheduler(d, p, slog.Default())

	workflow := saveScheduleWorkflow(t, p, "wf-nightly", "0 2 * * *")
	require.NoError(t, scheduler.refresh(t.Context()))

	workflow.Nodes[0].Value["cron"] = "0 4 * * *"
	require.NoError(t, p.WorkflowRepository().Save(t.Context(), workflow))

	require.NoError(t, scheduler.refresh(t.Context()))
	assert.Equal(t, "0 4 * * *", scheduler.entrySpecs()["wf-nightly"])
}

func TestSchedulerRefreshSkipsInvalidSpec(t *testing.T) {
	d, p, _ := newTestDispatcher(t)
	scheduler := NewScheduler(d, p, slog.Default())

	saveScheduleWorkflow(t, p, "wf-bad", "not a cron spec")
	saveScheduleWorkflow(t, p, "wf-good", "@daily")

	require.NoError(t, scheduler.refresh(t.Context()))

	specs := scheduler.entrySpecs()
	assert.NotContains(t, specs, "wf-bad")
	assert.Contains(t, specs, "wf-good")
}
