package runner_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orchardhq/orchard/pkg/credits"
	"github.com/orchardhq/orchard/pkg/eventbus"
	"github.com/orchardhq/orchard/pkg/events"
	"github.com/orchardhq/orchard/pkg/models"
	"github.com/orchardhq/orchard/pkg/persistence/file"
	"github.com/orchardhq/orchard/pkg/protocol"
	"github.com/orchardhq/orchard/pkg/registry"
	"github.com/orchardhq/orchard/pkg/runner"
	"github.com/orchardhq/orchard/pkg/variables"
)

type recordingBus struct {
	mu     sync.Mutex
	events []events.Event
}

func (b *recordingBus) Publish(_ context.Context, event events.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.events = append(b.events, event)

	return nil
}

func (b *recordingBus) Handle(_ events.EventType, _ eventbus.EventHandler) error { return nil }
func (b *recordingBus) Subscribe(_ context.Context) error                        { return nil }
func (b *recordingBus) GenerateID() string                                       { return "" }
func (b *recordingBus) Close() error                                             { return nil }

func (b *recordingBus) types() []events.EventType {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]events.EventType, 0, len(b.events))
	for _, event := range b.events {
		out = append(out, event.GetType())
	}

	return out
}

type passthroughTrigger struct{}

func (h *passthroughTrigger) Run(_ context.Context, _ map[string]any, inputData map[string]any, _ protocol.ExecutionContext) (*protocol.TriggerResult, error) {
	if inputData == nil {
		inputData = map[string]any{}
	}

	return &protocol.TriggerResult{ConditionsMet: true, Outputs: []map[string]any{inputData}}, nil
}

type filteredTrigger struct{}

func (h *filteredTrigger) Run(_ context.Context, _ map[string]any, _ map[string]any, _ protocol.ExecutionContext) (*protocol.TriggerResult, error) {
	return &protocol.TriggerResult{ConditionsMet: false}, nil
}

type echoAction struct{}

func (h *echoAction) Run(_ context.Context, config map[string]any, _ protocol.ExecutionContext) (*protocol.ActionResult, error) {
	return &protocol.ActionResult{Output: map[string]any{"text": config["text"]}}, nil
}

type failingAction struct{}

func (h *failingAction) Run(_ context.Context, _ map[string]any, _ protocol.ExecutionContext) (*protocol.ActionResult, error) {
	return nil, errors.New("rate limited")
}

type delayAction struct{}

func (h *delayAction) Run(_ context.Context, _ map[string]any, execCtx protocol.ExecutionContext) (*protocol.ActionResult, error) {
	if execCtx.Mock {
		return &protocol.ActionResult{Output: map[string]any{"delayed": false}}, nil
	}

	continueAt := time.Now().UTC().Add(time.Hour)

	return &protocol.ActionResult{Output: map[string]any{"delayed": true}, ContinueAt: &continueAt}, nil
}

type meteredAction struct{}

func (h *meteredAction) Run(_ context.Context, _ map[string]any, _ protocol.ExecutionContext) (*protocol.ActionResult, error) {
	return &protocol.ActionResult{Output: map[string]any{}, CreditsUsed: 2}, nil
}

// stoppingAction flips its own execution to STOPPED, simulating an operator
// stop landing mid-run.
type stoppingAction struct {
	p *file.Persistence
}

func (h *stoppingAction) Run(ctx context.Context, _ map[string]any, execCtx protocol.ExecutionContext) (*protocol.ActionResult, error) {
	status := models.ExecutionStatusStopped

	err := h.p.ExecutionRepository().Update(ctx, execCtx.ExecutionID, &models.ExecutionUpdate{Status: &status})
	if err != nil {
		return nil, err
	}

	return &protocol.ActionResult{Output: map[string]any{}}, nil
}

type fixture struct {
	runner    *runner.Runner
	p         *file.Persistence
	ledger    *credits.MemoryLedger
	bus       *recordingBus
	variables *variables.MemoryResolver
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	p := file.NewPersistence(t.TempDir())
	ledger := credits.NewMemoryLedger()
	bus := &recordingBus{}
	resolver := variables.NewMemoryResolver()

	reg := registry.NewRegistry(slog.Default())
	require.NoError(t, reg.RegisterTrigger(registry.TriggerDescriptor{AppID: "test", TriggerID: "pass", Handler: &passthroughTrigger{}}))
	require.NoError(t, reg.RegisterTrigger(registry.TriggerDescriptor{AppID: "test", TriggerID: "filtered", Handler: &filteredTrigger{}}))
	require.NoError(t, reg.RegisterAction(registry.ActionDescriptor{AppID: "test", ActionID: "echo", Handler: &echoAction{}}))
	require.NoError(t, reg.RegisterAction(registry.ActionDescriptor{AppID: "test", ActionID: "fail", Handler: &failingAction{}}))
	require.NoError(t, reg.RegisterAction(registry.ActionDescriptor{AppID: "test", ActionID: "delay", Handler: &delayAction{}}))
	require.NoError(t, reg.RegisterAction(registry.ActionDescriptor{AppID: "test", ActionID: "metered", Handler: &meteredAction{}}))
	require.NoError(t, reg.RegisterAction(registry.ActionDescriptor{AppID: "test", ActionID: "stop", Handler: &stoppingAction{p: p}}))
	reg.Freeze()

	return &fixture{
		runner:    runner.NewRunner(p, reg, ledger, resolver, bus, nil, slog.Default()),
		p:         p,
		ledger:    ledger,
		bus:       bus,
		variables: resolver,
	}
}

func (f *fixture) saveWorkflow(t *testing.T, nodes []*models.Node, edges []*models.Edge) *models.Workflow {
	t.Helper()

	workflow := &models.Workflow{
		ID:            "wf-1",
		WorkspaceID:   "ws-1",
		ProjectID:     "proj-1",
		Name:          "test",
		Strategy:      models.StrategyManual,
		TriggerNodeID: nodes[0].ID,
		IsActive:      true,
		Nodes:         nodes,
		Edges:         edges,
	}

	require.NoError(t, f.p.WorkflowRepository().Save(t.Context(), workflow))

	return workflow
}

func (f *fixture) seedExecution(t *testing.T, workflow *models.Workflow, inputData map[string]any) *models.Execution {
	t.Helper()

	trigger := workflow.TriggerNode()
	require.NotNil(t, trigger)

	execution := &models.Execution{
		ID:          "exec-1",
		WorkflowID:  workflow.ID,
		WorkspaceID: workflow.WorkspaceID,
		Status:      models.ExecutionStatusRunning,
		Nodes:       []*models.Node{trigger},
		Frontier:    []string{trigger.ID},
		InputData:   inputData,
		StartedAt:   time.Now().UTC(),
	}

	require.NoError(t, f.p.ExecutionRepository().Create(t.Context(), execution))

	return execution
}

func trigger(id, triggerID string) *models.Node {
	return &models.Node{ID: id, AppID: "test", Type: models.NodeTypeTrigger, TriggerID: triggerID}
}

func action(id, actionID string, value map[string]any) *models.Node {
	return &models.Node{ID: id, AppID: "test", Type: models.NodeTypeAction, ActionID: actionID, Value: value}
}

func TestRunLinearSuccess(t *testing.T) {
	f := newFixture(t)

	workflow := f.saveWorkflow(t,
		[]*models.Node{
			trigger("t", "pass"),
			action("a", "echo", map[string]any{"text": "first"}),
			action("b", "echo", map[string]any{"text": "got ={{ref:a}}"}),
		},
		[]*models.Edge{
			{ID: "e1", Source: "t", Target: "a"},
			{ID: "e2", Source: "a", Target: "b"},
		})
	execution := f.seedExecution(t, workflow, map[string]any{"event": "new-order"})

	require.NoError(t, f.runner.Run(t.Context(), execution.ID))

	final, err := f.p.ExecutionRepository().GetByID(t.Context(), execution.ID)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusSucceeded, final.Status)
	assert.Empty(t, final.Frontier)
	assert.NotNil(t, final.StoppedAt)
	assert.Len(t, final.Nodes, 3)

	triggerOut, ok := final.Output["t"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "new-order", triggerOut["event"])

	aOut, ok := final.Output["a"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "first", aOut["text"])

	// b's config embedded a reference to a's whole output.
	bOut, ok := final.Output["b"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, bOut["text"], "got ")

	assert.Equal(t, []events.EventType{events.ExecutionCompletedEventType}, f.bus.types())
}

func TestRunNodeFailure(t *testing.T) {
	f := newFixture(t)

	workflow := f.saveWorkflow(t,
		[]*models.Node{
			trigger("t", "pass"),
			action("a", "fail", nil),
			action("b", "echo", map[string]any{"text": "never"}),
		},
		[]*models.Edge{
			{ID: "e1", Source: "t", Target: "a"},
			{ID: "e2", Source: "a", Target: "b"},
		})
	execution := f.seedExecution(t, workflow, nil)

	// A node failure settles the execution; it is not an infrastructure
	// error.
	require.NoError(t, f.runner.Run(t.Context(), execution.ID))

	final, err := f.p.ExecutionRepository().GetByID(t.Context(), execution.ID)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusFailed, final.Status)
	assert.Equal(t, "rate limited", final.StatusMessage)
	assert.NotContains(t, final.Output, "b")

	assert.Equal(t, []events.EventType{events.ExecutionFailedEventType}, f.bus.types())
}

func TestRunTriggerConditionsNotMet(t *testing.T) {
	f := newFixture(t)

	workflow := f.saveWorkflow(t,
		[]*models.Node{
			trigger("t", "filtered"),
			action("a", "echo", map[string]any{"text": "never"}),
		},
		[]*models.Edge{
			{ID: "e1", Source: "t", Target: "a"},
		})
	execution := f.seedExecution(t, workflow, nil)

	require.NoError(t, f.runner.Run(t.Context(), execution.ID))

	final, err := f.p.ExecutionRepository().GetByID(t.Context(), execution.ID)
	require.NoError(t, err)

	// A rejected filter is a successful, empty run.
	assert.Equal(t, models.ExecutionStatusSucceeded, final.Status)
	assert.NotContains(t, final.Output, "a")
	assert.NotContains(t, final.Output, "t")
}

func TestRunSuspendAndResume(t *testing.T) {
	f := newFixture(t)

	workflow := f.saveWorkflow(t,
		[]*models.Node{
			trigger("t", "pass"),
			action("a", "delay", nil),
			action("b", "echo", map[string]any{"text": "after"}),
		},
		[]*models.Edge{
			{ID: "e1", Source: "t", Target: "a"},
			{ID: "e2", Source: "a", Target: "b"},
		})
	execution := f.seedExecution(t, workflow, nil)

	require.NoError(t, f.runner.Run(t.Context(), execution.ID))

	waiting, err := f.p.ExecutionRepository().GetByID(t.Context(), execution.ID)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusWaiting, waiting.Status)
	require.NotNil(t, waiting.ContinueExecutionAt)
	assert.Equal(t, []string{"b"}, waiting.Frontier)
	assert.Contains(t, waiting.Output, "a")

	// A second run resumes from the stored frontier.
	require.NoError(t, f.runner.Run(t.Context(), execution.ID))

	final, err := f.p.ExecutionRepository().GetByID(t.Context(), execution.ID)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusSucceeded, final.Status)
	assert.Nil(t, final.ContinueExecutionAt)
	assert.Contains(t, final.Output, "b")

	assert.Equal(t, []events.EventType{
		events.ExecutionWaitingEventType,
		events.ExecutionCompletedEventType,
	}, f.bus.types())
}

func TestRunResolvesVariableTokens(t *testing.T) {
	f := newFixture(t)
	f.variables.Set("proj-1", "api-key", "secret")

	workflow := f.saveWorkflow(t,
		[]*models.Node{
			trigger("t", "pass"),
			action("a", "echo", map[string]any{"text": "key is ={{var:api-key}}"}),
		},
		[]*models.Edge{
			{ID: "e1", Source: "t", Target: "a"},
		})
	execution := f.seedExecution(t, workflow, nil)

	require.NoError(t, f.runner.Run(t.Context(), execution.ID))

	final, err := f.p.ExecutionRepository().GetByID(t.Context(), execution.ID)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusSucceeded, final.Status)

	aOut, ok := final.Output["a"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "key is secret", aOut["text"])
}

func TestRunFailsNodeOnInaccessibleVariable(t *testing.T) {
	f := newFixture(t)

	workflow := f.saveWorkflow(t,
		[]*models.Node{
			trigger("t", "pass"),
			action("a", "echo", map[string]any{"text": "={{var:other-project-secret}}"}),
		},
		[]*models.Edge{
			{ID: "e1", Source: "t", Target: "a"},
		})
	execution := f.seedExecution(t, workflow, nil)

	// The offending node fails the execution, not the process.
	require.NoError(t, f.runner.Run(t.Context(), execution.ID))

	final, err := f.p.ExecutionRepository().GetByID(t.Context(), execution.ID)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusFailed, final.Status)
	assert.Contains(t, final.StatusMessage, "other-project-secret")
}

func TestRunMockSkipsDelayAndMetering(t *testing.T) {
	f := newFixture(t)

	workflow := f.saveWorkflow(t,
		[]*models.Node{
			trigger("t", "pass"),
			action("a", "delay", nil),
			action("b", "metered", nil),
		},
		[]*models.Edge{
			{ID: "e1", Source: "t", Target: "a"},
			{ID: "e2", Source: "a", Target: "b"},
		})
	execution := f.seedExecution(t, workflow, nil)

	require.NoError(t, f.runner.RunMock(t.Context(), execution.ID))

	final, err := f.p.ExecutionRepository().GetByID(t.Context(), execution.ID)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusSucceeded, final.Status)
	assert.Equal(t, credits.DefaultWorkspaceBalance, f.ledger.Balance("ws-1"))
}

func TestRunMetersActionCredits(t *testing.T) {
	f := newFixture(t)

	workflow := f.saveWorkflow(t,
		[]*models.Node{
			trigger("t", "pass"),
			action("a", "metered", nil),
		},
		[]*models.Edge{
			{ID: "e1", Source: "t", Target: "a"},
		})
	execution := f.seedExecution(t, workflow, nil)

	require.NoError(t, f.runner.Run(t.Context(), execution.ID))

	assert.Equal(t, credits.DefaultWorkspaceBalance-2, f.ledger.Balance("ws-1"))
}

func TestRunObservesStopBetweenNodes(t *testing.T) {
	f := newFixture(t)

	workflow := f.saveWorkflow(t,
		[]*models.Node{
			trigger("t", "pass"),
			action("a", "stop", nil),
			action("b", "echo", map[string]any{"text": "never"}),
		},
		[]*models.Edge{
			{ID: "e1", Source: "t", Target: "a"},
			{ID: "e2", Source: "a", Target: "b"},
		})
	execution := f.seedExecution(t, workflow, nil)

	require.NoError(t, f.runner.Run(t.Context(), execution.ID))

	final, err := f.p.ExecutionRepository().GetByID(t.Context(), execution.ID)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusStopped, final.Status)
	assert.NotContains(t, final.Output, "b")
}

func TestRunRejectsTerminalExecution(t *testing.T) {
	f := newFixture(t)

	workflow := f.saveWorkflow(t,
		[]*models.Node{trigger("t", "pass")},
		nil)
	execution := f.seedExecution(t, workflow, nil)

	status := models.ExecutionStatusSucceeded
	require.NoError(t, f.p.ExecutionRepository().Update(t.Context(), execution.ID, &models.ExecutionUpdate{Status: &status}))

	err := f.runner.Run(t.Context(), execution.ID)
	assert.ErrorIs(t, err, runner.ErrExecutionNotRunnable)
}
