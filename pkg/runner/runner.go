// Package runner drives one execution through its workflow graph. The
// runner owns the traversal state machine: resolve the next frontier
// node's configuration, dispatch its handler, then advance, suspend, fail
// or complete. After every node the frontier is persisted, so a crashed
// worker resumes where it left off instead of replaying side effects.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/orchardhq/orchard/pkg/eventbus"
	"github.com/orchardhq/orchard/pkg/events"
	"github.com/orchardhq/orchard/pkg/graph"
	"github.com/orchardhq/orchard/pkg/models"
	"github.com/orchardhq/orchard/pkg/otelhelper"
	"github.com/orchardhq/orchard/pkg/persistence"
	"github.com/orchardhq/orchard/pkg/protocol"
	"github.com/orchardhq/orchard/pkg/registry"
)

// ErrExecutionNotRunnable rejects runs against executions in a terminal
// state.
var ErrExecutionNotRunnable = errors.New("execution is not runnable")

type Runner struct {
	persistence persistence.Persistence
	registry    *registry.Registry
	ledger      protocol.CreditLedger
	variables   protocol.VariableResolver
	eventBus    eventbus.EventBus
	tracer      trace.Tracer
	logger      *slog.Logger
}

func NewRunner(
	p persistence.Persistence,
	reg *registry.Registry,
	ledger protocol.CreditLedger,
	variables protocol.VariableResolver,
	bus eventbus.EventBus,
	tracer trace.Tracer,
	logger *slog.Logger,
) *Runner {
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("runner")
	}

	return &Runner{
		persistence: p,
		registry:    reg,
		ledger:      ledger,
		variables:   variables,
		eventBus:    bus,
		tracer:      tracer,
		logger:      logger.With("module", "runner"),
	}
}

// Run advances the execution until it settles: SUCCEEDED when the frontier
// drains, FAILED on the first node error, WAITING when a node requests a
// continuation time, STOPPED when an operator intervened between nodes.
func (r *Runner) Run(ctx context.Context, executionID string) error {
	return r.run(ctx, executionID, false)
}

// RunMock advances the execution with handlers short-circuited to
// deterministic mock results. Used by the node-testing path.
func (r *Runner) RunMock(ctx context.Context, executionID string) error {
	return r.run(ctx, executionID, true)
}

func (r *Runner) run(ctx context.Context, executionID string, mock bool) error {
	execution, err := r.persistence.ExecutionRepository().GetByID(ctx, executionID)
	if err != nil {
		return err
	}

	if execution.Status.IsTerminal() {
		return fmt.Errorf("execution %s (status %s): %w", executionID, execution.Status, ErrExecutionNotRunnable)
	}

	workflow, err := r.persistence.WorkflowRepository().GetByID(ctx, execution.WorkflowID)
	if err != nil {
		return err
	}

	ctx, span := otelhelper.StartSpan(ctx, r.tracer, "execution.run",
		attribute.String(otelhelper.ExecutionIDKey, execution.ID),
		attribute.String(otelhelper.WorkflowIDKey, workflow.ID),
		attribute.String(otelhelper.WorkspaceIDKey, execution.WorkspaceID),
	)
	defer span.End()

	logger := r.logger.With(
		"execution_id", execution.ID,
		"workflow_id", workflow.ID,
		"workspace_id", execution.WorkspaceID,
	)

	if execution.Status == models.ExecutionStatusWaiting {
		err = r.resume(ctx, execution)
		if err != nil {
			return err
		}

		logger.InfoContext(ctx, "Execution resumed", "frontier", execution.Frontier)
	}

	if execution.Output == nil {
		execution.Output = make(map[string]any)
	}

	nodesExecuted := 0

	for len(execution.Frontier) > 0 {
		stopped, err := r.checkStopped(ctx, execution.ID)
		if err != nil {
			return err
		}

		if stopped {
			logger.InfoContext(ctx, "Execution stopped, abandoning traversal")

			return nil
		}

		nodeID := execution.Frontier[0]
		execution.Frontier = execution.Frontier[1:]

		node := workflow.NodeByID(nodeID)
		if node == nil {
			return r.fail(ctx, execution, nodeID, fmt.Errorf("node %s not found in workflow", nodeID))
		}

		execution.AppendNode(node)

		outcome, err := r.runNode(ctx, execution, workflow, node, mock)
		if err != nil {
			if failErr := r.fail(ctx, execution, node.ID, err); failErr != nil {
				return failErr
			}

			return nil
		}

		nodesExecuted++

		if outcome.skipSuccessors {
			// Trigger conditions were not met: a successful, empty run.
			break
		}

		r.advance(execution, workflow, node)

		if outcome.continueAt != nil {
			return r.suspend(ctx, execution, *outcome.continueAt)
		}

		err = r.persistProgress(ctx, execution)
		if err != nil {
			return err
		}
	}

	return r.complete(ctx, execution, nodesExecuted)
}

type nodeOutcome struct {
	continueAt     *time.Time
	skipSuccessors bool
}

func (r *Runner) runNode(ctx context.Context, execution *models.Execution, workflow *models.Workflow, node *models.Node, mock bool) (*nodeOutcome, error) {
	ctx, span := otelhelper.StartSpan(ctx, r.tracer, "node.run",
		attribute.String(otelhelper.NodeIDKey, node.ID),
		attribute.String(otelhelper.AppIDKey, node.AppID),
		attribute.String(otelhelper.HandlerIDKey, node.HandlerID()),
	)
	defer span.End()

	execCtx := protocol.ExecutionContext{
		ExecutionID: execution.ID,
		WorkflowID:  workflow.ID,
		WorkspaceID: execution.WorkspaceID,
		ProjectID:   workflow.ProjectID,
		Mock:        mock,
		Logger:      r.logger.With("execution_id", execution.ID, "node_id", node.ID),
	}

	config, err := graph.ResolveConfig(ctx, node.Value, &graph.Context{
		Outputs:   execution.Output,
		Variables: r.variables,
		ProjectID: workflow.ProjectID,
	})
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	if node.IsTrigger() {
		return r.runTriggerNode(ctx, execution, node, config, execCtx, span)
	}

	return r.runActionNode(ctx, execution, node, config, execCtx, span)
}

func (r *Runner) runTriggerNode(ctx context.Context, execution *models.Execution, node *models.Node, config map[string]any, execCtx protocol.ExecutionContext, span trace.Span) (*nodeOutcome, error) {
	handler, err := r.registry.TriggerHandler(node.AppID, node.TriggerID)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	result, err := handler.Run(ctx, config, execution.InputData, execCtx)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	if !result.ConditionsMet {
		return &nodeOutcome{skipSuccessors: true}, nil
	}

	// A fan-out trigger stores its outputs as a list under the node id.
	switch len(result.Outputs) {
	case 0:
		execution.Output[node.ID] = map[string]any{}
	case 1:
		execution.Output[node.ID] = result.Outputs[0]
	default:
		outputs := make([]any, len(result.Outputs))
		for i, output := range result.Outputs {
			outputs[i] = output
		}

		execution.Output[node.ID] = outputs
	}

	return &nodeOutcome{}, nil
}

func (r *Runner) runActionNode(ctx context.Context, execution *models.Execution, node *models.Node, config map[string]any, execCtx protocol.ExecutionContext, span trace.Span) (*nodeOutcome, error) {
	handler, err := r.registry.ActionHandler(node.AppID, node.ActionID)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	result, err := handler.Run(ctx, config, execCtx)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	if result.CreditsUsed > 0 && !execCtx.Mock {
		err = r.ledger.RecordUsage(ctx, execution.WorkspaceID, result.CreditsUsed, execution.ID+"/"+node.ID)
		if err != nil {
			otelhelper.SetError(span, err)

			return nil, err
		}
	}

	if result.Output != nil {
		execution.Output[node.ID] = result.Output
	} else {
		execution.Output[node.ID] = map[string]any{}
	}

	return &nodeOutcome{continueAt: result.ContinueAt}, nil
}

// advance appends the node's unvisited successors to the frontier and
// materializes the connecting edges.
func (r *Runner) advance(execution *models.Execution, workflow *models.Workflow, node *models.Node) {
	for _, edge := range workflow.OutgoingEdges(node.ID) {
		execution.AppendEdge(edge)

		if execution.HasNode(edge.Target) || contains(execution.Frontier, edge.Target) {
			continue
		}

		execution.Frontier = append(execution.Frontier, edge.Target)
	}
}

func (r *Runner) resume(ctx context.Context, execution *models.Execution) error {
	status := models.ExecutionStatusRunning
	execution.Status = status
	execution.ContinueExecutionAt = nil

	return r.persistence.ExecutionRepository().Update(ctx, execution.ID, &models.ExecutionUpdate{
		Status:          &status,
		ClearContinueAt: true,
	})
}

func (r *Runner) checkStopped(ctx context.Context, executionID string) (bool, error) {
	current, err := r.persistence.ExecutionRepository().GetByID(ctx, executionID)
	if err != nil {
		return false, err
	}

	return current.Status == models.ExecutionStatusStopped, nil
}

func (r *Runner) persistProgress(ctx context.Context, execution *models.Execution) error {
	return r.persistence.ExecutionRepository().Update(ctx, execution.ID, &models.ExecutionUpdate{
		Nodes:    execution.Nodes,
		Edges:    execution.Edges,
		Frontier: execution.Frontier,
		Output:   execution.Output,
	})
}

func (r *Runner) complete(ctx context.Context, execution *models.Execution, nodesExecuted int) error {
	status := models.ExecutionStatusSucceeded
	now := time.Now().UTC()

	err := r.persistence.ExecutionRepository().Update(ctx, execution.ID, &models.ExecutionUpdate{
		Status:    &status,
		Nodes:     execution.Nodes,
		Edges:     execution.Edges,
		Frontier:  []string{},
		Output:    execution.Output,
		StoppedAt: &now,
	})
	if err != nil {
		return err
	}

	r.logger.InfoContext(ctx, "Execution succeeded",
		"execution_id", execution.ID, "nodes_executed", nodesExecuted)

	r.publish(ctx, events.ExecutionCompleted{
		BaseEvent:     events.NewBaseEvent(events.ExecutionCompletedEventType, execution.WorkspaceID),
		ExecutionID:   execution.ID,
		WorkflowID:    execution.WorkflowID,
		DurationMs:    now.Sub(execution.StartedAt).Milliseconds(),
		NodesExecuted: nodesExecuted,
		Output:        execution.Output,
	})

	return nil
}

func (r *Runner) fail(ctx context.Context, execution *models.Execution, nodeID string, cause error) error {
	status := models.ExecutionStatusFailed
	message := cause.Error()
	now := time.Now().UTC()

	err := r.persistence.ExecutionRepository().Update(ctx, execution.ID, &models.ExecutionUpdate{
		Status:        &status,
		StatusMessage: &message,
		Nodes:         execution.Nodes,
		Edges:         execution.Edges,
		Frontier:      []string{},
		Output:        execution.Output,
		StoppedAt:     &now,
	})
	if err != nil {
		return err
	}

	r.logger.ErrorContext(ctx, "Execution failed",
		"execution_id", execution.ID, "node_id", nodeID, "error", cause)

	r.publish(ctx, events.ExecutionFailed{
		BaseEvent:   events.NewBaseEvent(events.ExecutionFailedEventType, execution.WorkspaceID),
		ExecutionID: execution.ID,
		WorkflowID:  execution.WorkflowID,
		NodeID:      nodeID,
		Error:       message,
		DurationMs:  now.Sub(execution.StartedAt).Milliseconds(),
	})

	return nil
}

func (r *Runner) suspend(ctx context.Context, execution *models.Execution, continueAt time.Time) error {
	status := models.ExecutionStatusWaiting

	err := r.persistence.ExecutionRepository().Update(ctx, execution.ID, &models.ExecutionUpdate{
		Status:              &status,
		Nodes:               execution.Nodes,
		Edges:               execution.Edges,
		Frontier:            execution.Frontier,
		Output:              execution.Output,
		ContinueExecutionAt: &continueAt,
	})
	if err != nil {
		return err
	}

	r.logger.InfoContext(ctx, "Execution waiting",
		"execution_id", execution.ID, "continue_at", continueAt, "frontier", execution.Frontier)

	r.publish(ctx, events.ExecutionWaiting{
		BaseEvent:   events.NewBaseEvent(events.ExecutionWaitingEventType, execution.WorkspaceID),
		ExecutionID: execution.ID,
		WorkflowID:  execution.WorkflowID,
		ContinueAt:  continueAt,
	})

	return nil
}

func (r *Runner) publish(ctx context.Context, event events.Event) {
	if r.eventBus == nil {
		return
	}

	err := r.eventBus.Publish(ctx, event)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to publish event", "event_type", event.GetType(), "error", err)
	}
}

func contains(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}

	return false
}
