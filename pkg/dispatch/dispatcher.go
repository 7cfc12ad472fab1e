// Package dispatch turns external stimuli into executions. Each trigger
// strategy has its own entry point; all of them funnel through the
// execution store's admission checks. Schedule, webhook, poll and agent
// dispatches end in the workspace queue; manual run-now and editor test
// runs bypass the queue and execute inline, since the caller is waiting
// on the result and queue fairness does not apply to them.
package dispatch

import (
	"context"
	"log/slog"

	"github.com/orchardhq/orchard/pkg/executions"
	"github.com/orchardhq/orchard/pkg/models"
	"github.com/orchardhq/orchard/pkg/persistence"
	"github.com/orchardhq/orchard/pkg/pollstore"
	"github.com/orchardhq/orchard/pkg/queue"
)

// InlineRunner runs one execution in the calling goroutine, bypassing
// the workspace queue. RunMock substitutes mocked handler results.
type InlineRunner interface {
	Run(ctx context.Context, executionID string) error
	RunMock(ctx context.Context, executionID string) error
}

type Dispatcher struct {
	store       *executions.Store
	queue       *queue.Service
	runner      InlineRunner
	persistence persistence.Persistence
	polls       pollstore.PollStorage
	logger      *slog.Logger
}

func NewDispatcher(
	store *executions.Store,
	queueService *queue.Service,
	runner InlineRunner,
	p persistence.Persistence,
	polls pollstore.PollStorage,
	logger *slog.Logger,
) *Dispatcher {
	return &Dispatcher{
		store:       store,
		queue:       queueService,
		runner:      runner,
		persistence: p,
		polls:       polls,
		logger:      logger.With("module", "dispatch"),
	}
}

// RunManual starts a run-now execution inline and returns its settled
// state. Test runs substitute mocked handlers, so the editor gets a
// result without side effects or credit spend.
func (d *Dispatcher) RunManual(ctx context.Context, workflowID string, inputData map[string]any, test bool) (*models.Execution, error) {
	execution, err := d.store.Create(ctx, executions.CreateParams{
		WorkflowID: workflowID,
		Origin:     executions.OriginManual,
		InputData:  inputData,
	})
	if err != nil {
		return nil, err
	}

	if test {
		err = d.runner.RunMock(ctx, execution.ID)
	} else {
		err = d.runner.Run(ctx, execution.ID)
	}

	if err != nil {
		return nil, err
	}

	return d.store.FindOne(ctx, execution.ID)
}

// DispatchLinked starts a run of an internal linked workflow on behalf of
// an agent.
func (d *Dispatcher) DispatchLinked(ctx context.Context, workflowID string, inputData map[string]any) (*models.Execution, error) {
	return d.dispatch(ctx, workflowID, executions.OriginAgent, inputData)
}

// HandleSchedule starts a run for one due schedule tick.
func (d *Dispatcher) HandleSchedule(ctx context.Context, workflowID string) (*models.Execution, error) {
	return d.dispatch(ctx, workflowID, executions.OriginSchedule, nil)
}

func (d *Dispatcher) dispatch(ctx context.Context, workflowID string, origin executions.Origin, inputData map[string]any) (*models.Execution, error) {
	execution, err := d.store.Create(ctx, executions.CreateParams{
		WorkflowID: workflowID,
		Origin:     origin,
		InputData:  inputData,
	})
	if err != nil {
		return nil, err
	}

	_, err = d.queue.Enqueue(ctx, execution)
	if err != nil {
		return nil, err
	}

	return execution, nil
}
