package dispatch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/orchardhq/orchard/pkg/executions"
	"github.com/orchardhq/orchard/pkg/graph"
	"github.com/orchardhq/orchard/pkg/models"
	"github.com/orchardhq/orchard/pkg/persistence"
	"github.com/orchardhq/orchard/pkg/pollstore"
	"github.com/orchardhq/orchard/pkg/protocol"
	"github.com/orchardhq/orchard/pkg/registry"
)

const DefaultPollInterval = time.Minute

// Poller periodically evaluates every active poll workflow's trigger
// handler and starts one execution per item the cursor has not seen.
type Poller struct {
	dispatcher  *Dispatcher
	persistence persistence.Persistence
	registry    *registry.Registry
	polls       pollstore.PollStorage
	variables   protocol.VariableResolver
	interval    time.Duration
	logger      *slog.Logger
}

func NewPoller(
	dispatcher *Dispatcher,
	p persistence.Persistence,
	reg *registry.Registry,
	polls pollstore.PollStorage,
	variables protocol.VariableResolver,
	interval time.Duration,
	logger *slog.Logger,
) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	return &Poller{
		dispatcher:  dispatcher,
		persistence: p,
		registry:    reg,
		polls:       polls,
		variables:   variables,
		interval:    interval,
		logger:      logger.With("module", "poller"),
	}
}

// Start runs poll cycles until the context is cancelled.
func (p *Poller) Start(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.InfoContext(ctx, "Poller started", "interval", p.interval)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			err := p.PollOnce(ctx)
			if err != nil {
				p.logger.ErrorContext(ctx, "Poll cycle failed", "error", err)
			}
		}
	}
}

// PollOnce runs one poll cycle over all active poll workflows.
func (p *Poller) PollOnce(ctx context.Context) error {
	workflows, err := p.persistence.WorkflowRepository().GetActiveByStrategy(ctx, models.StrategyPoll)
	if err != nil {
		return err
	}

	for _, workflow := range workflows {
		err = p.pollWorkflow(ctx, workflow)
		if err != nil {
			p.logger.ErrorContext(ctx, "Failed to poll workflow",
				"workflow_id", workflow.ID, "error", err)
		}
	}

	return nil
}

func (p *Poller) pollWorkflow(ctx context.Context, workflow *models.Workflow) error {
	trigger := workflow.TriggerNode()
	if trigger == nil {
		return models.ErrNoTriggerNode
	}

	handler, err := p.registry.TriggerHandler(trigger.AppID, trigger.TriggerID)
	if err != nil {
		return err
	}

	config, err := graph.ResolveConfig(ctx, trigger.Value, &graph.Context{
		Variables: p.variables,
		ProjectID: workflow.ProjectID,
	})
	if err != nil {
		return err
	}

	result, err := handler.Run(ctx, config, nil, protocol.ExecutionContext{
		WorkflowID:  workflow.ID,
		WorkspaceID: workflow.WorkspaceID,
		ProjectID:   workflow.ProjectID,
		Logger:      p.logger.With("workflow_id", workflow.ID),
	})
	if err != nil {
		return err
	}

	if !result.ConditionsMet || len(result.Outputs) == 0 {
		return nil
	}

	items := make(map[string]map[string]any, len(result.Outputs))
	ids := make([]string, 0, len(result.Outputs))

	for _, output := range result.Outputs {
		id := itemID(output)
		if _, seen := items[id]; seen {
			continue
		}

		items[id] = output
		ids = append(ids, id)
	}

	cursor := workflow.ID + ":" + trigger.ID

	fresh, err := p.polls.FilterNew(ctx, cursor, ids)
	if err != nil {
		return err
	}

	for _, id := range fresh {
		execution, err := p.dispatcher.dispatchPoll(ctx, workflow.ID, items[id])
		if err != nil {
			p.logger.ErrorContext(ctx, "Failed to dispatch poll item",
				"workflow_id", workflow.ID, "item_id", id, "error", err)

			continue
		}

		p.logger.InfoContext(ctx, "Poll item dispatched",
			"workflow_id", workflow.ID, "item_id", id, "execution_id", execution.ID)
	}

	return nil
}

func (d *Dispatcher) dispatchPoll(ctx context.Context, workflowID string, inputData map[string]any) (*models.Execution, error) {
	return d.dispatch(ctx, workflowID, executions.OriginPoll, inputData)
}

// itemID keys an item for cursor dedup: its declared id when present,
// otherwise a digest of its content.
func itemID(item map[string]any) string {
	if id, ok := item["id"]; ok {
		return fmt.Sprintf("%v", id)
	}

	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Sprintf("%v", item)
	}

	sum := sha256.Sum256(data)

	return hex.EncodeToString(sum[:8])
}
