package dispatch

import (
	"context"
	"strings"

	"github.com/orchardhq/orchard/pkg/executions"
	"github.com/orchardhq/orchard/pkg/models"
)

// HandleWebhook routes an inbound request to every active webhook workflow
// whose trigger matches the method and path, one execution per match. In
// test mode the payload is captured for the editor's listen flow instead
// of starting executions.
func (d *Dispatcher) HandleWebhook(ctx context.Context, method, path string, payload map[string]any, test bool) ([]*models.Execution, error) {
	workflows, err := d.persistence.WorkflowRepository().GetActiveByStrategy(ctx, models.StrategyWebhook)
	if err != nil {
		return nil, err
	}

	var started []*models.Execution

	for _, workflow := range workflows {
		trigger := workflow.TriggerNode()
		if trigger == nil || !webhookMatches(trigger, method, path) {
			continue
		}

		if test {
			err = d.polls.CaptureEvent(ctx, webhookCaptureKey(workflow.ID), payload)
			if err != nil {
				return nil, err
			}

			d.logger.InfoContext(ctx, "Captured webhook test event",
				"workflow_id", workflow.ID, "path", path)

			continue
		}

		execution, err := d.store.Create(ctx, executions.CreateParams{
			WorkflowID: workflow.ID,
			Origin:     executions.OriginWebhook,
			InputData:  payload,
		})
		if err != nil {
			d.logger.ErrorContext(ctx, "Failed to create webhook execution",
				"workflow_id", workflow.ID, "error", err)

			continue
		}

		_, err = d.queue.Enqueue(ctx, execution)
		if err != nil {
			return started, err
		}

		started = append(started, execution)
	}

	return started, nil
}

// TakeWebhookTestEvent returns and clears the captured test payload for a
// workflow, or nil when nothing arrived yet.
func (d *Dispatcher) TakeWebhookTestEvent(ctx context.Context, workflowID string) (map[string]any, error) {
	return d.polls.TakeEvent(ctx, webhookCaptureKey(workflowID))
}

func webhookCaptureKey(workflowID string) string {
	return "webhook:" + workflowID
}

func webhookMatches(trigger *models.Node, method, path string) bool {
	configuredPath, _ := trigger.Value["path"].(string)
	if configuredPath == "" {
		return false
	}

	if normalizePath(configuredPath) != normalizePath(path) {
		return false
	}

	configuredMethod, _ := trigger.Value["method"].(string)
	if configuredMethod == "" {
		return true
	}

	return strings.EqualFold(configuredMethod, method)
}

func normalizePath(path string) string {
	return "/" + strings.Trim(path, "/")
}
