package handlers

import (
	"context"

	"github.com/orchardhq/orchard/pkg/protocol"
)

// WebhookTrigger passes the inbound request payload through as the trigger
// output. An optional required_field filter rejects payloads missing a
// key, reporting conditions not met instead of failing.
type WebhookTrigger struct{}

func NewWebhookTrigger() *WebhookTrigger {
	return &WebhookTrigger{}
}

func (t *WebhookTrigger) Run(_ context.Context, config map[string]any, inputData map[string]any, execCtx protocol.ExecutionContext) (*protocol.TriggerResult, error) {
	if execCtx.Mock && inputData == nil {
		return &protocol.TriggerResult{
			ConditionsMet: true,
			Outputs:       []map[string]any{{"mocked": true}},
		}, nil
	}

	if inputData == nil {
		inputData = map[string]any{}
	}

	if required, ok := config["required_field"].(string); ok && required != "" {
		if _, present := inputData[required]; !present {
			return &protocol.TriggerResult{ConditionsMet: false}, nil
		}
	}

	return &protocol.TriggerResult{
		ConditionsMet: true,
		Outputs:       []map[string]any{inputData},
	}, nil
}

func webhookTriggerSchema() map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []any{"path"},
		"properties": map[string]any{
			"path": map[string]any{"type": "string", "minLength": 1},
			"method": map[string]any{
				"type": "string",
				"enum": []any{"GET", "POST", "PUT", "PATCH", "DELETE"},
			},
			"required_field": map[string]any{"type": "string"},
		},
	}
}
