package handlers

import (
	"context"
	"time"

	"github.com/orchardhq/orchard/pkg/protocol"
)

// ScheduleTrigger emits one tick output per dispatch.
type ScheduleTrigger struct{}

func NewScheduleTrigger() *ScheduleTrigger {
	return &ScheduleTrigger{}
}

func (t *ScheduleTrigger) Run(_ context.Context, _ map[string]any, _ map[string]any, _ protocol.ExecutionContext) (*protocol.TriggerResult, error) {
	return &protocol.TriggerResult{
		ConditionsMet: true,
		Outputs: []map[string]any{
			{"tick": time.Now().UTC().Format(time.RFC3339)},
		},
	}, nil
}

func scheduleTriggerSchema() map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []any{"cron"},
		"properties": map[string]any{
			"cron": map[string]any{"type": "string", "minLength": 1},
		},
	}
}

// ManualTrigger starts a run-now workflow, passing any editor-supplied
// input through.
type ManualTrigger struct{}

func NewManualTrigger() *ManualTrigger {
	return &ManualTrigger{}
}

func (t *ManualTrigger) Run(_ context.Context, _ map[string]any, inputData map[string]any, _ protocol.ExecutionContext) (*protocol.TriggerResult, error) {
	if inputData == nil {
		inputData = map[string]any{}
	}

	return &protocol.TriggerResult{
		ConditionsMet: true,
		Outputs:       []map[string]any{inputData},
	}, nil
}

func manualTriggerSchema() map[string]any {
	return map[string]any{"type": "object"}
}
