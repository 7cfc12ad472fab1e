package handlers

import (
	"context"
	"errors"

	"github.com/orchardhq/orchard/pkg/protocol"
)

// TransformAction shapes data: its "fields" object, already resolved
// against prior node outputs, becomes the node's output verbatim.
type TransformAction struct{}

func NewTransformAction() *TransformAction {
	return &TransformAction{}
}

func (a *TransformAction) Run(_ context.Context, config map[string]any, _ protocol.ExecutionContext) (*protocol.ActionResult, error) {
	fields, ok := config["fields"].(map[string]any)
	if !ok {
		return nil, errors.New("missing required field 'fields'")
	}

	return &protocol.ActionResult{Output: fields}, nil
}

func transformActionSchema() map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []any{"fields"},
		"properties": map[string]any{
			"fields": map[string]any{"type": "object"},
		},
	}
}
