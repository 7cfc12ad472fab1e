// Package handlers provides the built-in core action and trigger handlers
// shipped with the engine.
package handlers

import (
	"context"
	"errors"

	"github.com/orchardhq/orchard/pkg/protocol"
)

// LogAction writes a message to the execution log and passes it through as
// output.
type LogAction struct{}

func NewLogAction() *LogAction {
	return &LogAction{}
}

func (a *LogAction) Run(ctx context.Context, config map[string]any, execCtx protocol.ExecutionContext) (*protocol.ActionResult, error) {
	message, ok := config["message"].(string)
	if !ok {
		return nil, errors.New("missing required field 'message'")
	}

	level, _ := config["level"].(string)

	if execCtx.Logger != nil {
		switch level {
		case "debug":
			execCtx.Logger.DebugContext(ctx, message)
		case "warn":
			execCtx.Logger.WarnContext(ctx, message)
		case "error":
			execCtx.Logger.ErrorContext(ctx, message)
		default:
			execCtx.Logger.InfoContext(ctx, message)
		}
	}

	return &protocol.ActionResult{
		Output: map[string]any{
			"message": message,
		},
	}, nil
}

func logActionSchema() map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []any{"message"},
		"properties": map[string]any{
			"message": map[string]any{"type": "string"},
			"level": map[string]any{
				"type": "string",
				"enum": []any{"debug", "info", "warn", "error"},
			},
		},
	}
}
