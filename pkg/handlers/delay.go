package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/orchardhq/orchard/pkg/protocol"
)

const maxDelay = 30 * 24 * time.Hour

// DelayAction suspends the execution. It never blocks the worker: the
// handler returns a continuation time and the runner parks the execution
// as WAITING until the scheduler resumes it.
type DelayAction struct{}

func NewDelayAction() *DelayAction {
	return &DelayAction{}
}

func (a *DelayAction) Run(_ context.Context, config map[string]any, execCtx protocol.ExecutionContext) (*protocol.ActionResult, error) {
	continueAt, err := parseDelay(config)
	if err != nil {
		return nil, err
	}

	output := map[string]any{
		"continue_at": continueAt.Format(time.RFC3339),
	}

	if execCtx.Mock {
		// Test runs complete synchronously instead of parking.
		return &protocol.ActionResult{Output: output}, nil
	}

	return &protocol.ActionResult{
		Output:     output,
		ContinueAt: &continueAt,
	}, nil
}

func parseDelay(config map[string]any) (time.Time, error) {
	now := time.Now().UTC()

	if until, ok := config["until"].(string); ok && until != "" {
		at, err := time.Parse(time.RFC3339, until)
		if err != nil {
			return time.Time{}, errors.New("field 'until' must be an RFC3339 timestamp")
		}

		return at.UTC(), nil
	}

	seconds, ok := config["seconds"].(float64)
	if !ok || seconds <= 0 {
		return time.Time{}, errors.New("one of 'seconds' or 'until' is required")
	}

	delay := time.Duration(seconds) * time.Second
	if delay > maxDelay {
		return time.Time{}, errors.New("delay exceeds the 30 day maximum")
	}

	return now.Add(delay), nil
}

func delayActionSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"seconds": map[string]any{"type": "number", "minimum": 1},
			"until":   map[string]any{"type": "string"},
		},
	}
}
