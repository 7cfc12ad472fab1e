// Package protocol defines the contracts between the execution engine and
// its external collaborators: action/trigger handlers, the credit ledger,
// and the variable resolver.
package protocol

import (
	"context"
	"log/slog"
	"time"
)

// ExecutionContext carries the identity of the run a handler participates
// in. Mock short-circuits handlers to a deterministic result with no side
// effects, used by the node-testing path.
type ExecutionContext struct {
	ExecutionID string
	WorkflowID  string
	WorkspaceID string
	ProjectID   string
	Mock        bool
	Logger      *slog.Logger
}

// ActionResult is the outcome of one action node dispatch.
type ActionResult struct {
	// Output becomes the node's entry in the execution output and is
	// addressable by downstream nodes via ={{ref:<nodeId>}}.
	Output map[string]any

	// ContinueAt, when set, suspends the execution as WAITING until an
	// external scheduler re-invokes the runner on or after this time.
	ContinueAt *time.Time

	// CreditsUsed is metered against the workspace after the node
	// completes. Zero means the handler reported no usage.
	CreditsUsed int64
}

// TriggerResult is the outcome of one trigger node dispatch. A trigger may
// fan out several outputs, each becoming a parallel continuation.
type TriggerResult struct {
	// ConditionsMet false means the trigger fired but its filter rejected
	// the event. This is a successful, empty run, not a failure.
	ConditionsMet bool

	Outputs []map[string]any
}

// ActionHandler executes one action node against its resolved
// configuration. A returned error is the node's failure result and is
// surfaced verbatim in the execution status message.
type ActionHandler interface {
	Run(ctx context.Context, config map[string]any, execCtx ExecutionContext) (*ActionResult, error)
}

// TriggerHandler evaluates one trigger node. InputData is the normalized
// external event, nil for fully manual runs.
type TriggerHandler interface {
	Run(ctx context.Context, config map[string]any, inputData map[string]any, execCtx ExecutionContext) (*TriggerResult, error)
}
