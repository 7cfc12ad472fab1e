package protocol

import (
	"context"
	"errors"
)

// UsageType names a metered usage category in the credit ledger.
type UsageType string

const (
	UsageWorkflowExecution UsageType = "workflow-execution"
	UsageNodeRun           UsageType = "node-run"
)

// ErrInsufficientCredits aborts execution creation before any queue
// placement, and fails a node mid-graph when metering is rejected.
var ErrInsufficientCredits = errors.New("insufficient credits")

// CreditLedger is the external metered-credit collaborator.
type CreditLedger interface {
	// CheckSufficientCredits returns ErrInsufficientCredits when the
	// workspace lacks the minimum balance for the usage type.
	CheckSufficientCredits(ctx context.Context, workspaceID string, usage UsageType) error

	// RecordUsage spends credits against the workspace. Ref ties the spend
	// to an execution or node for audit.
	RecordUsage(ctx context.Context, workspaceID string, amount int64, ref string) error
}

// IsInsufficientCredits reports whether err is a credit gate rejection.
func IsInsufficientCredits(err error) bool {
	return errors.Is(err, ErrInsufficientCredits)
}
