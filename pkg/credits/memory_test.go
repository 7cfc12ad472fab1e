package credits

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orchardhq/orchard/pkg/protocol"
)

func TestMemoryLedgerDefaultBalance(t *testing.T) {
	ledger := NewMemoryLedger()

	err := ledger.CheckSufficientCredits(t.Context(), "ws-1", protocol.UsageWorkflowExecution)
	assert.NoError(t, err)
	assert.Equal(t, DefaultWorkspaceBalance, ledger.Balance("ws-1"))
}

func TestMemoryLedgerRecordUsage(t *testing.T) {
	ledger := NewMemoryLedger()

	err := ledger.RecordUsage(t.Context(), "ws-1", 10, "exec-1")
	require.NoError(t, err)
	assert.Equal(t, DefaultWorkspaceBalance-10, ledger.Balance("ws-1"))
}

func TestMemoryLedgerExhausted(t *testing.T) {
	ledger := NewMemoryLedger()
	ledger.SetBalance("ws-1", 0)

	err := ledger.CheckSufficientCredits(t.Context(), "ws-1", protocol.UsageWorkflowExecution)
	assert.ErrorIs(t, err, protocol.ErrInsufficientCredits)
	assert.True(t, protocol.IsInsufficientCredits(err))

	// Other workspaces are unaffected.
	assert.NoError(t, ledger.CheckSufficientCredits(t.Context(), "ws-2", protocol.UsageWorkflowExecution))
}
