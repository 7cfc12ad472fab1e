// Package credits provides an in-memory credit ledger. Production
// deployments replace it with the billing service client; the interface
// in pkg/protocol is the contract.
package credits

import (
	"context"
	"sync"

	"github.com/orchardhq/orchard/pkg/protocol"
)

// DefaultWorkspaceBalance is granted to workspaces the ledger has never
// seen before.
const DefaultWorkspaceBalance int64 = 1000

type MemoryLedger struct {
	mu       sync.Mutex
	balances map[string]int64
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		balances: make(map[string]int64),
	}
}

// SetBalance overrides the balance for a workspace. Used by tests and by
// the dev server to simulate exhausted workspaces.
func (l *MemoryLedger) SetBalance(workspaceID string, balance int64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.balances[workspaceID] = balance
}

func (l *MemoryLedger) Balance(workspaceID string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.balance(workspaceID)
}

func (l *MemoryLedger) CheckSufficientCredits(_ context.Context, workspaceID string, _ protocol.UsageType) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.balance(workspaceID) <= 0 {
		return protocol.ErrInsufficientCredits
	}

	return nil
}

func (l *MemoryLedger) RecordUsage(_ context.Context, workspaceID string, amount int64, _ string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.balances[workspaceID] = l.balance(workspaceID) - amount

	return nil
}

func (l *MemoryLedger) balance(workspaceID string) int64 {
	balance, ok := l.balances[workspaceID]
	if !ok {
		balance = DefaultWorkspaceBalance
		l.balances[workspaceID] = balance
	}

	return balance
}
