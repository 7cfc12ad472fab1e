// Package variables provides an in-memory variable resolver. Production
// deployments replace it with the platform's variable service client; the
// interface in pkg/protocol is the contract.
package variables

import (
	"context"
	"fmt"
	"sync"

	"github.com/orchardhq/orchard/pkg/protocol"
)

type MemoryResolver struct {
	mu     sync.RWMutex
	values map[string]map[string]any
}

func NewMemoryResolver() *MemoryResolver {
	return &MemoryResolver{
		values: make(map[string]map[string]any),
	}
}

// Set stores a variable scoped to a project. Used by tests and by the dev
// server to seed workspace variables.
func (r *MemoryResolver) Set(projectID, variableID string, value any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	project, ok := r.values[projectID]
	if !ok {
		project = make(map[string]any)
		r.values[projectID] = project
	}

	project[variableID] = value
}

// Resolve looks up a variable for the project. A variable the project does
// not hold is an access failure, matching the platform service's refusal
// to disclose whether the variable exists elsewhere.
func (r *MemoryResolver) Resolve(_ context.Context, variableID, projectID string) (any, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	value, ok := r.values[projectID][variableID]
	if !ok {
		return nil, fmt.Errorf("variable %s: %w", variableID, protocol.ErrAccessDenied)
	}

	return value, nil
}
