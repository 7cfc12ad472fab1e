// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
)

var (
	// ErrWorkflowNotFound indicates a workflow was not found by the given identifier.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrExecutionNotFound indicates an execution was not found by the given identifier.
	ErrExecutionNotFound = errors.New("execution not found")

	// ErrAgentTriggerNotFound indicates an agent trigger was not found by the given identifier.
	ErrAgentTriggerNotFound = errors.New("agent trigger not found")

	// ErrQueueItemNotFound indicates a workspace queue item was not found.
	ErrQueueItemNotFound = errors.New("queue item not found")
)

// StoreError wraps a persistence error with operation context.
type StoreError struct {
	Op     string // Operation being performed (e.g., "GetByID", "Append")
	Entity string // Entity kind (e.g., "workflow", "execution")
	ID     string // Identifier if applicable
	Err    error
}

func (e *StoreError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s operation failed for %s %s: %v", e.Op, e.Entity, e.ID, e.Err)
	}

	return fmt.Sprintf("%s operation failed for %s: %v", e.Op, e.Entity, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func (e *StoreError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewStoreError creates a new persistence error with context.
func NewStoreError(op, entity, id string, err error) *StoreError {
	return &StoreError{Op: op, Entity: entity, ID: id, Err: err}
}

// IsWorkflowNotFound checks if an error indicates a workflow was not found.
func IsWorkflowNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound)
}

// IsExecutionNotFound checks if an error indicates an execution was not found.
func IsExecutionNotFound(err error) bool {
	return errors.Is(err, ErrExecutionNotFound)
}

// IsAgentTriggerNotFound checks if an error indicates an agent trigger was not found.
func IsAgentTriggerNotFound(err error) bool {
	return errors.Is(err, ErrAgentTriggerNotFound)
}
