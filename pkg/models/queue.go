package models

import "time"

// WorkspaceExecutionQueue is the single per-workspace queue row, upserted on
// first use. Its items, processed strictly in append order, define the
// serialization order for that workspace's queued executions.
type WorkspaceExecutionQueue struct {
	WorkspaceID string    `json:"workspace_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// WorkspaceExecutionQueueItem is a pointer to a queued execution. Position
// is assigned monotonically at append time and is the FIFO sort key. Items
// are deleted once the referenced execution settles.
type WorkspaceExecutionQueueItem struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspace_id"`
	ExecutionID string    `json:"execution_id"`
	Position    int64     `json:"position"`
	CreatedAt   time.Time `json:"created_at"`
}
