// Package events defines the event types carried on the engine's bus.
package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

// Topic is the single bus topic. Messages are keyed by workspace id so a
// partitioned transport preserves per-workspace ordering and one
// workspace's backlog cannot starve another's wake-up signal.
const Topic = "orchard.engine"

const EventKeyMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// QueueStartEventType wakes the drainer for one workspace queue.
	QueueStartEventType EventType = "queue.start"

	// Execution lifecycle notifications.
	ExecutionCompletedEventType EventType = "execution.completed"
	ExecutionFailedEventType    EventType = "execution.failed"
	ExecutionWaitingEventType   EventType = "execution.waiting"
)

type Event interface {
	GetType() EventType
	Key() string
}

type BaseEvent struct {
	ID          string    `json:"id"`
	Type        EventType `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
	WorkspaceID string    `json:"workspace_id"`
}

func (b BaseEvent) Key() string {
	return b.WorkspaceID
}

// QueueStart signals that a workspace queue has work to drain. Duplicate
// deliveries are harmless: the drainer holds a per-workspace guard.
type QueueStart struct {
	BaseEvent
}

func (q QueueStart) GetType() EventType {
	return QueueStartEventType
}

type ExecutionCompleted struct {
	BaseEvent

	ExecutionID   string         `json:"execution_id"`
	WorkflowID    string         `json:"workflow_id"`
	DurationMs    int64          `json:"duration_ms"`
	NodesExecuted int            `json:"nodes_executed"`
	Output        map[string]any `json:"output,omitempty"`
}

func (e ExecutionCompleted) GetType() EventType {
	return ExecutionCompletedEventType
}

type ExecutionFailed struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	WorkflowID  string `json:"workflow_id"`
	NodeID      string `json:"node_id,omitempty"`
	Error       string `json:"error"`
	DurationMs  int64  `json:"duration_ms"`
}

func (e ExecutionFailed) GetType() EventType {
	return ExecutionFailedEventType
}

type ExecutionWaiting struct {
	BaseEvent

	ExecutionID string    `json:"execution_id"`
	WorkflowID  string    `json:"workflow_id"`
	ContinueAt  time.Time `json:"continue_at"`
}

func (e ExecutionWaiting) GetType() EventType {
	return ExecutionWaitingEventType
}

func NewBaseEvent(eventType EventType, workspaceID string) BaseEvent {
	return BaseEvent{
		ID:          uuid.New().String(),
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		WorkspaceID: workspaceID,
	}
}
