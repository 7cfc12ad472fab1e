package models

import "time"

// Agent is an AI agent that can be invoked through the same trigger
// mechanisms as workflows. Only the fields the engine needs are modeled
// here; the AI-provider side is an external collaborator.
type Agent struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspace_id" validate:"required"`
	ProjectID   string    `json:"project_id"   validate:"required"`
	Name        string    `json:"name"         validate:"required,min=1"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// AgentTrigger is a user-declared trigger attached to an agent. Node is a
// trigger-type node owned by the agent, not by any user-visible workflow.
// WorkflowID points at the hidden two-node workflow generated to carry it,
// created lazily on first sync and deleted when the trigger is removed.
type AgentTrigger struct {
	ID         string    `json:"id"`
	AgentID    string    `json:"agent_id"`
	TriggerID  string    `json:"trigger_id" validate:"required"`
	Node       *Node     `json:"node"       validate:"required"`
	WorkflowID string    `json:"workflow_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
