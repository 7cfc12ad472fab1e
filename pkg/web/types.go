// Package web provides the HTTP API: workflow management, execution
// queries, webhook intake and agent trigger synchronization.
package web

import "github.com/orchardhq/orchard/pkg/models"

// SaveWorkflowRequest is the request body for creating or replacing a
// workflow. The graph is saved whole; there is no per-node endpoint.
type SaveWorkflowRequest struct {
	WorkspaceID string         `json:"workspace_id" validate:"required"`
	ProjectID   string         `json:"project_id"   validate:"required"`
	Name        string         `json:"name"         validate:"required,min=1"`
	Strategy    string         `json:"strategy"     validate:"required,oneof=manual schedule webhook poll"`
	IsActive    bool           `json:"is_active"`
	Nodes       []*models.Node `json:"nodes"        validate:"required,min=1,dive"`
	Edges       []*models.Edge `json:"edges"        validate:"dive"`
}

// RunWorkflowRequest starts a run-now execution. The run executes inline
// and the settled execution comes back in the response; test runs
// substitute mocked handlers.
type RunWorkflowRequest struct {
	InputData map[string]any `json:"input_data,omitempty"`
	Test      bool           `json:"test,omitempty"`
}

// SyncAgentTriggersRequest declares the full set of an agent's triggers.
type SyncAgentTriggersRequest struct {
	Agent    AgentPayload          `json:"agent"    validate:"required"`
	Triggers []AgentTriggerPayload `json:"triggers" validate:"dive"`
}

type AgentPayload struct {
	ID          string `json:"id"           validate:"required"`
	WorkspaceID string `json:"workspace_id" validate:"required"`
	ProjectID   string `json:"project_id"   validate:"required"`
	Name        string `json:"name"         validate:"required,min=1"`
}

// AgentTriggerPayload declares one trigger. A payload without an id is a
// new trigger; an id addresses the stored row to update.
type AgentTriggerPayload struct {
	ID        string       `json:"id,omitempty"`
	TriggerID string       `json:"trigger_id" validate:"required"`
	Node      *models.Node `json:"node"       validate:"required"`
}
