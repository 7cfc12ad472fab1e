package models

// NodeType represents the category of a node in the graph.
type NodeType string

const (
	NodeTypeTrigger NodeType = "trigger"
	NodeTypeAction  NodeType = "action"
)

// Built-in node identifiers for engine-generated workflows.
const (
	AppCore              = "core"
	ActionIDMessageAgent = "message-agent"
)

// Position is layout-only metadata, never behavioral.
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Node is a graph vertex carrying app-specific templated configuration.
// String fields inside Value may embed references of the form
// ={{ref:<nodeId>}} or ={{var:<variableId>}}, resolved at run time.
type Node struct {
	ID        string         `json:"id"         validate:"required"`
	AppID     string         `json:"app_id"     validate:"required"`
	Type      NodeType       `json:"type"       validate:"required"`
	ActionID  string         `json:"action_id,omitempty"`
	TriggerID string         `json:"trigger_id,omitempty"`
	Position  Position       `json:"position"`
	Value     map[string]any `json:"value"`
}

func (n *Node) IsTrigger() bool {
	return n.Type == NodeTypeTrigger
}

func (n *Node) IsAction() bool {
	return n.Type == NodeTypeAction
}

// HandlerID returns the action or trigger identifier depending on node type.
func (n *Node) HandlerID() string {
	if n.IsTrigger() {
		return n.TriggerID
	}

	return n.ActionID
}

// Edge is a directed arc between two node ids within the same workflow.
// Animated and Kind are presentation metadata only.
type Edge struct {
	ID       string `json:"id"`
	Source   string `json:"source" validate:"required"`
	Target   string `json:"target" validate:"required"`
	Animated bool   `json:"animated,omitempty"`
	Kind     string `json:"type,omitempty"`
}
