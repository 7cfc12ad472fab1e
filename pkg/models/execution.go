package models

import "time"

// ExecutionStatus defines the lifecycle states of an execution.
type ExecutionStatus string

const (
	ExecutionStatusRunning   ExecutionStatus = "RUNNING"
	ExecutionStatusSucceeded ExecutionStatus = "SUCCEEDED"
	ExecutionStatusFailed    ExecutionStatus = "FAILED"
	ExecutionStatusStopped   ExecutionStatus = "STOPPED"
	ExecutionStatusWaiting   ExecutionStatus = "WAITING" // Suspended until ContinueExecutionAt
)

// IsTerminal reports whether the status ends traversal for good.
func (s ExecutionStatus) IsTerminal() bool {
	switch s {
	case ExecutionStatusSucceeded, ExecutionStatusFailed, ExecutionStatusStopped:
		return true
	default:
		return false
	}
}

// IsSettled reports whether the execution has released its queue slot:
// terminal states and WAITING both free the workspace queue.
func (s ExecutionStatus) IsSettled() bool {
	return s.IsTerminal() || s == ExecutionStatusWaiting
}

// Execution is one concrete run of a workflow. Nodes and Edges hold the
// subgraph actually materialized for this run: queued runs start with just
// the trigger node and grow as traversal proceeds. Frontier is the
// resumption pointer, the node ids to execute next.
type Execution struct {
	ID                  string          `json:"id"`
	WorkflowID          string          `json:"workflow_id"`
	WorkspaceID         string          `json:"workspace_id"`
	ExecutionNumber     int64           `json:"execution_number"` // Unique per workflow, not globally
	Status              ExecutionStatus `json:"status"`
	StatusMessage       string          `json:"status_message,omitempty"`
	Nodes               []*Node         `json:"nodes"`
	Edges               []*Edge         `json:"edges"`
	Frontier            []string        `json:"frontier,omitempty"`
	InputData           map[string]any  `json:"input_data,omitempty"`
	Output              map[string]any  `json:"output,omitempty"`
	ContinueExecutionAt *time.Time      `json:"continue_execution_at,omitempty"`
	StartedAt           time.Time       `json:"started_at"`
	StoppedAt           *time.Time      `json:"stopped_at,omitempty"`
}

// HasNode reports whether a node id is already materialized for this run.
func (e *Execution) HasNode(nodeID string) bool {
	for _, node := range e.Nodes {
		if node.ID == nodeID {
			return true
		}
	}

	return false
}

// AppendNode adds a node to the materialized subgraph, once.
func (e *Execution) AppendNode(node *Node) {
	if node == nil || e.HasNode(node.ID) {
		return
	}

	e.Nodes = append(e.Nodes, node)
}

// AppendEdge adds an edge to the materialized subgraph, once.
func (e *Execution) AppendEdge(edge *Edge) {
	for _, existing := range e.Edges {
		if existing.ID == edge.ID {
			return
		}
	}

	e.Edges = append(e.Edges, edge)
}

// ExecutionUpdate carries a partial mutation applied by the node runner.
// Nil fields are left untouched.
type ExecutionUpdate struct {
	Status              *ExecutionStatus
	StatusMessage       *string
	Nodes               []*Node
	Edges               []*Edge
	Frontier            []string
	Output              map[string]any
	ContinueExecutionAt *time.Time
	StoppedAt           *time.Time

	// ClearContinueAt resets the continuation time, used when a WAITING
	// execution resumes.
	ClearContinueAt bool
}
