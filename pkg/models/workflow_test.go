package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func triggerNode(id string) *Node {
	return &Node{
		ID:        id,
		AppID:     AppCore,
		Type:      NodeTypeTrigger,
		TriggerID: "manual",
	}
}

func actionNode(id string) *Node {
	return &Node{
		ID:       id,
		AppID:    AppCore,
		Type:     NodeTypeAction,
		ActionID: "log",
	}
}

func TestWorkflowValidate(t *testing.T) {
	tests := []struct {
		name    string
		nodes   []*Node
		edges   []*Edge
		wantErr error
	}{
		{
			name:  "valid linear graph",
			nodes: []*Node{triggerNode("t"), actionNode("a"), actionNode("b")},
			edges: []*Edge{
				{ID: "e1", Source: "t", Target: "a"},
				{ID: "e2", Source: "a", Target: "b"},
			},
		},
		{
			name:    "no trigger node",
			nodes:   []*Node{actionNode("a")},
			wantErr: ErrNoTriggerNode,
		},
		{
			name:    "multiple trigger nodes",
			nodes:   []*Node{triggerNode("t1"), triggerNode("t2")},
			wantErr: ErrMultipleTriggerNodes,
		},
		{
			name:  "dangling edge",
			nodes: []*Node{triggerNode("t"), actionNode("a")},
			edges: []*Edge{
				{ID: "e1", Source: "t", Target: "a"},
				{ID: "e2", Source: "a", Target: "ghost"},
			},
			wantErr: ErrDanglingEdge,
		},
		{
			name:    "unreachable action node",
			nodes:   []*Node{triggerNode("t"), actionNode("a")},
			wantErr: ErrUnreachableNode,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			workflow := &Workflow{
				ID:          "wf-1",
				WorkspaceID: "ws-1",
				ProjectID:   "proj-1",
				Name:        "test",
				Strategy:    StrategyManual,
				Nodes:       tt.nodes,
				Edges:       tt.edges,
			}

			err := workflow.Validate()

			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestWorkflowTriggerNode(t *testing.T) {
	workflow := &Workflow{
		TriggerNodeID: "t",
		Nodes:         []*Node{triggerNode("t"), actionNode("a")},
	}

	trigger := workflow.TriggerNode()
	require.NotNil(t, trigger)
	assert.Equal(t, "t", trigger.ID)

	// TriggerNodeID pointing at an action node yields nil.
	workflow.TriggerNodeID = "a"
	assert.Nil(t, workflow.TriggerNode())
}

func TestWorkflowOutgoingEdges(t *testing.T) {
	workflow := &Workflow{
		Nodes: []*Node{triggerNode("t"), actionNode("a"), actionNode("b")},
		Edges: []*Edge{
			{ID: "e1", Source: "t", Target: "a"},
			{ID: "e2", Source: "t", Target: "b"},
			{ID: "e3", Source: "a", Target: "b"},
		},
	}

	edges := workflow.OutgoingEdges("t")
	assert.Len(t, edges, 2)

	assert.Empty(t, workflow.OutgoingEdges("b"))
}

func TestExecutionStatus(t *testing.T) {
	assert.True(t, ExecutionStatusSucceeded.IsTerminal())
	assert.True(t, ExecutionStatusFailed.IsTerminal())
	assert.True(t, ExecutionStatusStopped.IsTerminal())
	assert.False(t, ExecutionStatusRunning.IsTerminal())
	assert.False(t, ExecutionStatusWaiting.IsTerminal())

	assert.True(t, ExecutionStatusWaiting.IsSettled())
	assert.True(t, ExecutionStatusSucceeded.IsSettled())
	assert.False(t, ExecutionStatusRunning.IsSettled())
}

func TestExecutionAppendNode(t *testing.T) {
	execution := &Execution{}

	execution.AppendNode(actionNode("a"))
	execution.AppendNode(actionNode("a"))
	execution.AppendNode(nil)

	assert.Len(t, execution.Nodes, 1)
	assert.True(t, execution.HasNode("a"))
	assert.False(t, execution.HasNode("b"))
}

func TestExecutionAppendEdge(t *testing.T) {
	execution := &Execution{}

	execution.AppendEdge(&Edge{ID: "e1", Source: "a", Target: "b"})
	execution.AppendEdge(&Edge{ID: "e1", Source: "a", Target: "b"})

	assert.Len(t, execution.Edges, 1)
}
