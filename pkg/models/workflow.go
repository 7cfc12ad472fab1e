// Package models defines the core domain models for the workflow execution engine.
package models

import (
	"errors"
	"fmt"
	"time"
)

// TriggerStrategy describes how a workflow is activated.
type TriggerStrategy string

const (
	StrategyManual   TriggerStrategy = "manual"   // Run-now from the UI
	StrategySchedule TriggerStrategy = "schedule" // Cron tick
	StrategyWebhook  TriggerStrategy = "webhook"  // Inbound HTTP
	StrategyPoll     TriggerStrategy = "poll"     // Periodic poll cycle
	StrategyLinked   TriggerStrategy = "linked"   // Internal workflow backing an agent trigger
)

// Workflow is a project-owned template of trigger and action nodes.
type Workflow struct {
	ID            string          `json:"id"`
	WorkspaceID   string          `json:"workspace_id"    validate:"required"`
	ProjectID     string          `json:"project_id"      validate:"required"`
	Name          string          `json:"name"            validate:"required,min=1"`
	Strategy      TriggerStrategy `json:"strategy"        validate:"required"`
	TriggerNodeID string          `json:"trigger_node_id"`
	IsActive      bool            `json:"is_active"`
	IsInternal    bool            `json:"is_internal"` // Engine-generated, never shown to end users
	Nodes         []*Node         `json:"nodes"`
	Edges         []*Edge         `json:"edges"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	DeletedAt     *time.Time      `json:"deleted_at,omitempty"`
}

var (
	ErrNoTriggerNode        = errors.New("workflow must have exactly one trigger node")
	ErrMultipleTriggerNodes = errors.New("workflow has more than one trigger node")
	ErrUnreachableNode      = errors.New("node is not reachable from the trigger node")
	ErrDanglingEdge         = errors.New("edge references a node that does not exist")
)

// TriggerNode returns the workflow's designated trigger node, or nil.
func (w *Workflow) TriggerNode() *Node {
	for _, node := range w.Nodes {
		if node.ID == w.TriggerNodeID && node.IsTrigger() {
			return node
		}
	}

	return nil
}

// NodeByID returns the node with the given id, or nil.
func (w *Workflow) NodeByID(id string) *Node {
	for _, node := range w.Nodes {
		if node.ID == id {
			return node
		}
	}

	return nil
}

// OutgoingEdges returns all edges whose source is the given node.
func (w *Workflow) OutgoingEdges(nodeID string) []*Edge {
	var out []*Edge

	for _, edge := range w.Edges {
		if edge.Source == nodeID {
			out = append(out, edge)
		}
	}

	return out
}

// Validate enforces the structural invariants: exactly one trigger node,
// every edge endpoint exists, and every action node is reachable from the
// trigger via edges. Checked at save time so the execution path stays hot.
func (w *Workflow) Validate() error {
	var triggerID string

	for _, node := range w.Nodes {
		if !node.IsTrigger() {
			continue
		}

		if triggerID != "" {
			return ErrMultipleTriggerNodes
		}

		triggerID = node.ID
	}

	if triggerID == "" {
		return ErrNoTriggerNode
	}

	if w.TriggerNodeID != "" && w.TriggerNodeID != triggerID {
		return fmt.Errorf("trigger_node_id %s does not match trigger node %s: %w", w.TriggerNodeID, triggerID, ErrNoTriggerNode)
	}

	for _, edge := range w.Edges {
		if w.NodeByID(edge.Source) == nil || w.NodeByID(edge.Target) == nil {
			return fmt.Errorf("edge %s (%s -> %s): %w", edge.ID, edge.Source, edge.Target, ErrDanglingEdge)
		}
	}

	reachable := map[string]bool{triggerID: true}
	frontier := []string{triggerID}

	for len(frontier) > 0 {
		current := frontier[0]
		frontier = frontier[1:]

		for _, edge := range w.OutgoingEdges(current) {
			if !reachable[edge.Target] {
				reachable[edge.Target] = true
				frontier = append(frontier, edge.Target)
			}
		}
	}

	for _, node := range w.Nodes {
		if !reachable[node.ID] {
			return fmt.Errorf("node %s: %w", node.ID, ErrUnreachableNode)
		}
	}

	return nil
}
