package registry

import (
	"errors"
	"fmt"
	"strings"
)

// NodeValidationError reports why a node's configuration was rejected at
// save time. Issues are human-readable and surfaced verbatim to the API.
type NodeValidationError struct {
	NodeID string
	Issues []string
}

func NewNodeValidationError(nodeID string, issues ...string) *NodeValidationError {
	return &NodeValidationError{NodeID: nodeID, Issues: issues}
}

func (e *NodeValidationError) Error() string {
	return fmt.Sprintf("node %s: %s", e.NodeID, strings.Join(e.Issues, "; "))
}

// IsNodeValidationError reports whether err carries a node validation
// failure, returning the typed error when it does.
func IsNodeValidationError(err error) (*NodeValidationError, bool) {
	var nve *NodeValidationError
	if errors.As(err, &nve) {
		return nve, true
	}

	return nil, false
}
