package protocol

import (
	"context"
	"errors"
)

// ErrAccessDenied indicates the project lacks access to a referenced
// variable, connection or other resource. Checked eagerly at save time.
var ErrAccessDenied = errors.New("access denied")

// VariableResolver looks up workspace variables scoped to a project.
type VariableResolver interface {
	Resolve(ctx context.Context, variableID, projectID string) (any, error)
}

// IsAccessDenied reports whether err is a project access rejection.
func IsAccessDenied(err error) bool {
	return errors.Is(err, ErrAccessDenied)
}
