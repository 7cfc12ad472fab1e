package variables

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orchardhq/orchard/pkg/protocol"
)

func TestResolveScopedToProject(t *testing.T) {
	resolver := NewMemoryResolver()
	resolver.Set("proj-1", "api-key", "secret-1")
	resolver.Set("proj-2", "api-key", "secret-2")

	value, err := resolver.Resolve(t.Context(), "api-key", "proj-1")
	require.NoError(t, err)
	assert.Equal(t, "secret-1", value)

	value, err = resolver.Resolve(t.Context(), "api-key", "proj-2")
	require.NoError(t, err)
	assert.Equal(t, "secret-2", value)
}

func TestResolveUnknownVariableIsAccessDenied(t *testing.T) {
	resolver := NewMemoryResolver()
	resolver.Set("proj-1", "api-key", "secret")

	_, err := resolver.Resolve(t.Context(), "missing", "proj-1")
	assert.True(t, protocol.IsAccessDenied(err))

	// Another project's variable is indistinguishable from a missing one.
	_, err = resolver.Resolve(t.Context(), "api-key", "proj-2")
	assert.True(t, protocol.IsAccessDenied(err))
}
