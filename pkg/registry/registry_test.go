package registry

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orchardhq/orchard/pkg/models"
	"github.com/orchardhq/orchard/pkg/protocol"
)

type stubAction struct{}

func (s *stubAction) Run(_ context.Context, _ map[string]any, _ protocol.ExecutionContext) (*protocol.ActionResult, error) {
	return &protocol.ActionResult{Output: map[string]any{"ok": true}}, nil
}

type stubTrigger struct{}

func (s *stubTrigger) Run(_ context.Context, _ map[string]any, _ map[string]any, _ protocol.ExecutionContext) (*protocol.TriggerResult, error) {
	return &protocol.TriggerResult{ConditionsMet: true}, nil
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()

	return NewRegistry(slog.Default())
}

func TestRegisterAndLookup(t *testing.T) {
	reg := newTestRegistry(t)

	err := reg.RegisterAction(ActionDescriptor{
		AppID:    "core",
		ActionID: "noop",
		Handler:  &stubAction{},
	})
	require.NoError(t, err)

	err = reg.RegisterTrigger(TriggerDescriptor{
		AppID:     "core",
		TriggerID: "manual",
		Handler:   &stubTrigger{},
	})
	require.NoError(t, err)

	action, err := reg.ActionHandler("core", "noop")
	require.NoError(t, err)
	assert.NotNil(t, action)

	trigger, err := reg.TriggerHandler("core", "manual")
	require.NoError(t, err)
	assert.NotNil(t, trigger)

	_, err = reg.ActionHandler("core", "missing")
	assert.ErrorIs(t, err, ErrHandlerNotFound)

	_, err = reg.TriggerHandler("other", "manual")
	assert.ErrorIs(t, err, ErrHandlerNotFound)
}

func TestFreezeRejectsRegistration(t *testing.T) {
	reg := newTestRegistry(t)
	reg.Freeze()

	err := reg.RegisterAction(ActionDescriptor{AppID: "core", ActionID: "late", Handler: &stubAction{}})
	assert.ErrorIs(t, err, ErrRegistryFrozen)

	err = reg.RegisterTrigger(TriggerDescriptor{AppID: "core", TriggerID: "late", Handler: &stubTrigger{}})
	assert.ErrorIs(t, err, ErrRegistryFrozen)
}

func TestValidateNode(t *testing.T) {
	reg := newTestRegistry(t)

	err := reg.RegisterAction(ActionDescriptor{
		AppID:    "core",
		ActionID: "greet",
		ConfigSchema: map[string]any{
			"type":     "object",
			"required": []any{"name"},
			"properties": map[string]any{
				"name": map[string]any{"type": "string"},
			},
		},
		Handler: &stubAction{},
	})
	require.NoError(t, err)

	valid := &models.Node{
		ID:       "n1",
		AppID:    "core",
		Type:     models.NodeTypeAction,
		ActionID: "greet",
		Value:    map[string]any{"name": "ada"},
	}
	assert.NoError(t, reg.ValidateNode(valid))

	invalid := &models.Node{
		ID:       "n2",
		AppID:    "core",
		Type:     models.NodeTypeAction,
		ActionID: "greet",
		Value:    map[string]any{"name": 42},
	}

	err = reg.ValidateNode(invalid)
	require.Error(t, err)

	nve, ok := IsNodeValidationError(err)
	require.True(t, ok)
	assert.Equal(t, "n2", nve.NodeID)
	assert.NotEmpty(t, nve.Issues)
}

func TestValidateNodeUnknownHandler(t *testing.T) {
	reg := newTestRegistry(t)

	node := &models.Node{
		ID:       "n1",
		AppID:    "core",
		Type:     models.NodeTypeAction,
		ActionID: "not-installed",
	}

	err := reg.ValidateNode(node)
	require.Error(t, err)

	nve, ok := IsNodeValidationError(err)
	require.True(t, ok)
	assert.Equal(t, "n1", nve.NodeID)
}

func TestValidateNodeWithoutSchema(t *testing.T) {
	reg := newTestRegistry(t)

	err := reg.RegisterTrigger(TriggerDescriptor{
		AppID:     "core",
		TriggerID: "manual",
		Handler:   &stubTrigger{},
	})
	require.NoError(t, err)

	node := &models.Node{
		ID:        "t1",
		AppID:     "core",
		Type:      models.NodeTypeTrigger,
		TriggerID: "manual",
	}

	assert.NoError(t, reg.ValidateNode(node))
}
