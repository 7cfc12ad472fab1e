package handlers

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orchardhq/orchard/pkg/models"
	"github.com/orchardhq/orchard/pkg/protocol"
	"github.com/orchardhq/orchard/pkg/registry"
)

func execCtx() protocol.ExecutionContext {
	return protocol.ExecutionContext{
		ExecutionID: "exec-1",
		WorkflowID:  "wf-1",
		WorkspaceID: "ws-1",
		ProjectID:   "proj-1",
		Logger:      slog.Default(),
	}
}

func TestLogAction(t *testing.T) {
	action := NewLogAction()

	result, err := action.Run(t.Context(), map[string]any{"message": "hello", "level": "warn"}, execCtx())
	require.NoError(t, err)
	assert.Equal(t, "hello", result.Output["message"])

	_, err = action.Run(t.Context(), map[string]any{}, execCtx())
	assert.Error(t, err)
}

func TestTransformAction(t *testing.T) {
	action := NewTransformAction()

	result, err := action.Run(t.Context(), map[string]any{
		"fields": map[string]any{"total": float64(12), "currency": "EUR"},
	}, execCtx())
	require.NoError(t, err)
	assert.Equal(t, float64(12), result.Output["total"])
	assert.Equal(t, "EUR", result.Output["currency"])

	_, err = action.Run(t.Context(), map[string]any{}, execCtx())
	assert.Error(t, err)
}

func TestDelayActionSeconds(t *testing.T) {
	action := NewDelayAction()

	result, err := action.Run(t.Context(), map[string]any{"seconds": float64(90)}, execCtx())
	require.NoError(t, err)
	require.NotNil(t, result.ContinueAt)

	remaining := time.Until(*result.ContinueAt)
	assert.Greater(t, remaining, 80*time.Second)
	assert.LessOrEqual(t, remaining, 90*time.Second)
}

func TestDelayActionUntil(t *testing.T) {
	action := NewDelayAction()
	until := time.Now().UTC().Add(time.Hour).Truncate(time.Second)

	result, err := action.Run(t.Context(), map[string]any{"until": until.Format(time.RFC3339)}, execCtx())
	require.NoError(t, err)
	require.NotNil(t, result.ContinueAt)
	assert.True(t, result.ContinueAt.Equal(until))
}

func TestDelayActionValidation(t *testing.T) {
	action := NewDelayAction()

	_, err := action.Run(t.Context(), map[string]any{}, execCtx())
	assert.Error(t, err)

	_, err = action.Run(t.Context(), map[string]any{"until": "not-a-time"}, execCtx())
	assert.Error(t, err)

	// Beyond the 30 day cap.
	_, err = action.Run(t.Context(), map[string]any{"seconds": float64(40 * 24 * 3600)}, execCtx())
	assert.Error(t, err)
}

func TestDelayActionMockCompletesSynchronously(t *testing.T) {
	action := NewDelayAction()
	ctx := execCtx()
	ctx.Mock = true

	result, err := action.Run(t.Context(), map[string]any{"seconds": float64(3600)}, ctx)
	require.NoError(t, err)
	assert.Nil(t, result.ContinueAt)
}

func TestWebhookTriggerPassthrough(t *testing.T) {
	trigger := NewWebhookTrigger()

	result, err := trigger.Run(t.Context(), map[string]any{}, map[string]any{"order": "42"}, execCtx())
	require.NoError(t, err)
	assert.True(t, result.ConditionsMet)
	require.Len(t, result.Outputs, 1)
	assert.Equal(t, "42", result.Outputs[0]["order"])
}

func TestWebhookTriggerRequiredField(t *testing.T) {
	trigger := NewWebhookTrigger()
	config := map[string]any{"required_field": "order"}

	result, err := trigger.Run(t.Context(), config, map[string]any{"other": 1}, execCtx())
	require.NoError(t, err)
	assert.False(t, result.ConditionsMet)

	result, err = trigger.Run(t.Context(), config, map[string]any{"order": "42"}, execCtx())
	require.NoError(t, err)
	assert.True(t, result.ConditionsMet)
}

func TestManualTriggerPassesInput(t *testing.T) {
	trigger := NewManualTrigger()

	result, err := trigger.Run(t.Context(), nil, map[string]any{"k": "v"}, execCtx())
	require.NoError(t, err)
	require.Len(t, result.Outputs, 1)
	assert.Equal(t, "v", result.Outputs[0]["k"])

	result, err = trigger.Run(t.Context(), nil, nil, execCtx())
	require.NoError(t, err)
	require.Len(t, result.Outputs, 1)
	assert.Empty(t, result.Outputs[0])
}

func TestHTTPPollTriggerPassesItemThrough(t *testing.T) {
	trigger := NewHTTPPollTrigger()

	result, err := trigger.Run(t.Context(), map[string]any{}, map[string]any{"id": "item-1"}, execCtx())
	require.NoError(t, err)
	assert.True(t, result.ConditionsMet)
	require.Len(t, result.Outputs, 1)
	assert.Equal(t, "item-1", result.Outputs[0]["id"])
}

func TestHTTPPollTriggerFetchesList(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"items": [{"id": "a"}, {"id": "b"}]}`))
	}))
	defer server.Close()

	trigger := NewHTTPPollTrigger()

	result, err := trigger.Run(t.Context(), map[string]any{
		"url":        server.URL,
		"items_path": "items",
	}, nil, execCtx())
	require.NoError(t, err)
	assert.True(t, result.ConditionsMet)
	require.Len(t, result.Outputs, 2)
	assert.Equal(t, "a", result.Outputs[0]["id"])
}

func TestHTTPPollTriggerEmptyList(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[]`))
	}))
	defer server.Close()

	trigger := NewHTTPPollTrigger()

	result, err := trigger.Run(t.Context(), map[string]any{"url": server.URL}, nil, execCtx())
	require.NoError(t, err)
	assert.False(t, result.ConditionsMet)
}

func TestHTTPRequestAction(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"created": true}`))
	}))
	defer server.Close()

	action := NewHTTPRequestAction()

	result, err := action.Run(t.Context(), map[string]any{
		"url":    server.URL,
		"method": "POST",
		"body":   map[string]any{"name": "ada"},
	}, execCtx())
	require.NoError(t, err)

	assert.Equal(t, 201, result.Output["status_code"])

	parsed, ok := result.Output["json"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, parsed["created"])
	assert.Equal(t, int64(1), result.CreditsUsed)
}

func TestHTTPRequestActionErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	action := NewHTTPRequestAction()

	_, err := action.Run(t.Context(), map[string]any{"url": server.URL}, execCtx())
	assert.Error(t, err)
}

func TestHTTPRequestActionMock(t *testing.T) {
	action := NewHTTPRequestAction()
	ctx := execCtx()
	ctx.Mock = true

	result, err := action.Run(t.Context(), map[string]any{"url": "http://unreachable.invalid"}, ctx)
	require.NoError(t, err)
	assert.Equal(t, true, result.Output["mocked"])
}

func TestRegisterAllInstallsCoreHandlers(t *testing.T) {
	reg := registry.NewRegistry(slog.Default())
	require.NoError(t, RegisterAll(reg, nil))

	for _, triggerID := range []string{TriggerIDManual, TriggerIDWebhook, TriggerIDSchedule, TriggerIDHTTPPoll} {
		_, err := reg.TriggerHandler("core", triggerID)
		assert.NoError(t, err, triggerID)
	}

	for _, actionID := range []string{ActionIDLog, ActionIDHTTPRequest, ActionIDTransform, ActionIDDelay, models.ActionIDMessageAgent} {
		_, err := reg.ActionHandler("core", actionID)
		assert.NoError(t, err, actionID)
	}
}
