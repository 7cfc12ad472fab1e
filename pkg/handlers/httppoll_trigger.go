package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/orchardhq/orchard/pkg/protocol"
)

// HTTPPollTrigger serves both halves of polling. Invoked by the poller
// with nil input it fetches the configured URL and returns the current
// items; invoked inside an execution the dispatched item arrives as input
// and passes through as the trigger output.
type HTTPPollTrigger struct {
	client *http.Client
}

func NewHTTPPollTrigger() *HTTPPollTrigger {
	return &HTTPPollTrigger{
		client: &http.Client{Timeout: defaultHTTPTimeout},
	}
}

func (t *HTTPPollTrigger) Run(ctx context.Context, config map[string]any, inputData map[string]any, execCtx protocol.ExecutionContext) (*protocol.TriggerResult, error) {
	if inputData != nil {
		return &protocol.TriggerResult{
			ConditionsMet: true,
			Outputs:       []map[string]any{inputData},
		}, nil
	}

	if execCtx.Mock {
		return &protocol.TriggerResult{
			ConditionsMet: true,
			Outputs:       []map[string]any{{"id": "mock-item", "mocked": true}},
		}, nil
	}

	url, ok := config["url"].(string)
	if !ok || url == "" {
		return nil, errors.New("missing required field 'url'")
	}

	items, err := t.fetch(ctx, url, config)
	if err != nil {
		return nil, err
	}

	if len(items) == 0 {
		return &protocol.TriggerResult{ConditionsMet: false}, nil
	}

	return &protocol.TriggerResult{
		ConditionsMet: true,
		Outputs:       items,
	}, nil
}

func (t *HTTPPollTrigger) fetch(ctx context.Context, url string, config map[string]any) ([]map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if headers, ok := config["headers"].(map[string]any); ok {
		for key, value := range headers {
			if strVal, ok := value.(string); ok {
				req.Header.Set(key, strVal)
			}
		}
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("poll request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read poll response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d polling %s", resp.StatusCode, url)
	}

	var parsed any

	err = json.Unmarshal(body, &parsed)
	if err != nil {
		return nil, fmt.Errorf("poll response is not JSON: %w", err)
	}

	if itemsPath, ok := config["items_path"].(string); ok && itemsPath != "" {
		object, ok := parsed.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("poll response has no object at items_path %q", itemsPath)
		}

		parsed = object[itemsPath]
	}

	list, ok := parsed.([]any)
	if !ok {
		return nil, errors.New("poll response is not a list of items")
	}

	items := make([]map[string]any, 0, len(list))

	for _, element := range list {
		if item, ok := element.(map[string]any); ok {
			items = append(items, item)
		}
	}

	return items, nil
}

func httpPollTriggerSchema() map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []any{"url"},
		"properties": map[string]any{
			"url":        map[string]any{"type": "string", "minLength": 1},
			"headers":    map[string]any{"type": "object"},
			"items_path": map[string]any{"type": "string"},
			"interval_seconds": map[string]any{
				"type":    "number",
				"minimum": 30,
			},
		},
	}
}
