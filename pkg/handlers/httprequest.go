package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/orchardhq/orchard/pkg/protocol"
)

const (
	defaultHTTPTimeout = 30 * time.Second
	maxResponseBytes   = 4 << 20
)

// HTTPRequestAction performs one HTTP request. The response is exposed as
// status_code, headers and body; JSON bodies are additionally parsed under
// "json".
type HTTPRequestAction struct {
	client *http.Client
}

func NewHTTPRequestAction() *HTTPRequestAction {
	return &HTTPRequestAction{
		client: &http.Client{Timeout: defaultHTTPTimeout},
	}
}

func (a *HTTPRequestAction) Run(ctx context.Context, config map[string]any, execCtx protocol.ExecutionContext) (*protocol.ActionResult, error) {
	url, ok := config["url"].(string)
	if !ok || url == "" {
		return nil, errors.New("missing required field 'url'")
	}

	method := http.MethodGet
	if m, ok := config["method"].(string); ok && m != "" {
		method = strings.ToUpper(m)
	}

	if execCtx.Mock {
		return &protocol.ActionResult{
			Output: map[string]any{
				"status_code": 200,
				"body":        "",
				"mocked":      true,
			},
		}, nil
	}

	var body io.Reader

	if raw, ok := config["body"]; ok && raw != nil {
		switch typed := raw.(type) {
		case string:
			body = strings.NewReader(typed)
		default:
			data, err := json.Marshal(typed)
			if err != nil {
				return nil, fmt.Errorf("failed to encode request body: %w", err)
			}

			body = strings.NewReader(string(data))
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
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

	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	output := map[string]any{
		"status_code": resp.StatusCode,
		"body":        string(respBody),
	}

	var jsonBody any
	if err := json.Unmarshal(respBody, &jsonBody); err == nil {
		output["json"] = jsonBody
	}

	return &protocol.ActionResult{
		Output:      output,
		CreditsUsed: 1,
	}, nil
}

func httpRequestActionSchema() map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []any{"url"},
		"properties": map[string]any{
			"url": map[string]any{"type": "string"},
			"method": map[string]any{
				"type": "string",
				"enum": []any{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
			},
			"headers": map[string]any{"type": "object"},
			"body":    map[string]any{},
		},
	}
}
