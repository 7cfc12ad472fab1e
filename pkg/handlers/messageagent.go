package handlers

import (
	"context"
	"errors"
	"log/slog"

	"github.com/orchardhq/orchard/pkg/protocol"
)

// MessageAgentAction delivers a message to an agent's runtime. It is the
// action half of every agent trigger's hidden carrier workflow.
type MessageAgentAction struct {
	messenger protocol.AgentMessenger
}

func NewMessageAgentAction(messenger protocol.AgentMessenger) *MessageAgentAction {
	return &MessageAgentAction{messenger: messenger}
}

func (a *MessageAgentAction) Run(ctx context.Context, config map[string]any, execCtx protocol.ExecutionContext) (*protocol.ActionResult, error) {
	agentID, ok := config["agent_id"].(string)
	if !ok || agentID == "" {
		return nil, errors.New("missing required field 'agent_id'")
	}

	message, ok := config["message"]
	if !ok {
		return nil, errors.New("missing required field 'message'")
	}

	if execCtx.Mock {
		return &protocol.ActionResult{
			Output: map[string]any{
				"delivered": false,
				"mocked":    true,
			},
		}, nil
	}

	reply, err := a.messenger.Message(ctx, agentID, message)
	if err != nil {
		return nil, err
	}

	output := map[string]any{
		"delivered": true,
		"agent_id":  agentID,
	}

	if reply != nil {
		output["reply"] = reply
	}

	return &protocol.ActionResult{
		Output:      output,
		CreditsUsed: 1,
	}, nil
}

func messageAgentActionSchema() map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []any{"agent_id", "message"},
		"properties": map[string]any{
			"agent_id": map[string]any{"type": "string"},
			"message":  map[string]any{},
		},
	}
}

// LoggingMessenger is the default AgentMessenger for deployments without
// an agent runtime wired in. Deliveries are logged and acknowledged.
type LoggingMessenger struct {
	logger *slog.Logger
}

func NewLoggingMessenger(logger *slog.Logger) *LoggingMessenger {
	return &LoggingMessenger{logger: logger.With("module", "agent-messenger")}
}

func (m *LoggingMessenger) Message(ctx context.Context, agentID string, message any) (map[string]any, error) {
	m.logger.InfoContext(ctx, "Agent message delivered", "agent_id", agentID, "message", message)

	return nil, nil
}
