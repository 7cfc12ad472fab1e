package protocol

import "context"

// AgentMessenger delivers a message to an agent's runtime. It is the
// collaborator behind the message-agent action; the engine never talks to
// AI providers directly.
type AgentMessenger interface {
	Message(ctx context.Context, agentID string, message any) (map[string]any, error)
}
