package handlers

import (
	"github.com/orchardhq/orchard/pkg/models"
	"github.com/orchardhq/orchard/pkg/protocol"
	"github.com/orchardhq/orchard/pkg/registry"
)

// Core trigger identifiers.
const (
	TriggerIDManual   = "manual"
	TriggerIDWebhook  = "webhook"
	TriggerIDSchedule = "schedule"
	TriggerIDHTTPPoll = "http-poll"
)

// Core action identifiers.
const (
	ActionIDLog         = "log"
	ActionIDHTTPRequest = "http-request"
	ActionIDTransform   = "transform"
	ActionIDDelay       = "delay"
)

// RegisterAll installs the built-in core handlers into the registry. The
// caller freezes the registry once every app is installed.
func RegisterAll(reg *registry.Registry, messenger protocol.AgentMessenger) error {
	actions := []registry.ActionDescriptor{
		{
			AppID:        models.AppCore,
			ActionID:     ActionIDLog,
			ConfigSchema: logActionSchema(),
			Handler:      NewLogAction(),
		},
		{
			AppID:        models.AppCore,
			ActionID:     ActionIDHTTPRequest,
			ConfigSchema: httpRequestActionSchema(),
			Handler:      NewHTTPRequestAction(),
		},
		{
			AppID:        models.AppCore,
			ActionID:     ActionIDTransform,
			ConfigSchema: transformActionSchema(),
			Handler:      NewTransformAction(),
		},
		{
			AppID:        models.AppCore,
			ActionID:     ActionIDDelay,
			ConfigSchema: delayActionSchema(),
			Handler:      NewDelayAction(),
		},
		{
			AppID:        models.AppCore,
			ActionID:     models.ActionIDMessageAgent,
			ConfigSchema: messageAgentActionSchema(),
			Handler:      NewMessageAgentAction(messenger),
		},
	}

	for _, desc := range actions {
		err := reg.RegisterAction(desc)
		if err != nil {
			return err
		}
	}

	triggers := []registry.TriggerDescriptor{
		{
			AppID:        models.AppCore,
			TriggerID:    TriggerIDManual,
			ConfigSchema: manualTriggerSchema(),
			Handler:      NewManualTrigger(),
		},
		{
			AppID:        models.AppCore,
			TriggerID:    TriggerIDWebhook,
			ConfigSchema: webhookTriggerSchema(),
			Handler:      NewWebhookTrigger(),
		},
		{
			AppID:        models.AppCore,
			TriggerID:    TriggerIDSchedule,
			ConfigSchema: scheduleTriggerSchema(),
			Handler:      NewScheduleTrigger(),
		},
		{
			AppID:        models.AppCore,
			TriggerID:    TriggerIDHTTPPoll,
			ConfigSchema: httpPollTriggerSchema(),
			Handler:      NewHTTPPollTrigger(),
		},
	}

	for _, desc := range triggers {
		err := reg.RegisterTrigger(desc)
		if err != nil {
			return err
		}
	}

	return nil
}
