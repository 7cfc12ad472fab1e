package cmd

import (
	"log/slog"

	"github.com/orchardhq/orchard/pkg/handlers"
	"github.com/orchardhq/orchard/pkg/protocol"
	"github.com/orchardhq/orchard/pkg/registry"
)

// NewRegistry builds the handler registry with the core app installed and
// freezes it.
func NewRegistry(logger *slog.Logger, messenger protocol.AgentMessenger) (*registry.Registry, error) {
	if messenger == nil {
		messenger = handlers.NewLoggingMessenger(logger)
	}

	reg := registry.NewRegistry(logger)

	err := handlers.RegisterAll(reg, messenger)
	if err != nil {
		return nil, err
	}

	reg.Freeze()

	return reg, nil
}
