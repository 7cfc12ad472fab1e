// Package eventbus provides publish/subscribe messaging for engine events.
package eventbus

import (
	"context"

	"github.com/orchardhq/orchard/pkg/events"
)

type EventHandler func(ctx context.Context, event any) error

type EventBus interface {
	Publish(ctx context.Context, event events.Event) error
	Handle(eventType events.EventType, handler EventHandler) error
	Subscribe(ctx context.Context) error
	GenerateID() string
	Close() error
}
