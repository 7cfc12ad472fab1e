package eventbus_test

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orchardhq/orchard/pkg/channels/gochannel"
	"github.com/orchardhq/orchard/pkg/eventbus"
	"github.com/orchardhq/orchard/pkg/events"
)

func newTestBus(t *testing.T) *eventbus.WatermillEventBus {
	t.Helper()

	pub, sub, err := gochannel.CreateTestChannel(watermill.NopLogger{})
	require.NoError(t, err)

	return eventbus.NewWatermillEventBus(pub, sub)
}

func TestPublishDeliversTypedEvent(t *testing.T) {
	bus := newTestBus(t)

	received := make(chan *events.QueueStart, 1)

	err := bus.Handle(events.QueueStartEventType, func(_ context.Context, event any) error {
		queueStart, ok := event.(*events.QueueStart)
		require.True(t, ok)
		received <- queueStart

		return nil
	})
	require.NoError(t, err)

	require.NoError(t, bus.Subscribe(t.Context()))

	err = bus.Publish(t.Context(), events.QueueStart{
		BaseEvent: events.NewBaseEvent(events.QueueStartEventType, "ws-1"),
	})
	require.NoError(t, err)

	select {
	case event := <-received:
		assert.Equal(t, "ws-1", event.WorkspaceID)
		assert.Equal(t, "ws-1", event.Key())
		assert.Equal(t, events.QueueStartEventType, event.GetType())
	case <-time.After(2 * time.Second):
		t.Fatal("event was not delivered")
	}
}

func TestUnhandledEventTypesAreSkipped(t *testing.T) {
	bus := newTestBus(t)

	received := make(chan *events.ExecutionFailed, 2)

	err := bus.Handle(events.ExecutionFailedEventType, func(_ context.Context, event any) error {
		failed, ok := event.(*events.ExecutionFailed)
		require.True(t, ok)
		received <- failed

		return nil
	})
	require.NoError(t, err)

	require.NoError(t, bus.Subscribe(t.Context()))

	// No handler for completed events; the subscriber acks and moves on.
	require.NoError(t, bus.Publish(t.Context(), events.ExecutionCompleted{
		BaseEvent:   events.NewBaseEvent(events.ExecutionCompletedEventType, "ws-1"),
		ExecutionID: "exec-1",
	}))

	require.NoError(t, bus.Publish(t.Context(), events.ExecutionFailed{
		BaseEvent:   events.NewBaseEvent(events.ExecutionFailedEventType, "ws-1"),
		ExecutionID: "exec-2",
		Error:       "rate limited",
	}))

	select {
	case event := <-received:
		assert.Equal(t, "exec-2", event.ExecutionID)
		assert.Equal(t, "rate limited", event.Error)
	case <-time.After(2 * time.Second):
		t.Fatal("event was not delivered")
	}
}
