// Package main provides the Orchard worker, which drains workspace
// execution queues.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"go.opentelemetry.io/otel/trace"

	"github.com/orchardhq/orchard/pkg/eventbus"
	"github.com/orchardhq/orchard/pkg/events"
	"github.com/orchardhq/orchard/pkg/persistence"
	"github.com/orchardhq/orchard/pkg/protocol"
	"github.com/orchardhq/orchard/pkg/queue"
	"github.com/orchardhq/orchard/pkg/registry"
	"github.com/orchardhq/orchard/pkg/runner"
	"github.com/orchardhq/orchard/pkg/variables"
)

type Worker struct {
	id          string
	logger      *slog.Logger
	persistence persistence.Persistence
	registry    *registry.Registry
	eventBus    eventbus.EventBus
	ledger      protocol.CreditLedger
	tracer      trace.Tracer
}

func NewWorker(
	id string,
	p persistence.Persistence,
	reg *registry.Registry,
	eventBus eventbus.EventBus,
	ledger protocol.CreditLedger,
	tracer trace.Tracer,
	logger *slog.Logger,
) *Worker {
	return &Worker{
		id:          id,
		logger:      logger.With("worker_id", id),
		persistence: p,
		registry:    reg,
		eventBus:    eventBus,
		ledger:      ledger,
		tracer:      tracer,
	}
}

func (w *Worker) Start(ctx context.Context) error {
	w.logger.InfoContext(ctx, "Starting worker")

	executionRunner := runner.NewRunner(w.persistence, w.registry, w.ledger, variables.NewMemoryResolver(), w.eventBus, w.tracer, w.logger)
	drainer := queue.NewDrainer(w.persistence, executionRunner, w.logger)

	err := w.eventBus.Handle(events.QueueStartEventType, drainer.HandleQueueStart)
	if err != nil {
		return err
	}

	err = w.eventBus.Subscribe(ctx)
	if err != nil {
		w.logger.ErrorContext(ctx, "Failed to subscribe to event bus", "error", err)

		return err
	}

	w.logger.InfoContext(ctx, "Worker started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
	case <-ctx.Done():
	}

	w.logger.InfoContext(ctx, "Shutting down worker...")

	return nil
}
