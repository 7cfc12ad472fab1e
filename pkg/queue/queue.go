// Package queue serializes dispatched executions per workspace. Every
// admitted schedule, webhook, poll or agent run is appended to its
// workspace's FIFO queue, and the drainer runs at most one execution per
// workspace at a time. Wake-up signals travel on the event bus keyed by
// workspace id, so a partitioned transport keeps each workspace's signals
// on one consumer. Manual run-now executions bypass the queue and run
// inline in the caller.
package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/orchardhq/orchard/pkg/eventbus"
	"github.com/orchardhq/orchard/pkg/events"
	"github.com/orchardhq/orchard/pkg/models"
	"github.com/orchardhq/orchard/pkg/persistence"
)

// ExecutionRunner advances one execution until it settles.
type ExecutionRunner interface {
	Run(ctx context.Context, executionID string) error
}

type Service struct {
	persistence persistence.Persistence
	eventBus    eventbus.EventBus
	logger      *slog.Logger
}

func NewService(p persistence.Persistence, bus eventbus.EventBus, logger *slog.Logger) *Service {
	return &Service{
		persistence: p,
		eventBus:    bus,
		logger:      logger.With("module", "queue"),
	}
}

// Enqueue appends the execution to its workspace queue and signals the
// drainer. A failed signal is not fatal: the reconciliation sweep re-emits
// wake-ups for every non-empty queue.
func (s *Service) Enqueue(ctx context.Context, execution *models.Execution) (*models.WorkspaceExecutionQueueItem, error) {
	item, err := s.persistence.QueueRepository().Append(ctx, execution.WorkspaceID, execution.ID)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "Execution enqueued",
		"execution_id", execution.ID,
		"workspace_id", execution.WorkspaceID,
		"position", item.Position)

	err = s.eventBus.Publish(ctx, events.QueueStart{
		BaseEvent: events.NewBaseEvent(events.QueueStartEventType, execution.WorkspaceID),
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish queue start signal",
			"workspace_id", execution.WorkspaceID, "error", err)
	}

	return item, nil
}

// ResumeDueWaiting re-enqueues every WAITING execution whose continuation
// time has arrived. Going back through the queue keeps the workspace's
// concurrency-of-one intact on resume.
func (s *Service) ResumeDueWaiting(ctx context.Context) error {
	due, err := s.persistence.ExecutionRepository().ListDueWaiting(ctx, time.Now().UTC())
	if err != nil {
		return err
	}

	for _, execution := range due {
		_, err = s.Enqueue(ctx, execution)
		if err != nil {
			s.logger.ErrorContext(ctx, "Failed to re-enqueue waiting execution",
				"execution_id", execution.ID, "error", err)
		}
	}

	return nil
}

// Reconcile re-emits a wake-up for every workspace that still holds queue
// items. Run periodically, it recovers queues whose signal was lost to a
// crash between append and publish.
func (s *Service) Reconcile(ctx context.Context) error {
	workspaceIDs, err := s.persistence.QueueRepository().NonEmptyWorkspaces(ctx)
	if err != nil {
		return err
	}

	for _, workspaceID := range workspaceIDs {
		err = s.eventBus.Publish(ctx, events.QueueStart{
			BaseEvent: events.NewBaseEvent(events.QueueStartEventType, workspaceID),
		})
		if err != nil {
			s.logger.ErrorContext(ctx, "Failed to publish reconcile signal",
				"workspace_id", workspaceID, "error", err)

			continue
		}

		s.logger.DebugContext(ctx, "Reconcile signal sent", "workspace_id", workspaceID)
	}

	return nil
}

// Drainer consumes queue.start signals and drains workspace queues one
// item at a time. The in-flight guard makes duplicate signals idempotent:
// a second signal for a workspace already draining is dropped.
type Drainer struct {
	persistence persistence.Persistence
	runner      ExecutionRunner
	logger      *slog.Logger

	mu       sync.Mutex
	inFlight map[string]bool
}

func NewDrainer(p persistence.Persistence, runner ExecutionRunner, logger *slog.Logger) *Drainer {
	return &Drainer{
		persistence: p,
		runner:      runner,
		logger:      logger.With("module", "queue-drainer"),
		inFlight:    make(map[string]bool),
	}
}

// HandleQueueStart is the event bus handler for queue.start. Draining
// runs on its own goroutine: the bus delivers signals sequentially per
// consumer, so a drain executed inline would hold up every other
// workspace's wake-up behind one workspace's backlog. The in-flight guard
// absorbs duplicate signals and the reconciliation sweep recovers drains
// that fail after the signal is acked.
func (d *Drainer) HandleQueueStart(ctx context.Context, event any) error {
	queueStart, ok := event.(*events.QueueStart)
	if !ok {
		d.logger.Error("Unexpected event payload for queue start", "event", event)

		return nil
	}

	go func() {
		err := d.Drain(ctx, queueStart.WorkspaceID)
		if err != nil {
			d.logger.ErrorContext(ctx, "Failed to drain workspace queue",
				"workspace_id", queueStart.WorkspaceID, "error", err)
		}
	}()

	return nil
}

// Drain runs the workspace queue until it is empty or an item cannot be
// processed. A failed drain leaves the item in place; the next signal or
// the reconciliation sweep retries it.
func (d *Drainer) Drain(ctx context.Context, workspaceID string) error {
	if !d.acquire(workspaceID) {
		d.logger.DebugContext(ctx, "Workspace already draining", "workspace_id", workspaceID)

		return nil
	}
	defer d.release(workspaceID)

	logger := d.logger.With("workspace_id", workspaceID)

	for {
		item, err := d.persistence.QueueRepository().PeekOldest(ctx, workspaceID)
		if err != nil {
			return err
		}

		if item == nil {
			return nil
		}

		processed, err := d.processItem(ctx, logger, item)
		if err != nil {
			return err
		}

		if !processed {
			return nil
		}
	}
}

// processItem runs one queue item's execution. Returns false when the item
// was left in place for a later retry.
func (d *Drainer) processItem(ctx context.Context, logger *slog.Logger, item *models.WorkspaceExecutionQueueItem) (bool, error) {
	execution, err := d.persistence.ExecutionRepository().GetByID(ctx, item.ExecutionID)
	if err != nil {
		if persistence.IsExecutionNotFound(err) {
			// Orphaned item, drop it and keep draining.
			logger.Warn("Queue item references missing execution",
				"item_id", item.ID, "execution_id", item.ExecutionID)

			return true, d.persistence.QueueRepository().DeleteItem(ctx, item.ID)
		}

		return false, err
	}

	if execution.Status.IsTerminal() {
		return true, d.persistence.QueueRepository().DeleteItem(ctx, item.ID)
	}

	if execution.Status == models.ExecutionStatusWaiting && !continuationDue(execution) {
		// Not due yet: the resume sweep re-enqueues it when the time comes.
		return true, d.persistence.QueueRepository().DeleteItem(ctx, item.ID)
	}

	logger.InfoContext(ctx, "Draining execution",
		"execution_id", execution.ID, "position", item.Position)

	err = d.runner.Run(ctx, execution.ID)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to run execution, leaving queue item",
			"execution_id", execution.ID, "error", err)

		return false, err
	}

	err = d.persistence.QueueRepository().DeleteItem(ctx, item.ID)
	if err != nil {
		return false, err
	}

	return true, nil
}

func continuationDue(execution *models.Execution) bool {
	if execution.ContinueExecutionAt == nil {
		return true
	}

	return !time.Now().UTC().Before(*execution.ContinueExecutionAt)
}

func (d *Drainer) acquire(workspaceID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.inFlight[workspaceID] {
		return false
	}

	d.inFlight[workspaceID] = true

	return true
}

func (d *Drainer) release(workspaceID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.inFlight, workspaceID)
}
