package dispatch

import (
	"context"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/orchardhq/orchard/pkg/models"
	"github.com/orchardhq/orchard/pkg/persistence"
)

const scheduleRefreshSpec = "@every 1m"

// Scheduler keeps one cron entry per active schedule workflow, dispatching
// a run on every tick. Entries are reconciled against the workflow store
// every minute, so activations and edits take effect without a restart.
type Scheduler struct {
	dispatcher  *Dispatcher
	persistence persistence.Persistence
	logger      *slog.Logger
	cron        *cron.Cron

	mu      sync.Mutex
	entries map[string]scheduleEntry
}

type scheduleEntry struct {
	id   cron.EntryID
	spec string
}

func NewScheduler(dispatcher *Dispatcher, p persistence.Persistence, logger *slog.Logger) *Scheduler {
	logger = logger.With("module", "scheduler")

	return &Scheduler{
		dispatcher:  dispatcher,
		persistence: p,
		logger:      logger,
		cron: cron.New(
			cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)),
		),
		entries: make(map[string]scheduleEntry),
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	err := s.refresh(ctx)
	if err != nil {
		return err
	}

	_, err = s.cron.AddFunc(scheduleRefreshSpec, func() {
		refreshErr := s.refresh(ctx)
		if refreshErr != nil {
			s.logger.ErrorContext(ctx, "Failed to refresh schedules", "error", refreshErr)
		}
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	s.logger.InfoContext(ctx, "Scheduler started")

	return nil
}

// Stop halts the cron runner and waits for in-flight jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("Scheduler stopped")
}

func (s *Scheduler) refresh(ctx context.Context) error {
	workflows, err := s.persistence.WorkflowRepository().GetActiveByStrategy(ctx, models.StrategySchedule)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	active := make(map[string]bool, len(workflows))

	for _, workflow := range workflows {
		trigger := workflow.TriggerNode()
		if trigger == nil {
			continue
		}

		spec, _ := trigger.Value["cron"].(string)
		if spec == "" {
			continue
		}

		active[workflow.ID] = true

		existing, ok := s.entries[workflow.ID]
		if ok && existing.spec == spec {
			continue
		}

		if ok {
			s.cron.Remove(existing.id)
		}

		entryID, err := s.cron.AddFunc(spec, s.tickFunc(ctx, workflow.ID))
		if err != nil {
			s.logger.ErrorContext(ctx, "Invalid cron expression",
				"workflow_id", workflow.ID, "cron", spec, "error", err)

			continue
		}

		s.entries[workflow.ID] = scheduleEntry{id: entryID, spec: spec}
		s.logger.InfoContext(ctx, "Schedule registered", "workflow_id", workflow.ID, "cron", spec)
	}

	for workflowID, entry := range s.entries {
		if active[workflowID] {
			continue
		}

		s.cron.Remove(entry.id)
		delete(s.entries, workflowID)
		s.logger.InfoContext(ctx, "Schedule removed", "workflow_id", workflowID)
	}

	return nil
}

func (s *Scheduler) tickFunc(ctx context.Context, workflowID string) func() {
	return func() {
		execution, err := s.dispatcher.HandleSchedule(ctx, workflowID)
		if err != nil {
			s.logger.ErrorContext(ctx, "Failed to dispatch scheduled run",
				"workflow_id", workflowID, "error", err)

			return
		}

		s.logger.InfoContext(ctx, "Scheduled run dispatched",
			"workflow_id", workflowID, "execution_id", execution.ID)
	}
}
