// Package main provides the Orchard scheduler: cron dispatch for schedule
// workflows, resumption of due WAITING executions, and the queue
// reconciliation sweep.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	cli "github.com/urfave/cli/v3"

	"github.com/orchardhq/orchard/pkg/cmd"
	"github.com/orchardhq/orchard/pkg/credits"
	"github.com/orchardhq/orchard/pkg/dispatch"
	"github.com/orchardhq/orchard/pkg/executions"
	"github.com/orchardhq/orchard/pkg/log"
	"github.com/orchardhq/orchard/pkg/queue"
	"github.com/orchardhq/orchard/pkg/runner"
	"github.com/orchardhq/orchard/pkg/variables"
)

const sweepSpec = "@every 30s"

func main() {
	logger := log.WithModule("scheduler")

	command := &cli.Command{
		Name:                  "orchard-scheduler",
		EnableShellCompletion: true,
		Usage:                 "Dispatch schedule workflows and resume waiting executions",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus provider (kafka, memory)",
				Value:   "kafka",
				Sources: cli.EnvVars("EVENT_BUS"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma-separated Kafka broker list",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.StringFlag{
				Name:    "pollstore-url",
				Usage:   "Poll storage URL (redis://..., or memory)",
				Value:   "memory",
				Sources: cli.EnvVars("POLLSTORE_URL"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger.InfoContext(ctx, "Initializing Orchard Scheduler")

			registry, err := cmd.NewRegistry(logger, nil)
			if err != nil {
				return err
			}

			persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				closeErr := persistence.Close(ctx)
				if closeErr != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", closeErr)
				}
			}()

			eventBus, err := cmd.NewEventBus(command.String("event-bus"), command.String("kafka-brokers"), "orchard-scheduler", logger)
			if err != nil {
				return err
			}

			defer func() {
				closeErr := eventBus.Close()
				if closeErr != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", closeErr)
				}
			}()

			polls, err := cmd.NewPollStorage(ctx, command.String("pollstore-url"))
			if err != nil {
				return err
			}

			ledger := credits.NewMemoryLedger()
			executionStore := executions.NewStore(persistence, ledger, logger)
			queueService := queue.NewService(persistence, eventBus, logger)
			executionRunner := runner.NewRunner(persistence, registry, ledger, variables.NewMemoryResolver(), eventBus, nil, logger)
			dispatcher := dispatch.NewDispatcher(executionStore, queueService, executionRunner, persistence, polls, logger)

			scheduler := dispatch.NewScheduler(dispatcher, persistence, logger)

			err = scheduler.Start(ctx)
			if err != nil {
				return err
			}
			defer scheduler.Stop()

			sweeper := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))

			_, err = sweeper.AddFunc(sweepSpec, func() {
				sweepErr := queueService.ResumeDueWaiting(ctx)
				if sweepErr != nil {
					logger.ErrorContext(ctx, "Resume sweep failed", "error", sweepErr)
				}

				sweepErr = queueService.Reconcile(ctx)
				if sweepErr != nil {
					logger.ErrorContext(ctx, "Reconcile sweep failed", "error", sweepErr)
				}
			})
			if err != nil {
				return err
			}

			sweeper.Start()
			defer sweeper.Stop()

			logger.InfoContext(ctx, "Scheduler running")

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

			select {
			case <-sigChan:
			case <-ctx.Done():
			}

			logger.InfoContext(ctx, "Shutting down scheduler...")

			return nil
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
