// Package main provides the Orchard poller, which evaluates poll
// workflows on an interval and dispatches one execution per new item.
package main

import (
	"context"
	"errors"
	"os"

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

func main() {
	logger := log.WithModule("poller")

	command := &cli.Command{
		Name:                  "orchard-poller",
		EnableShellCompletion: true,
		Usage:                 "Poll external sources for poll-strategy workflows",
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
			&cli.DurationFlag{
				Name:    "interval",
				Usage:   "Poll cycle interval",
				Value:   dispatch.DefaultPollInterval,
				Sources: cli.EnvVars("POLL_INTERVAL"),
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

			logger.InfoContext(ctx, "Initializing Orchard Poller")

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

			eventBus, err := cmd.NewEventBus(command.String("event-bus"), command.String("kafka-brokers"), "orchard-poller", logger)
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

			defer func() {
				closeErr := polls.Close()
				if closeErr != nil {
					logger.ErrorContext(ctx, "Failed to close poll storage", "error", closeErr)
				}
			}()

			ledger := credits.NewMemoryLedger()
			executionStore := executions.NewStore(persistence, ledger, logger)
			queueService := queue.NewService(persistence, eventBus, logger)
			executionRunner := runner.NewRunner(persistence, registry, ledger, variables.NewMemoryResolver(), eventBus, nil, logger)
			dispatcher := dispatch.NewDispatcher(executionStore, queueService, executionRunner, persistence, polls, logger)

			poller := dispatch.NewPoller(dispatcher, persistence, registry, polls, nil, command.Duration("interval"), logger)

			err = poller.Start(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}

			return nil
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
