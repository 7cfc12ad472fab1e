package main

import (
	"context"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/orchardhq/orchard/pkg/cmd"
	"github.com/orchardhq/orchard/pkg/credits"
	"github.com/orchardhq/orchard/pkg/log"
)

const defaultPort = 9091

func main() {
	logger := log.WithModule("api")

	command := &cli.Command{
		Name:                  "orchard-api",
		Usage:                 "Manage workflows, executions and agent triggers",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
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

			logger.InfoContext(ctx, "Initializing Orchard API")

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

			eventBus, err := cmd.NewEventBus(command.String("event-bus"), command.String("kafka-brokers"), "orchard-api", logger)
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

			api := NewAPI(logger, persistence, registry, eventBus, credits.NewMemoryLedger(), polls)

			return api.Start(command.Int("port"))
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		logger.Error("API server exited", "error", err)
		os.Exit(1)
	}
}
