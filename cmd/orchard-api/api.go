// Package main provides the Orchard API server.
package main

import (
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/orchardhq/orchard/pkg/agents"
	"github.com/orchardhq/orchard/pkg/dispatch"
	"github.com/orchardhq/orchard/pkg/eventbus"
	"github.com/orchardhq/orchard/pkg/executions"
	"github.com/orchardhq/orchard/pkg/persistence"
	"github.com/orchardhq/orchard/pkg/pollstore"
	"github.com/orchardhq/orchard/pkg/protocol"
	"github.com/orchardhq/orchard/pkg/queue"
	"github.com/orchardhq/orchard/pkg/registry"
	"github.com/orchardhq/orchard/pkg/runner"
	"github.com/orchardhq/orchard/pkg/variables"
	"github.com/orchardhq/orchard/pkg/web"
	"github.com/orchardhq/orchard/pkg/workflows"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	registry    *registry.Registry
	eventBus    eventbus.EventBus
	ledger      protocol.CreditLedger
	polls       pollstore.PollStorage
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	p persistence.Persistence,
	reg *registry.Registry,
	eventBus eventbus.EventBus,
	ledger protocol.CreditLedger,
	polls pollstore.PollStorage,
) *API {
	return &API{
		logger:      logger,
		persistence: p,
		registry:    reg,
		eventBus:    eventBus,
		ledger:      ledger,
		polls:       polls,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	workflowService := workflows.NewService(a.persistence, a.registry, a.logger)
	executionStore := executions.NewStore(a.persistence, a.ledger, a.logger)
	queueService := queue.NewService(a.persistence, a.eventBus, a.logger)
	executionRunner := runner.NewRunner(a.persistence, a.registry, a.ledger, variables.NewMemoryResolver(), a.eventBus, nil, a.logger)
	dispatcher := dispatch.NewDispatcher(executionStore, queueService, executionRunner, a.persistence, a.polls, a.logger)
	synchronizer := agents.NewSynchronizer(a.persistence, a.logger)

	handlers := web.NewAPIHandlers(workflowService, executionStore, dispatcher, synchronizer, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Orchard API")
	})

	app.Get("/health", handlers.HealthCheck)

	w := app.Group("/workflows")
	w.Get("/", handlers.GetWorkflows)
	w.Post("/", handlers.CreateWorkflow)
	w.Get("/:id", handlers.GetWorkflow)
	w.Put("/:id", handlers.UpdateWorkflow)
	w.Delete("/:id", handlers.DeleteWorkflow)
	w.Post("/:id/run", handlers.RunWorkflow)
	w.Get("/:id/test-event", handlers.GetWebhookTestEvent)

	e := app.Group("/executions")
	e.Get("/", handlers.GetExecutions)
	e.Get("/:id", handlers.GetExecution)
	e.Post("/:id/stop", handlers.StopExecution)

	app.Post("/agents/:id/triggers/sync", handlers.SyncAgentTriggers)

	app.All("/webhooks/*", handlers.HandleWebhook)

	return app
}

func (a *API) Start(port int) error {
	return a.App().Listen(":" + strconv.Itoa(port))
}
