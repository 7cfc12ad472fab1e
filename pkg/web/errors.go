package web

import (
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"

	"github.com/orchardhq/orchard/pkg/executions"
	"github.com/orchardhq/orchard/pkg/persistence"
	"github.com/orchardhq/orchard/pkg/protocol"
	"github.com/orchardhq/orchard/pkg/workflows"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType("not_found").
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleServiceError maps engine errors onto RFC 7807 responses.
func handleServiceError(c fiber.Ctx, err error) error {
	switch {
	case workflows.IsValidationError(err):
		problem := problems.NewStatusProblem(400).
			WithInstance(c.Path()).
			WithType("validation_error").
			WithDetail(err.Error())

		return c.Status(fiber.StatusBadRequest).JSON(problem)

	case executions.IsWorkflowInactive(err):
		problem := problems.NewStatusProblem(409).
			WithInstance(c.Path()).
			WithType("workflow_inactive").
			WithDetail(err.Error())

		return c.Status(fiber.StatusConflict).JSON(problem)

	case executions.IsInvalidTriggerStrategy(err):
		problem := problems.NewStatusProblem(409).
			WithInstance(c.Path()).
			WithType("invalid_trigger_strategy").
			WithDetail(err.Error())

		return c.Status(fiber.StatusConflict).JSON(problem)

	case protocol.IsInsufficientCredits(err):
		problem := problems.NewStatusProblem(402).
			WithInstance(c.Path()).
			WithType("insufficient_credits").
			WithDetail("workspace has insufficient credits")

		return c.Status(fiber.StatusPaymentRequired).JSON(problem)

	case persistence.IsWorkflowNotFound(err):
		return notFound(c, "workflow not found")

	case persistence.IsExecutionNotFound(err):
		return notFound(c, "execution not found")

	case persistence.IsAgentTriggerNotFound(err):
		return notFound(c, "agent trigger not found")

	default:
		return internalError(c, err)
	}
}
