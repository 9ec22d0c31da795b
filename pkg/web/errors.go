package web

import (
	"errors"

	"github.com/dukex/crmflow/pkg/persistence"
	"github.com/dukex/crmflow/pkg/services"
	"github.com/dukex/crmflow/pkg/triggers"
	"github.com/dukex/crmflow/pkg/workflow"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

func problem(c fiber.Ctx, status int, kind, detail string) error {
	p := problems.NewStatusProblem(status).
		WithInstance(c.Path()).
		WithType(kind).
		WithDetail(detail)

	return c.Status(status).JSON(p)
}

func badRequest(c fiber.Ctx, detail string) error {
	return problem(c, fiber.StatusBadRequest, "validation_error", detail)
}

// handleServiceError maps service, engine and persistence errors to problems.
func handleServiceError(c fiber.Ctx, err error) error {
	switch {
	case services.IsValidationError(err):
		return badRequest(c, err.Error())

	case errors.Is(err, triggers.ErrUnknownTriggerType):
		return badRequest(c, err.Error())

	case errors.Is(err, workflow.ErrNoTriggerNode):
		return problem(c, fiber.StatusUnprocessableEntity, "no_trigger_node", err.Error())

	case services.IsConflictError(err):
		return problem(c, fiber.StatusConflict, "conflict", err.Error())

	case errors.Is(err, workflow.ErrNoExecutionRunning):
		return problem(c, fiber.StatusConflict, "execution_not_running", err.Error())

	case persistence.IsWorkflowNotFound(err):
		return problem(c, fiber.StatusNotFound, "workflow_not_found", "workflow not found")

	case persistence.IsExecutionNotFound(err), errors.Is(err, workflow.ErrExecutionNotFound):
		return problem(c, fiber.StatusNotFound, "execution_not_found", "execution not found")

	default:
		p := problems.NewStatusProblem(fiber.StatusInternalServerError).
			WithInstance(c.Path()).
			WithType("internal_error").
			WithError(err)

		return c.Status(fiber.StatusInternalServerError).JSON(p)
	}
}
