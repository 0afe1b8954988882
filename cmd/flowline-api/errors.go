package main

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"

	"github.com/flowlinehq/flowline/pkg/dispatcher"
	"github.com/flowlinehq/flowline/pkg/persistence"
	"github.com/flowlinehq/flowline/pkg/services"
	"github.com/flowlinehq/flowline/pkg/statestore"
	"github.com/flowlinehq/flowline/pkg/timeout"
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

func conflict(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(409).
		WithInstance(c.Path()).
		WithType("conflict").
		WithDetail(detail)

	return c.Status(fiber.StatusConflict).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleServiceError maps service and infrastructure errors to RFC 7807
// responses.
func handleServiceError(c fiber.Ctx, err error) error {
	switch {
	case services.IsValidationError(err):
		return badRequest(c, err.Error())

	case errors.Is(err, services.ErrWorkflowNotDraft),
		errors.Is(err, persistence.ErrWorkflowNotPublished),
		errors.Is(err, dispatcher.ErrExecutionFinished):
		return conflict(c, err.Error())

	case errors.Is(err, persistence.ErrWorkflowNotFound):
		return notFound(c, "workflow not found")

	case errors.Is(err, persistence.ErrExecutionNotFound),
		errors.Is(err, statestore.ErrContextNotFound):
		return notFound(c, "execution not found")

	case errors.Is(err, timeout.ErrInterventionNotFound):
		return notFound(c, "intervention not found or already resolved")

	case errors.Is(err, timeout.ErrTimeoutNotTracked):
		return notFound(c, "execution is not tracked by the timeout manager")

	default:
		return internalError(c, err)
	}
}
