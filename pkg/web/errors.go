package web

import (
	"errors"

	"github.com/dukex/flowscope/pkg/operations"
	"github.com/dukex/flowscope/pkg/readmodel"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
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

func unprocessable(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(422).
		WithInstance(c.Path()).
		WithType("batch_too_large").
		WithDetail(detail)

	return c.Status(fiber.StatusUnprocessableEntity).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleReadError provides typed error handling for read-model errors.
func handleReadError(c fiber.Ctx, err error) error {
	switch {
	case readmodel.IsValidationError(err):
		return badRequest(c, err.Error())
	case readmodel.IsNotFound(err):
		return notFound(c, "workflow instance not found")
	default:
		return internalError(c, err)
	}
}

// handleOperationError provides typed error handling for batch-operation
// errors. An oversized batch surfaces as 422 with the full admission message.
func handleOperationError(c fiber.Ctx, err error) error {
	switch {
	case operations.IsValidationError(err):
		return badRequest(c, err.Error())
	case errors.Is(err, operations.ErrTooManyInstances):
		return unprocessable(c, err.Error())
	case readmodel.IsValidationError(err):
		return badRequest(c, err.Error())
	default:
		return internalError(c, err)
	}
}
