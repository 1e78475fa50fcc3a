package web

import (
	"errors"

	"github.com/dukex/chatflow/pkg/editor"
	"github.com/dukex/chatflow/pkg/flow"
	"github.com/dukex/chatflow/pkg/services"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

func badRequest(c fiber.Ctx, detail string) error {
	return invalid(c, "validation_error", detail)
}

func invalid(c fiber.Ctx, problemType, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType(problemType).
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, problemType, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType(problemType).
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func conflict(c fiber.Ctx, problemType, detail string) error {
	problem := problems.NewStatusProblem(409).
		WithInstance(c.Path()).
		WithType(problemType).
		WithDetail(detail)

	return c.Status(fiber.StatusConflict).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType(services.Code(err, "internal_error")).
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleServiceError provides typed error handling for service layer errors.
func handleServiceError(c fiber.Ctx, err error) error {
	switch {
	case services.IsValidationError(err):
		return invalid(c, services.Code(err, "validation_error"), err.Error())

	case services.IsNotFoundError(err):
		return notFound(c, notFoundType(err), err.Error())

	case flow.IsViewMode(err):
		return conflict(c, "view_mode", err.Error())

	case editor.IsWrongCardType(err):
		return conflict(c, "wrong_card_type", err.Error())

	case services.IsConflictError(err):
		return conflict(c, "conflict", err.Error())

	default:
		return internalError(c, err)
	}
}

func notFoundType(err error) string {
	switch {
	case errors.Is(err, editor.ErrCardNotFound):
		return "card_not_found"
	case errors.Is(err, editor.ErrButtonNotFound):
		return "button_not_found"
	default:
		return "node_not_found"
	}
}
