package web

import (
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"

	"github.com/ebarkov/veriflow/pkg/persistence"
	"github.com/ebarkov/veriflow/pkg/services"
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

func unauthorized(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(401).
		WithInstance(c.Path()).
		WithType("authentication_error").
		WithDetail(detail)

	return c.Status(fiber.StatusUnauthorized).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleServiceError provides typed error handling for service layer errors.
func handleServiceError(c fiber.Ctx, err error) error {
	switch {
	case services.IsAuditLocked(err):
		problem := problems.NewStatusProblem(fiber.StatusLocked).
			WithInstance(c.Path()).
			WithType("audit_mode_lock").
			WithDetail(err.Error())

		return c.Status(fiber.StatusLocked).JSON(problem)

	case services.IsAuthorizationError(err):
		problem := problems.NewStatusProblem(403).
			WithInstance(c.Path()).
			WithType("authorization_error").
			WithDetail(err.Error())

		return c.Status(fiber.StatusForbidden).JSON(problem)

	case services.IsIllegalTransition(err):
		// The detail names the current and requested states.
		problem := problems.NewStatusProblem(400).
			WithInstance(c.Path()).
			WithType("illegal_transition").
			WithDetail(err.Error())

		return c.Status(fiber.StatusBadRequest).JSON(problem)

	case services.IsValidationError(err):
		problem := problems.NewStatusProblem(400).
			WithInstance(c.Path()).
			WithType("validation_error").
			WithDetail(err.Error())

		return c.Status(fiber.StatusBadRequest).JSON(problem)

	case services.IsConflictError(err):
		problem := problems.NewStatusProblem(409).
			WithInstance(c.Path()).
			WithType("conflict").
			WithDetail(err.Error())

		return c.Status(fiber.StatusConflict).JSON(problem)

	case persistence.IsDocumentNotFound(err):
		return notFound(c, "document not found")

	case persistence.IsTaskNotFound(err):
		return notFound(c, "task not found")

	case persistence.IsAssignmentNotFound(err):
		return notFound(c, "assignment not found")

	case persistence.IsUserNotFound(err):
		return notFound(c, "user not found")

	case persistence.IsAuditSessionNotFound(err):
		return notFound(c, "audit session not found")

	default:
		// Log unexpected errors but don't expose details
		return internalError(c, err)
	}
}
