package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"

	"pdfgen/internal/domain"
	"pdfgen/internal/infra/chrome"
	"pdfgen/internal/infra/logging"
)

// ErrorHandler renders every error as {"error":{"code","message"}}, adding
// "fields" for validation failures.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	msg := "Internal Server Error"
	var fields map[string][]string

	var fe *fiber.Error
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		code, msg, fields = fiber.StatusBadRequest, "validation failed", ve.Fields
	case errors.As(err, &fe):
		code, msg = fe.Code, fe.Message
	case errors.Is(err, domain.ErrArtifactNotFound):
		code, msg = fiber.StatusNotFound, "Not Found"
	case errors.Is(err, context.DeadlineExceeded):
		code, msg = fiber.StatusRequestTimeout, "PDF rendering took too long"
	case errors.Is(err, domain.ErrSessionClosed):
		code, msg = fiber.StatusServiceUnavailable, "Browser session is shutting down"
	case errors.Is(err, domain.ErrNavigation):
		code, msg = fiber.StatusBadGateway, err.Error()
	case errors.Is(err, domain.ErrRender):
		code, msg = fiber.StatusInternalServerError, err.Error()
	case chrome.IsSessionInterrupted(err):
		code, msg = fiber.StatusServiceUnavailable, "Browser session interrupted"
	}

	if code >= fiber.StatusInternalServerError {
		logging.Error("Request failed", "path", c.Path(), "status", code, "error", err.Error())
	} else {
		logging.Warn("Request failed", "path", c.Path(), "status", code, "message", msg)
	}

	body := fiber.Map{
		"code":    code,
		"message": msg,
	}
	if fields != nil {
		body["fields"] = fields
	}
	return c.Status(code).JSON(fiber.Map{"error": body})
}
