package middleware

import (
	"coitrack-backend/internal/pkg/apperrors"
	"coitrack-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// ErrorHandler is the global error handler. Returns the standard error
// format; workflow error types map onto their status codes so the UI sees
// which guard failed instead of a generic failure.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"
	details := map[string]interface{}{}

	switch {
	case apperrors.IsValidation(err):
		code = fiber.StatusBadRequest
		message = err.Error()
	case apperrors.IsConflict(err):
		code = fiber.StatusConflict
		message = err.Error()
	case apperrors.IsNotFound(err):
		code = fiber.StatusNotFound
		message = err.Error()
	default:
		if e, ok := err.(*fiber.Error); ok {
			code = e.Code
			message = e.Message
		}
	}

	return response.Error(c, message, code, details)
}
