package serverutils

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

// ErrorHandlerMiddleware converts handler errors into JSON responses.
// fiber.Error keeps its status code; everything else becomes a 500 without
// leaking internals.
func ErrorHandlerMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()
		if err == nil {
			return nil
		}

		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			return c.Status(fiberErr.Code).JSON(ErrorResponse(fiberErr.Message))
		}

		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse("Internal server error"))
	}
}
