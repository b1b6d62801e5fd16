package transport

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/birthday-reminder/internal/observability"
	"go.uber.org/zap"
)

// ErrorHandler renders every handler error as {"error": "..."}.
func ErrorHandler(logger *zap.Logger) fiber.ErrorHandler {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			code = fiberErr.Code
		}

		log := observability.ContextLogger(logger, c.UserContext()).With(
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", code),
			zap.Error(err),
		)
		if code >= fiber.StatusInternalServerError {
			log.Error("request error")
		} else {
			log.Warn("request rejected")
		}

		return c.Status(code).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
}
