package transport

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"github.com/kursadbilgin/birthday-reminder/internal/observability"
	"go.uber.org/zap"
)

const requestIDLocal = "requestid"

// NewApp returns a fiber app with the shared error handler and middleware
// chain. Routes are registered by the caller.
func NewApp(logger *zap.Logger, metrics *observability.Metrics) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "birthday-reminder",
		DisableStartupMessage: true,
		ErrorHandler:          ErrorHandler(logger),
	})

	app.Use(recover.New())
	app.Use(RequestID(), RequestContext)
	if metrics != nil {
		app.Use(metrics.HTTPMiddleware())
	}
	return app
}

// RequestID keeps an inbound X-Request-ID or generates a uuid, and echoes it
// on the response.
func RequestID() fiber.Handler {
	return requestid.New(requestid.Config{
		Header:     fiber.HeaderXRequestID,
		Generator:  uuid.NewString,
		ContextKey: requestIDLocal,
	})
}

// RequestContext copies the request id into the user context so service
// logs carry it. It must run after RequestID.
func RequestContext(c *fiber.Ctx) error {
	if id, ok := c.Locals(requestIDLocal).(string); ok && id != "" {
		c.SetUserContext(observability.WithRequestID(c.UserContext(), id))
	}
	return c.Next()
}
