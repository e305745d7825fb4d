package middleware

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"

	"github.com/trailerforge/api/pkg/response"
)

// WorkerAuthMiddleware authenticates external compute workers on the callback
// surface via the X-Worker-Secret header. An empty configured secret disables
// the check, an escape hatch for local development only.
func WorkerAuthMiddleware(sharedSecret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if sharedSecret == "" {
			return c.Next()
		}

		provided := c.Get("X-Worker-Secret")
		if subtle.ConstantTimeCompare([]byte(provided), []byte(sharedSecret)) != 1 {
			return response.Unauthorized(c, "Invalid worker secret")
		}

		return c.Next()
	}
}

// GetWorkerID extracts the worker identifier header, if any. Used for request
// logging; claim and release take the worker ID from the request body.
func GetWorkerID(c *fiber.Ctx) string {
	return c.Get("X-Worker-Id")
}
