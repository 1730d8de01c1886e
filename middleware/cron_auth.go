package middleware

import (
	"crypto/subtle"
	"strings"

	"riseloop/config"

	"github.com/gofiber/fiber/v2"
)

// CronProtected guards the scheduled-job endpoints with the shared secret
// the external scheduler sends as a bearer token.
func CronProtected() fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Authorization required",
			})
		}

		tokenParts := strings.Split(authHeader, " ")
		if len(tokenParts) != 2 || tokenParts[0] != "Bearer" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid authorization format",
			})
		}

		secret := config.AppConfig.CronSecret
		if secret == "" || subtle.ConstantTimeCompare([]byte(tokenParts[1]), []byte(secret)) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid cron secret",
			})
		}

		return c.Next()
	}
}
