package middleware

import (
	"strings"

	"riseloop/utils"

	"github.com/gofiber/fiber/v2"
)

// Protected guards operator endpoints (rule and campaign CRUD) with an
// operator JWT. End-user authentication lives in the main platform, not
// here.
func Protected() fiber.Handler {
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

		claims, err := utils.ParseOperatorToken(tokenParts[1])
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid or expired token",
			})
		}

		if claims.Role != "operator" {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Operator role required",
			})
		}

		c.Locals("operator", claims.Name)
		return c.Next()
	}
}
