package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/CoinSchool/internal/pkg/usercontext"
)

// RequireAPIAuth ensures a resolved user for API routes and returns JSON 401.
func RequireAPIAuth(c *fiber.Ctx) error {
	if !usercontext.IsLoggedIn(c) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Unauthorized",
		})
	}
	return c.Next()
}
