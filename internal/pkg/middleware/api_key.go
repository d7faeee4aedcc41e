package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/CoinSchool/internal/pkg/auth"
	"github.com/ManuelReschke/CoinSchool/internal/pkg/usercontext"
)

// ServiceKeyMiddleware guards operator endpoints with the service role key.
// The key is accepted from X-API-Key or an Authorization bearer header.
func ServiceKeyMiddleware(serviceKey string) fiber.Handler {
	expected := []byte(strings.TrimSpace(serviceKey))
	return func(c *fiber.Ctx) error {
		if len(expected) == 0 {
			log.Error("[ServiceKey] service role key not configured")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Server configuration error"})
		}

		apiKey := extractAPIKeyFromHeader(c)
		if apiKey == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Missing API key"})
		}
		if subtle.ConstantTimeCompare([]byte(apiKey), expected) != 1 {
			log.Warnw("[ServiceKey] invalid key", "ip", c.IP(), "path", c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid API key"})
		}

		c.Locals(usercontext.KeyServiceRole, true)
		return c.Next()
	}
}

func extractAPIKeyFromHeader(c *fiber.Ctx) string {
	apiKey := strings.TrimSpace(c.Get("X-API-Key"))
	if apiKey != "" {
		return apiKey
	}
	return auth.BearerToken(c.Get(fiber.HeaderAuthorization))
}
