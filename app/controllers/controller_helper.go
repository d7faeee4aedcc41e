package controllers

import (
	"net"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/CoinSchool/internal/pkg/apperror"
)

// writeError renders err as {error} with the status of its kind. Internal
// causes never reach the client.
func writeError(c *fiber.Ctx, err error) error {
	return c.Status(apperror.HTTPStatus(err)).JSON(fiber.Map{
		"error": apperror.PublicMessage(err),
	})
}

// clientIP returns the caller's address for audit rows. Proxy headers are
// checked first (Cloudflare, then the left-most X-Forwarded-For entry, then
// X-Real-IP); IPv4-mapped IPv6 addresses are reported as IPv4.
func clientIP(c *fiber.Ctx) string {
	candidates := []string{
		c.Get("CF-Connecting-IP"),
		firstForwarded(c.Get(fiber.HeaderXForwardedFor)),
		c.Get("X-Real-IP"),
		c.IP(),
	}
	for _, raw := range candidates {
		if ip := normalizeIP(raw); ip != "" {
			return ip
		}
	}
	return ""
}

func firstForwarded(header string) string {
	first, _, _ := strings.Cut(header, ",")
	return first
}

func normalizeIP(raw string) string {
	ip := net.ParseIP(strings.TrimSpace(raw))
	if ip == nil {
		return ""
	}
	if v4 := ip.To4(); v4 != nil {
		return v4.String()
	}
	return ip.String()
}
