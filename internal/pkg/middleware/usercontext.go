package middleware

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/CoinSchool/app/models"
	"github.com/ManuelReschke/CoinSchool/internal/pkg/apperror"
	"github.com/ManuelReschke/CoinSchool/internal/pkg/auth"
	"github.com/ManuelReschke/CoinSchool/internal/pkg/usercontext"
)

// TokenResolver resolves a bearer token to a user.
type TokenResolver interface {
	UserFromToken(ctx context.Context, token string) (*models.User, error)
}

// UserContextMiddleware resolves an optional bearer token for every request.
// Missing or invalid tokens leave the request anonymous; handlers decide
// whether that is acceptable.
func UserContextMiddleware(resolver TokenResolver) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := auth.BearerToken(c.Get(fiber.HeaderAuthorization))
		if token == "" || resolver == nil {
			usercontext.Set(c, nil)
			return c.Next()
		}

		user, err := resolver.UserFromToken(c.UserContext(), token)
		if err != nil {
			if apperror.KindOf(err) != apperror.KindAuthentication {
				log.Warnw("[UserContext] could not resolve bearer token", "path", c.Path(), "error", err)
			}
			usercontext.Set(c, nil)
			return c.Next()
		}

		usercontext.Set(c, user)
		return c.Next()
	}
}
