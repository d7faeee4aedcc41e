package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2/log"
	"github.com/golang-jwt/jwt/v5"
	"gorm.io/gorm"

	"github.com/ManuelReschke/CoinSchool/app/models"
	"github.com/ManuelReschke/CoinSchool/app/repository"
	"github.com/ManuelReschke/CoinSchool/internal/pkg/apperror"
)

// Authenticator verifies bearer tokens issued by the auth provider and loads
// the matching user row. Tokens are HS256 with a required exp claim; sub
// carries the user id.
type Authenticator struct {
	secret []byte
	users  repository.UserRepository
	parser *jwt.Parser
}

func NewAuthenticator(secret string, users repository.UserRepository) *Authenticator {
	return &Authenticator{
		secret: []byte(secret),
		users:  users,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
		),
	}
}

// Subject validates the token and returns its subject.
func (a *Authenticator) Subject(token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" || len(a.secret) == 0 {
		return "", apperror.Authentication("")
	}

	claims := jwt.RegisteredClaims{}
	parsed, err := a.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	})
	if err != nil || !parsed.Valid {
		return "", apperror.Authentication("")
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return "", apperror.Authentication("")
	}
	return claims.Subject, nil
}

// UserFromToken resolves a bearer token to the stored user.
func (a *Authenticator) UserFromToken(ctx context.Context, token string) (*models.User, error) {
	subject, err := a.Subject(token)
	if err != nil {
		return nil, err
	}

	user, err := a.users.GetByID(ctx, subject)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("User")
		}
		log.Errorw("[Auth] user lookup failed", "user_id", subject, "error", err)
		return nil, apperror.Upstream("auth.user_lookup", err)
	}
	return user, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}
