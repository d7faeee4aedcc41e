package usercontext

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/CoinSchool/app/models"
)

// UserContext represents the caller of the current request
type UserContext struct {
	UserID     string `json:"user_id"`
	Email      string `json:"email"`
	IsLoggedIn bool   `json:"is_logged_in"`
}

// Set stores the resolved user on the request
func Set(c *fiber.Ctx, user *models.User) {
	if user == nil {
		c.Locals(KeyUserContext, UserContext{})
		return
	}
	c.Locals(KeyUserContext, UserContext{UserID: user.ID, Email: user.Email, IsLoggedIn: true})
	c.Locals(KeyUserID, user.ID)
	c.Locals(KeyUser, user)
}

// GetUserContext retrieves the user context from fiber context
// Returns a default anonymous context if none is set
func GetUserContext(c *fiber.Ctx) UserContext {
	if ctx, ok := c.Locals(KeyUserContext).(UserContext); ok {
		return ctx
	}
	return UserContext{}
}

// IsLoggedIn checks if the current user is logged in
func IsLoggedIn(c *fiber.Ctx) bool {
	return GetUserContext(c).IsLoggedIn
}

// GetUserID returns the current user's ID, or "" if not logged in
func GetUserID(c *fiber.Ctx) string {
	return GetUserContext(c).UserID
}

// GetUser returns the resolved user row, or nil for anonymous requests
func GetUser(c *fiber.Ctx) *models.User {
	if u, ok := c.Locals(KeyUser).(*models.User); ok {
		return u
	}
	return nil
}
