package controllers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/CoinSchool/app/models"
	"github.com/ManuelReschke/CoinSchool/internal/pkg/apperror"
	"github.com/ManuelReschke/CoinSchool/internal/pkg/usercontext"
)

const securityLogPageSize = 50

// SecurityLogReader lists audit rows of one user.
type SecurityLogReader interface {
	ListByUserID(ctx context.Context, userID string, limit int) ([]models.SecurityLog, error)
}

// AccountController serves data that belongs to the signed-in user.
type AccountController struct {
	logs SecurityLogReader
}

func NewAccountController(logs SecurityLogReader) *AccountController {
	return &AccountController{logs: logs}
}

// HandleSecurityLogs returns the caller's newest audit entries.
// Routes must run RequireAPIAuth first.
func (ac *AccountController) HandleSecurityLogs(c *fiber.Ctx) error {
	userID := usercontext.GetUserID(c)
	if userID == "" {
		return writeError(c, apperror.Authentication(""))
	}

	entries, err := ac.logs.ListByUserID(c.UserContext(), userID, securityLogPageSize)
	if err != nil {
		log.Errorw("[Account] security log lookup failed", "user_id", userID, "error", err)
		return writeError(c, apperror.Upstream("security_logs.list", err))
	}
	if entries == nil {
		entries = []models.SecurityLog{}
	}

	return c.JSON(fiber.Map{"entries": entries})
}
