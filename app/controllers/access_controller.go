package controllers

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/CoinSchool/app/models"
	"github.com/ManuelReschke/CoinSchool/app/repository"
	"github.com/ManuelReschke/CoinSchool/internal/pkg/apperror"
	"github.com/ManuelReschke/CoinSchool/internal/pkg/entitlements"
	"github.com/ManuelReschke/CoinSchool/internal/pkg/usercontext"
)

type AccessEvaluator interface {
	Evaluate(ctx context.Context, user *models.User, module models.LearningModule) entitlements.Decision
}

// AccessController answers whether the caller may open a learning module.
type AccessController struct {
	modules   repository.ModuleRepository
	evaluator AccessEvaluator
}

func NewAccessController(modules repository.ModuleRepository, evaluator AccessEvaluator) *AccessController {
	return &AccessController{modules: modules, evaluator: evaluator}
}

type accessResponse struct {
	Module  string `json:"module"`
	Granted bool   `json:"granted"`
	Reason  string `json:"reason,omitempty"`
}

func (ac *AccessController) HandleModuleAccess(c *fiber.Ctx, slug string) error {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return writeError(c, apperror.Validation("slug", ""))
	}

	module, err := ac.modules.GetBySlug(c.UserContext(), slug)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return writeError(c, apperror.NotFound("Module"))
		}
		log.Errorw("[Access] module lookup failed", "slug", slug, "error", err)
		return writeError(c, apperror.Upstream("modules.get", err))
	}

	decision := ac.evaluator.Evaluate(c.UserContext(), usercontext.GetUser(c), *module)

	return c.JSON(accessResponse{
		Module:  module.Slug,
		Granted: decision.Granted,
		Reason:  decision.Reason,
	})
}

type catalogEntry struct {
	Module  string `json:"module"`
	Title   string `json:"title"`
	IsFree  bool   `json:"is_free"`
	Granted bool   `json:"granted"`
	Reason  string `json:"reason,omitempty"`
}

// HandleListModules returns the catalog with the caller's decision per module.
func (ac *AccessController) HandleListModules(c *fiber.Ctx) error {
	modules, err := ac.modules.List(c.UserContext())
	if err != nil {
		log.Errorw("[Access] module list failed", "error", err)
		return writeError(c, apperror.Upstream("modules.list", err))
	}

	user := usercontext.GetUser(c)
	entries := make([]catalogEntry, 0, len(modules))
	for _, m := range modules {
		decision := ac.evaluator.Evaluate(c.UserContext(), user, m)
		entries = append(entries, catalogEntry{
			Module:  m.Slug,
			Title:   m.Title,
			IsFree:  m.IsFree,
			Granted: decision.Granted,
			Reason:  decision.Reason,
		})
	}

	return c.JSON(fiber.Map{"modules": entries})
}
