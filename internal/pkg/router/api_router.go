package router

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	apiv1 "github.com/ManuelReschke/CoinSchool/internal/api/v1"
	"github.com/ManuelReschke/CoinSchool/internal/pkg/constants"
	"github.com/ManuelReschke/CoinSchool/internal/pkg/middleware"
)

const (
	checkoutRateLimit  = 10
	checkoutRateWindow = time.Minute
)

type ApiRouter struct {
	deps Dependencies
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group(constants.APIRoute)
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	// API v1 routes
	v1 := api.Group(constants.APIV1Route, middleware.UserContextMiddleware(h.deps.Users))

	// browser-facing checkout: CORS preflight and a per-IP limit
	v1.Use(constants.CheckoutRoute, cors.New(cors.Config{
		AllowOrigins: h.allowedOrigins(),
		AllowMethods: "POST, OPTIONS",
		AllowHeaders: "Authorization, Content-Type",
	}), limiter.New(limiter.Config{
		Max:        checkoutRateLimit,
		Expiration: checkoutRateWindow,
		Storage:    h.deps.LimiterStorage,
		Next: func(c *fiber.Ctx) bool {
			return c.Method() != fiber.MethodPost
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "Too many requests"})
		},
	}))

	apiServer := apiv1.NewAPIServer(h.deps.Billing, h.deps.Access)
	apiv1.RegisterHandlers(v1, apiServer)

	if h.deps.Account != nil {
		v1.Get(constants.AccountLogsRoute, middleware.RequireAPIAuth, h.deps.Account.HandleSecurityLogs)
	}

	if h.deps.AdminQueue != nil && h.deps.Config != nil {
		admin := v1.Group(constants.AdminRoute, middleware.ServiceKeyMiddleware(h.deps.Config.ServiceRoleKey))
		admin.Get("/jobs/stats", h.deps.AdminQueue.HandleQueueStats)
		admin.Get("/jobs/:id", h.deps.AdminQueue.HandleGetJob)
		admin.Post("/billing/customers/:customerID/resync", h.deps.AdminQueue.HandleResyncCustomer)
		admin.Post("/billing/resync-stale", h.deps.AdminQueue.HandleResyncStale)
	}
}

func (h ApiRouter) allowedOrigins() string {
	if h.deps.Config == nil || strings.TrimSpace(h.deps.Config.CORSAllowedOrigins) == "" {
		return "*"
	}
	return h.deps.Config.CORSAllowedOrigins
}

func NewApiRouter(deps Dependencies) *ApiRouter {
	return &ApiRouter{deps: deps}
}
