package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ManuelReschke/CoinSchool/app/controllers"
	"github.com/ManuelReschke/CoinSchool/internal/pkg/config"
	"github.com/ManuelReschke/CoinSchool/internal/pkg/middleware"
)

// Router installs a group of routes on the app.
type Router interface {
	InstallRouter(app *fiber.App)
}

// Dependencies are the wired services the routes delegate to.
type Dependencies struct {
	Config         *config.Config
	Billing        *controllers.BillingController
	Access         *controllers.AccessController
	AdminQueue     *controllers.AdminQueueController
	Account        *controllers.AccountController
	Users          middleware.TokenResolver
	LimiterStorage fiber.Storage
	Gatherer       prometheus.Gatherer
	Health         HealthCheck
}

func InstallRouter(app *fiber.App, deps Dependencies) {
	// Operational routes first so /healthz and /metrics bypass the API limiter.
	setup(app, NewHttpRouter(deps), NewApiRouter(deps))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
