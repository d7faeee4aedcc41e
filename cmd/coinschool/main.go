package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/ManuelReschke/CoinSchool/app/controllers"
	"github.com/ManuelReschke/CoinSchool/app/repository"
	"github.com/ManuelReschke/CoinSchool/internal/pkg/apperror"
	"github.com/ManuelReschke/CoinSchool/internal/pkg/audit"
	"github.com/ManuelReschke/CoinSchool/internal/pkg/auth"
	"github.com/ManuelReschke/CoinSchool/internal/pkg/billing"
	"github.com/ManuelReschke/CoinSchool/internal/pkg/cache"
	"github.com/ManuelReschke/CoinSchool/internal/pkg/config"
	"github.com/ManuelReschke/CoinSchool/internal/pkg/constants"
	"github.com/ManuelReschke/CoinSchool/internal/pkg/database"
	"github.com/ManuelReschke/CoinSchool/internal/pkg/entitlements"
	"github.com/ManuelReschke/CoinSchool/internal/pkg/env"
	"github.com/ManuelReschke/CoinSchool/internal/pkg/jobqueue"
	"github.com/ManuelReschke/CoinSchool/internal/pkg/metrics"
	"github.com/ManuelReschke/CoinSchool/internal/pkg/router"
)

const (
	staleResyncBatch = 100
	shutdownTimeout  = 10 * time.Second
)

func main() {
	env.SetupEnvFile()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[Startup] %v", err)
	}

	app, shutdown, err := NewApplication(cfg)
	if err != nil {
		log.Fatalf("[Startup] %v", err)
	}

	go func() {
		if err := app.Listen(cfg.Addr()); err != nil {
			log.Errorf("[Startup] listener stopped: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("[Shutdown] draining requests")
	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		log.Errorf("[Shutdown] %v", err)
	}
	shutdown()
}

// NewApplication wires every component from cfg. The returned func stops the
// background workers and closes connections.
func NewApplication(cfg *config.Config) (*fiber.App, func(), error) {
	db, err := database.SetupDatabase(cfg)
	if err != nil {
		return nil, nil, err
	}

	cacheOpts := cache.Options{Host: cfg.CacheHost, Port: cfg.CachePort, Password: cfg.CachePassword}
	redisClient := cache.SetupCache(cacheOpts)

	var limiterStorage fiber.Storage
	if err := cache.Ping(context.Background(), 2*time.Second); err == nil {
		if limiterStorage, err = cache.NewLimiterStorage(cacheOpts); err != nil {
			log.Warnf("[Startup] rate limiter falls back to memory: %v", err)
		}
	} else {
		log.Warn("[Startup] Redis unreachable, rate limiter uses memory storage")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	billingMetrics, err := metrics.NewBilling(registry)
	if err != nil {
		return nil, nil, err
	}

	repos := repository.NewFactory(db)
	authenticator := auth.NewAuthenticator(cfg.AuthJWTSecret, repos.GetUserRepository())

	processor := billing.NewStripeProcessor(cfg.StripeSecretKey)
	billingRepo := billing.NewRepository(db)

	checkout := billing.NewCheckoutService(billing.CheckoutDeps{
		Processor: processor,
		Repo:      billingRepo,
		Users:     authenticator,
		Audit:     audit.NewRecorder(repos.GetSecurityLogRepository()),
		Metrics:   billingMetrics,
		SiteURL:   cfg.PublicSiteURL,
	})
	reconciler := billing.NewReconciler(processor, billingRepo, billingMetrics)

	queue := jobqueue.NewQueue(redisClient, cfg.JobQueueWorkers)
	queue.SetMetrics(billingMetrics)
	queue.RegisterHandler(jobqueue.JobTypeStripeEvent, reconciler.ProcessJob)
	queue.RegisterHandler(jobqueue.JobTypeSubscriptionResync, reconciler.ProcessResyncJob)

	manager := jobqueue.NewManager(queue, func(ctx context.Context) (int, error) {
		return reconciler.ResyncStale(ctx, staleResyncBatch)
	}, jobqueue.DefaultResyncInterval)
	manager.Start()

	app := fiber.New(fiber.Config{
		AppName:      "CoinSchool",
		BodyLimit:    1 << 20,
		ErrorHandler: errorHandler,
	})
	app.Use(recover.New(), requestid.New(), logger.New())

	// SWAGGER / OPENAPI
	app.Use(swagger.New(swagger.Config{
		BasePath: constants.DocsBasePath,
		FilePath: findOpenAPIFile(),
		Path:     constants.DocsV1Path,
	}))

	router.InstallRouter(app, router.Dependencies{
		Config:         cfg,
		Billing:        controllers.NewBillingController(checkout, billing.NewWebhookVerifier(cfg.StripeWebhookSecret), billing.NewEventDispatcher(queue, reconciler), billingMetrics),
		Access:         controllers.NewAccessController(repos.GetModuleRepository(), entitlements.NewEvaluator(billingRepo)),
		AdminQueue:     controllers.NewAdminQueueController(queue, manager),
		Account:        controllers.NewAccountController(repos.GetSecurityLogRepository()),
		Users:          authenticator,
		LimiterStorage: limiterStorage,
		Gatherer:       registry,
		Health: func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	})

	shutdown := func() {
		manager.Stop()
		if err := redisClient.Close(); err != nil {
			log.Warnf("[Shutdown] closing Redis: %v", err)
		}
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	return app, shutdown, nil
}

// errorHandler renders errors that escaped a handler in the same {error}
// shape the controllers use.
func errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(fiber.Map{"error": fe.Message})
	}
	log.Errorw("[HTTP] unhandled error", "path", c.Path(), "method", c.Method(), "error", err)
	return c.Status(apperror.HTTPStatus(err)).JSON(fiber.Map{"error": apperror.PublicMessage(err)})
}

func findOpenAPIFile() string {
	basePaths := []string{
		"./",        // Current directory
		"../../",    // From cmd/coinschool to project root
		"../../../", // Fallback
	}
	for _, path := range basePaths {
		candidate := path + constants.OpenAPIV1File
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return "./" + constants.OpenAPIV1File
}
