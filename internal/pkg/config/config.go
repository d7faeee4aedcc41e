package config

import (
	"strings"

	"github.com/ManuelReschke/CoinSchool/internal/pkg/apperror"
	"github.com/ManuelReschke/CoinSchool/internal/pkg/env"
)

// Config is the explicit configuration handed to every component at construction.
type Config struct {
	AppHost string
	AppPort string

	StripeSecretKey     string
	StripeWebhookSecret string

	DatabaseURL    string
	DatabaseDriver string
	ServiceRoleKey string
	AuthJWTSecret  string

	PublicSiteURL      string
	CORSAllowedOrigins string

	CacheHost     string
	CachePort     string
	CachePassword string

	JobQueueWorkers int

	MetricsUser     string
	MetricsPassword string
}

type requiredKey struct {
	name string
	dst  *string
}

// Load reads the configuration from the environment. Missing required values
// are reported together as a single configuration error.
func Load() (*Config, error) {
	cfg := &Config{
		AppHost:            env.GetEnv("APP_HOST", "0.0.0.0"),
		AppPort:            env.GetEnv("APP_PORT", "4000"),
		DatabaseDriver:     strings.ToLower(env.GetEnv("DB_DRIVER", "postgres")),
		CORSAllowedOrigins: env.GetEnv("CORS_ALLOWED_ORIGINS", ""),
		CacheHost:          env.GetEnv("CACHE_HOST", "localhost"),
		CachePort:          env.GetEnv("CACHE_PORT", "6379"),
		CachePassword:      env.GetEnv("CACHE_PASSWORD", ""),
		MetricsUser:        env.GetEnv("METRICS_USER", ""),
		MetricsPassword:    env.GetEnv("METRICS_PASSWORD", ""),
	}

	cfg.JobQueueWorkers = env.GetEnvInt("JOB_QUEUE_WORKERS", 3)

	required := []requiredKey{
		{"STRIPE_SECRET_KEY", &cfg.StripeSecretKey},
		{"STRIPE_WEBHOOK_SECRET", &cfg.StripeWebhookSecret},
		{"DATABASE_URL", &cfg.DatabaseURL},
		{"SUPABASE_SERVICE_ROLE_KEY", &cfg.ServiceRoleKey},
		{"AUTH_JWT_SECRET", &cfg.AuthJWTSecret},
		{"PUBLIC_SITE_URL", &cfg.PublicSiteURL},
	}

	var missing []string
	for _, k := range required {
		v := strings.TrimSpace(env.GetEnv(k.name, ""))
		if v == "" {
			missing = append(missing, k.name)
			continue
		}
		*k.dst = v
	}
	if len(missing) > 0 {
		return nil, apperror.Configuration(missing...)
	}

	cfg.PublicSiteURL = strings.TrimRight(cfg.PublicSiteURL, "/")
	if cfg.CORSAllowedOrigins == "" {
		cfg.CORSAllowedOrigins = cfg.PublicSiteURL
	}
	return cfg, nil
}

// Addr returns host:port for the HTTP listener.
func (c *Config) Addr() string {
	return c.AppHost + ":" + c.AppPort
}
