package cache

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	redisstorage "github.com/gofiber/storage/redis"
	"github.com/redis/go-redis/v9"
)

const (
	// Job queue uses DB 0, rate limiter state lives in DB 1.
	queueDatabase   = 0
	limiterDatabase = 1
)

var client *redis.Client

// Options describes how to reach the Redis server.
type Options struct {
	Host     string
	Port     string
	Password string
}

// SetupCache initializes the shared Redis client. A failed ping is logged and
// not fatal; the webhook path falls back to in-process dispatch.
func SetupCache(opts Options) *redis.Client {
	client = redis.NewClient(&redis.Options{
		Addr:     net.JoinHostPort(opts.Host, opts.Port),
		Password: opts.Password,
		DB:       queueDatabase,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	pong, err := client.Ping(ctx).Result()
	if err != nil {
		log.Warnf("[Cache] Could not connect to Redis at %s: %v", client.Options().Addr, err)
	} else {
		log.Infof("[Cache] Connected to Redis: %s", pong)
	}
	return client
}

// NewLimiterStorage returns fiber storage on a separate Redis database for the
// rate limiter.
func NewLimiterStorage(opts Options) (fiber.Storage, error) {
	port, err := strconv.Atoi(opts.Port)
	if err != nil {
		return nil, fmt.Errorf("invalid CACHE_PORT %q: %w", opts.Port, err)
	}
	return redisstorage.New(redisstorage.Config{
		Host:     opts.Host,
		Port:     port,
		Password: opts.Password,
		Database: limiterDatabase,
		Reset:    false,
	}), nil
}

// Ping reports whether Redis answers within timeout.
func Ping(ctx context.Context, timeout time.Duration) error {
	if client == nil {
		return fmt.Errorf("cache not initialized")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return client.Ping(ctx).Err()
}
