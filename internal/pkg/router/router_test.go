package router

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/CoinSchool/app/controllers"
	"github.com/ManuelReschke/CoinSchool/internal/pkg/config"
	"github.com/ManuelReschke/CoinSchool/internal/pkg/metrics"
)

func newTestApp(t *testing.T, health HealthCheck) *fiber.App {
	t.Helper()
	reg := prometheus.NewRegistry()
	m, err := metrics.NewBilling(reg)
	require.NoError(t, err)
	m.RecordWebhook("received")

	app := fiber.New()
	InstallRouter(app, Dependencies{
		Config: &config.Config{
			MetricsUser:        "ops",
			MetricsPassword:    "secret",
			ServiceRoleKey:     "svc",
			CORSAllowedOrigins: "https://coinschool.example",
		},
		Billing:  controllers.NewBillingController(nil, nil, nil, m),
		Gatherer: reg,
		Health:   health,
	})
	return app
}

func TestHealthz(t *testing.T) {
	app := newTestApp(t, nil)
	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/healthz", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	app = newTestApp(t, func(context.Context) error { return errors.New("db down") })
	resp, err = app.Test(httptest.NewRequest(fiber.MethodGet, "/healthz", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
}

func TestMetricsRequiresBasicAuth(t *testing.T) {
	app := newTestApp(t, nil)

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	req := httptest.NewRequest(fiber.MethodGet, "/metrics", nil)
	req.SetBasicAuth("ops", "secret")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "coinschool_billing_webhook_events_total")
}

func TestCheckoutPreflight(t *testing.T) {
	app := newTestApp(t, nil)

	req := httptest.NewRequest(fiber.MethodOptions, "/api/v1/billing/checkout", nil)
	req.Header.Set(fiber.HeaderOrigin, "https://coinschool.example")
	req.Header.Set(fiber.HeaderAccessControlRequestMethod, fiber.MethodPost)
	resp, err := app.Test(req)
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "https://coinschool.example", resp.Header.Get(fiber.HeaderAccessControlAllowOrigin))
}

func TestWebhookRejectsOtherMethods(t *testing.T) {
	app := newTestApp(t, nil)

	for _, method := range []string{fiber.MethodGet, fiber.MethodPut, fiber.MethodDelete} {
		resp, err := app.Test(httptest.NewRequest(method, "/api/v1/billing/webhook", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusMethodNotAllowed, resp.StatusCode, method)
	}
}

func TestWebhookPreflight(t *testing.T) {
	app := newTestApp(t, nil)

	resp, err := app.Test(httptest.NewRequest(fiber.MethodOptions, "/api/v1/billing/webhook", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestAdminRoutesRequireServiceKey(t *testing.T) {
	app := fiber.New()
	InstallRouter(app, Dependencies{
		Config:     &config.Config{ServiceRoleKey: "svc"},
		AdminQueue: controllers.NewAdminQueueController(nil, nil),
	})

	resp, err := app.Test(httptest.NewRequest(fiber.MethodPost, "/api/v1/admin/billing/resync-stale", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestAccountRoutesRequireBearer(t *testing.T) {
	app := fiber.New()
	InstallRouter(app, Dependencies{
		Config:  &config.Config{},
		Account: controllers.NewAccountController(nil),
	})

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/api/v1/account/security-logs", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"error":"Unauthorized"}`, string(body))
}
