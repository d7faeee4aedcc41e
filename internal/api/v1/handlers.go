package apiv1

import (
	"github.com/gofiber/fiber/v2"

	// Delegate to existing controllers to keep behavior consistent
	"github.com/ManuelReschke/CoinSchool/app/controllers"
)

// APIServer implements the ServerInterface
type APIServer struct {
	billing *controllers.BillingController
	access  *controllers.AccessController
}

// NewAPIServer creates a new API server instance
func NewAPIServer(billing *controllers.BillingController, access *controllers.AccessController) *APIServer {
	return &APIServer{billing: billing, access: access}
}

// GetPing handles the ping endpoint
func (s *APIServer) GetPing(c *fiber.Ctx) error {
	response := Pong{
		Ping: "pong",
	}

	return c.Status(fiber.StatusOK).JSON(response)
}

// PostBillingCheckout creates a hosted checkout session for the bearer.
func (s *APIServer) PostBillingCheckout(c *fiber.Ctx) error {
	return s.billing.HandleCheckout(c)
}

// OptionsBillingCheckout answers OPTIONS requests that the cors middleware
// did not treat as a preflight.
func (s *APIServer) OptionsBillingCheckout(c *fiber.Ctx) error {
	return controllers.HandleCheckoutPreflight(c)
}

// PostBillingWebhook receives signed processor events.
func (s *APIServer) PostBillingWebhook(c *fiber.Ctx) error {
	return s.billing.HandleWebhook(c)
}

func (s *APIServer) OptionsBillingWebhook(c *fiber.Ctx) error {
	return controllers.HandleWebhookPreflight(c)
}

// GetModules lists the catalog with per-module access for the caller.
func (s *APIServer) GetModules(c *fiber.Ctx) error {
	return s.access.HandleListModules(c)
}

// GetModuleAccess reports whether the caller may open a module.
func (s *APIServer) GetModuleAccess(c *fiber.Ctx, slug string) error {
	return s.access.HandleModuleAccess(c, slug)
}

func methodNotAllowed(c *fiber.Ctx) error {
	return controllers.HandleMethodNotAllowed(c)
}
