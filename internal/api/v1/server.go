package apiv1

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/CoinSchool/internal/pkg/constants"
)

// Pong is the response of GET /ping
type Pong struct {
	Ping string `json:"ping"`
}

// ServerInterface lists the operations published in public/docs/v1/openapi.yml
type ServerInterface interface {
	// (GET /ping)
	GetPing(c *fiber.Ctx) error
	// (POST /billing/checkout)
	PostBillingCheckout(c *fiber.Ctx) error
	// (OPTIONS /billing/checkout)
	OptionsBillingCheckout(c *fiber.Ctx) error
	// (POST /billing/webhook)
	PostBillingWebhook(c *fiber.Ctx) error
	// (OPTIONS /billing/webhook)
	OptionsBillingWebhook(c *fiber.Ctx) error
	// (GET /modules)
	GetModules(c *fiber.Ctx) error
	// (GET /modules/{slug}/access)
	GetModuleAccess(c *fiber.Ctx, slug string) error
}

// ServerInterfaceWrapper converts fiber contexts to parameters
type ServerInterfaceWrapper struct {
	Handler ServerInterface
}

func (siw *ServerInterfaceWrapper) GetPing(c *fiber.Ctx) error {
	return siw.Handler.GetPing(c)
}

func (siw *ServerInterfaceWrapper) PostBillingCheckout(c *fiber.Ctx) error {
	return siw.Handler.PostBillingCheckout(c)
}

func (siw *ServerInterfaceWrapper) OptionsBillingCheckout(c *fiber.Ctx) error {
	return siw.Handler.OptionsBillingCheckout(c)
}

func (siw *ServerInterfaceWrapper) PostBillingWebhook(c *fiber.Ctx) error {
	return siw.Handler.PostBillingWebhook(c)
}

func (siw *ServerInterfaceWrapper) OptionsBillingWebhook(c *fiber.Ctx) error {
	return siw.Handler.OptionsBillingWebhook(c)
}

func (siw *ServerInterfaceWrapper) GetModules(c *fiber.Ctx) error {
	return siw.Handler.GetModules(c)
}

func (siw *ServerInterfaceWrapper) GetModuleAccess(c *fiber.Ctx) error {
	slug := c.Params("slug")
	if slug == "" {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid format for parameter slug")
	}
	return siw.Handler.GetModuleAccess(c, slug)
}

// RegisterHandlers installs the routes published in openapi.yml.
// Any other method on the billing paths answers 405.
func RegisterHandlers(router fiber.Router, si ServerInterface) {
	wrapper := ServerInterfaceWrapper{Handler: si}

	router.Get("/ping", wrapper.GetPing)

	router.Post(constants.CheckoutRoute, wrapper.PostBillingCheckout)
	router.Options(constants.CheckoutRoute, wrapper.OptionsBillingCheckout)
	router.All(constants.CheckoutRoute, methodNotAllowed)

	router.Post(constants.WebhookRoute, wrapper.PostBillingWebhook)
	router.Options(constants.WebhookRoute, wrapper.OptionsBillingWebhook)
	router.All(constants.WebhookRoute, methodNotAllowed)

	router.Get(constants.ModulesRoute, wrapper.GetModules)
	router.Get(constants.ModuleAccessRoute, wrapper.GetModuleAccess)
}
