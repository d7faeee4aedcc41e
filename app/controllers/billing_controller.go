package controllers

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/utils"

	"github.com/ManuelReschke/CoinSchool/internal/pkg/apperror"
	"github.com/ManuelReschke/CoinSchool/internal/pkg/auth"
	"github.com/ManuelReschke/CoinSchool/internal/pkg/billing"
	"github.com/ManuelReschke/CoinSchool/internal/pkg/metrics"
	"github.com/ManuelReschke/CoinSchool/internal/pkg/retry"
)

type CheckoutCreator interface {
	CreateSession(ctx context.Context, token string, req billing.CheckoutRequest, meta billing.RequestMeta) (*billing.CheckoutResult, error)
}

type EventVerifier interface {
	Verify(ctx context.Context, payload []byte, signatureHeader string) (billing.Event, error)
}

type EventDispatcher interface {
	Dispatch(evt billing.Event)
}

// BillingController serves the checkout and webhook endpoints.
type BillingController struct {
	checkout   CheckoutCreator
	verifier   EventVerifier
	dispatcher EventDispatcher
	metrics    *metrics.Billing

	requestDeadline  time.Duration
	bodyReadDeadline time.Duration
}

func NewBillingController(checkout CheckoutCreator, verifier EventVerifier, dispatcher EventDispatcher, m *metrics.Billing) *BillingController {
	return &BillingController{
		checkout:   checkout,
		verifier:   verifier,
		dispatcher: dispatcher,
		metrics:    m,

		requestDeadline:  retry.RequestDeadline,
		bodyReadDeadline: retry.BodyReadDeadline,
	}
}

// HandleCheckout creates a hosted checkout session for the bearer of the
// Authorization header.
func (bc *BillingController) HandleCheckout(c *fiber.Ctx) error {
	start := time.Now()
	body := append([]byte(nil), c.Body()...)
	// header values alias the fasthttp buffer, which is reused once the
	// handler returns while a timed out checkout may still be running
	token := utils.CopyString(auth.BearerToken(c.Get(fiber.HeaderAuthorization)))
	meta := billing.RequestMeta{
		IP:        utils.CopyString(clientIP(c)),
		UserAgent: utils.CopyString(c.Get(fiber.HeaderUserAgent)),
	}
	ctx := c.UserContext()

	res, err := retry.WithDeadline(bc.requestDeadline, "checkout.request", func() (*billing.CheckoutResult, error) {
		req, err := retry.WithDeadline(bc.bodyReadDeadline, "checkout.parse_body", func() (billing.CheckoutRequest, error) {
			var req billing.CheckoutRequest
			if err := json.Unmarshal(body, &req); err != nil {
				return req, apperror.Validation("body", "Invalid JSON body")
			}
			return req, nil
		})
		if err != nil {
			return nil, err
		}
		return bc.checkout.CreateSession(ctx, token, req, meta)
	})
	if err != nil {
		if apperror.HTTPStatus(err) >= fiber.StatusInternalServerError {
			log.Errorw("[Billing] checkout failed",
				"kind", string(apperror.KindOf(err)),
				"timed_out", retry.IsTimeout(err),
				"ip", meta.IP,
				"elapsed", time.Since(start).String(),
				"error", err.Error(),
			)
		}
		return writeError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(res)
}

// HandleWebhook verifies a processor event and acknowledges it before any
// reconciliation runs. Processing happens on the job queue.
func (bc *BillingController) HandleWebhook(c *fiber.Ctx) error {
	start := time.Now()
	// fasthttp reuses the request buffer once the handler returns
	payload := append([]byte(nil), c.Body()...)
	signature := utils.CopyString(strings.TrimSpace(c.Get("Stripe-Signature")))
	ctx := c.UserContext()

	evt, err := retry.WithDeadline(bc.requestDeadline, "webhook.verify", func() (billing.Event, error) {
		return bc.verifier.Verify(ctx, payload, signature)
	})
	if err != nil {
		if apperror.KindOf(err) == apperror.KindSignature {
			bc.metrics.RecordWebhook("invalid_signature")
			log.Warnw("[Billing] webhook signature rejected", "ip", clientIP(c), "error", err.Error())
			c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
			return c.Status(fiber.StatusBadRequest).SendString("Webhook Error: " + apperror.PublicMessage(err))
		}
		bc.metrics.RecordWebhook("error")
		log.Errorw("[Billing] webhook verification failed",
			"kind", string(apperror.KindOf(err)),
			"elapsed", time.Since(start).String(),
			"error", err.Error(),
		)
		return writeError(c, err)
	}

	bc.metrics.RecordWebhook("received")
	log.Infow("[Billing] webhook received", "event_id", evt.ID, "type", evt.Type)

	if err := c.Status(fiber.StatusOK).JSON(fiber.Map{"received": true}); err != nil {
		return err
	}
	if bc.dispatcher != nil {
		bc.dispatcher.Dispatch(evt)
	}
	return nil
}

// HandleCheckoutPreflight answers non-CORS OPTIONS requests; real preflights
// are handled by the cors middleware.
func HandleCheckoutPreflight(c *fiber.Ctx) error {
	c.Status(fiber.StatusNoContent)
	return nil
}

func HandleWebhookPreflight(c *fiber.Ctx) error {
	c.Set(fiber.HeaderAccessControlAllowOrigin, "*")
	c.Set(fiber.HeaderAccessControlAllowMethods, "POST, OPTIONS")
	c.Set(fiber.HeaderAccessControlAllowHeaders, "Content-Type, Stripe-Signature")
	c.Status(fiber.StatusOK)
	return nil
}

func HandleMethodNotAllowed(c *fiber.Ctx) error {
	c.Set(fiber.HeaderAllow, "POST, OPTIONS")
	c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
	return c.Status(fiber.StatusMethodNotAllowed).SendString("Method Not Allowed")
}
