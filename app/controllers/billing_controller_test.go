package controllers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/ManuelReschke/CoinSchool/internal/pkg/apperror"
	"github.com/ManuelReschke/CoinSchool/internal/pkg/billing"
	"github.com/ManuelReschke/CoinSchool/internal/pkg/retry"
)

const testWebhookSecret = "whsec_controller_test"

const subscriptionUpdatedPayload = `{
  "id": "evt_ctrl_1",
  "object": "event",
  "api_version": "2020-08-27",
  "type": "customer.subscription.updated",
  "data": {"object": {"id": "sub_9", "object": "subscription", "customer": "cus_1"}}
}`

type fakeCheckout struct {
	token string
	req   billing.CheckoutRequest
	meta  billing.RequestMeta
	res   *billing.CheckoutResult
	err   error
	delay time.Duration
}

func (f *fakeCheckout) CreateSession(_ context.Context, token string, req billing.CheckoutRequest, meta billing.RequestMeta) (*billing.CheckoutResult, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.token, f.req, f.meta = token, req, meta
	return f.res, f.err
}

type fakeDispatcher struct {
	mu     sync.Mutex
	events []billing.Event
}

func (f *fakeDispatcher) Dispatch(evt billing.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, evt)
}

func (f *fakeDispatcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

func newBillingApp(checkout CheckoutCreator, dispatcher EventDispatcher) *fiber.App {
	return newBillingAppFor(NewBillingController(checkout, billing.NewWebhookVerifier(testWebhookSecret), dispatcher, nil))
}

func newBillingAppFor(bc *BillingController) *fiber.App {
	app := fiber.New()
	app.Post("/api/v1/billing/checkout", bc.HandleCheckout)
	app.Options("/api/v1/billing/checkout", HandleCheckoutPreflight)
	app.All("/api/v1/billing/checkout", HandleMethodNotAllowed)
	app.Post("/api/v1/billing/webhook", bc.HandleWebhook)
	app.Options("/api/v1/billing/webhook", HandleWebhookPreflight)
	app.All("/api/v1/billing/webhook", HandleMethodNotAllowed)
	return app
}

func readBody(t *testing.T, body io.Reader) string {
	t.Helper()
	b, err := io.ReadAll(body)
	require.NoError(t, err)
	return string(b)
}

func TestHandleCheckout_Success(t *testing.T) {
	checkout := &fakeCheckout{res: &billing.CheckoutResult{SessionID: "cs_1", URL: "https://checkout.stripe.com/c/cs_1"}}
	app := newBillingApp(checkout, &fakeDispatcher{})

	req := httptest.NewRequest(fiber.MethodPost, "/api/v1/billing/checkout",
		strings.NewReader(`{"price_id":"price_basic","success_url":"/ok","cancel_url":"/cancel","mode":"subscription"}`))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer tok_1")
	req.Header.Set(fiber.HeaderUserAgent, "test-agent")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var got map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, map[string]string{"sessionId": "cs_1", "url": "https://checkout.stripe.com/c/cs_1"}, got)

	assert.Equal(t, "tok_1", checkout.token)
	assert.Equal(t, "price_basic", checkout.req.PriceID)
	assert.Equal(t, billing.ModeSubscription, checkout.req.Mode)
	assert.Equal(t, "test-agent", checkout.meta.UserAgent)
}

func TestHandleCheckout_Errors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		err     error
		status  int
		message string
	}{
		{"malformed json", `{"price_id":`, nil, fiber.StatusBadRequest, "Invalid JSON body"},
		{"validation", `{}`, apperror.Validation("price_id", ""), fiber.StatusBadRequest, "price_id is required"},
		{"unauthenticated", `{}`, apperror.Authentication(""), fiber.StatusUnauthorized, "Unauthorized"},
		{"unknown price", `{}`, apperror.NotFound("Price"), fiber.StatusNotFound, "Price not found"},
		{"upstream", `{}`, apperror.Upstream("stripe.create_checkout_session", assert.AnError), fiber.StatusInternalServerError, "An unexpected error occurred. Please try again."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newBillingApp(&fakeCheckout{err: tt.err}, &fakeDispatcher{})

			req := httptest.NewRequest(fiber.MethodPost, "/api/v1/billing/checkout", strings.NewReader(tt.body))
			req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
			resp, err := app.Test(req)
			require.NoError(t, err)

			assert.Equal(t, tt.status, resp.StatusCode)
			var got map[string]string
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
			assert.Equal(t, tt.message, got["error"])
			assert.NotContains(t, got["error"], assert.AnError.Error())
		})
	}
}

func TestNewBillingController_DefaultDeadlines(t *testing.T) {
	bc := NewBillingController(&fakeCheckout{}, nil, nil, nil)
	assert.Equal(t, retry.RequestDeadline, bc.requestDeadline)
	assert.Equal(t, retry.BodyReadDeadline, bc.bodyReadDeadline)
}

func TestHandleCheckout_RequestDeadline(t *testing.T) {
	checkout := &fakeCheckout{
		res:   &billing.CheckoutResult{SessionID: "cs_late", URL: "https://checkout.stripe.com/c/cs_late"},
		delay: 300 * time.Millisecond,
	}
	bc := NewBillingController(checkout, nil, nil, nil)
	bc.requestDeadline = 50 * time.Millisecond
	app := newBillingAppFor(bc)

	req := httptest.NewRequest(fiber.MethodPost, "/api/v1/billing/checkout",
		strings.NewReader(`{"price_id":"price_basic","success_url":"/ok","cancel_url":"/cancel"}`))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)

	start := time.Now()
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 250*time.Millisecond)

	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	var got map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "Request timed out. Please try again.", got["error"])
	assert.NotContains(t, got, "sessionId")
	assert.NotContains(t, got, "url")
}

// lingeringCheckout holds its first call until release is closed, so that
// call outlives the request that started it.
type lingeringCheckout struct {
	mu      sync.Mutex
	calls   int
	release chan struct{}
	seen    map[int]billing.RequestMeta
	tokens  map[int]string
	done    chan int
}

func newLingeringCheckout() *lingeringCheckout {
	return &lingeringCheckout{
		release: make(chan struct{}),
		seen:    map[int]billing.RequestMeta{},
		tokens:  map[int]string{},
		done:    make(chan int, 2),
	}
}

func (f *lingeringCheckout) CreateSession(_ context.Context, token string, _ billing.CheckoutRequest, meta billing.RequestMeta) (*billing.CheckoutResult, error) {
	f.mu.Lock()
	n := f.calls
	f.calls++
	f.mu.Unlock()

	if n == 0 {
		<-f.release
	}

	f.mu.Lock()
	f.tokens[n] = token
	f.seen[n] = meta
	f.mu.Unlock()
	f.done <- n
	return &billing.CheckoutResult{SessionID: "cs_1", URL: "https://checkout.stripe.com/c/cs_1"}, nil
}

func TestHandleCheckout_TimedOutCallKeepsItsOwnHeaders(t *testing.T) {
	checkout := newLingeringCheckout()
	bc := NewBillingController(checkout, nil, nil, nil)
	bc.requestDeadline = 50 * time.Millisecond
	app := newBillingAppFor(bc)

	send := func(token, userAgent string) *http.Response {
		req := httptest.NewRequest(fiber.MethodPost, "/api/v1/billing/checkout",
			strings.NewReader(`{"price_id":"price_basic","success_url":"/ok","cancel_url":"/cancel"}`))
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
		req.Header.Set(fiber.HeaderUserAgent, userAgent)
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp
	}

	first := send("AAAAAAAAAAAAAAAAAAAA", "agent-of-user-ONE-xxxxxx")
	assert.Equal(t, fiber.StatusInternalServerError, first.StatusCode)

	second := send("BBBBBBBBBBBBBBBBBBBB", "agent-of-user-TWO-yyyyyy")
	assert.Equal(t, fiber.StatusOK, second.StatusCode)
	require.Equal(t, 1, <-checkout.done)

	close(checkout.release)
	select {
	case n := <-checkout.done:
		require.Equal(t, 0, n)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out call never finished")
	}

	checkout.mu.Lock()
	defer checkout.mu.Unlock()
	assert.Equal(t, "AAAAAAAAAAAAAAAAAAAA", checkout.tokens[0])
	assert.Equal(t, "agent-of-user-ONE-xxxxxx", checkout.seen[0].UserAgent)
	assert.Equal(t, "BBBBBBBBBBBBBBBBBBBB", checkout.tokens[1])
	assert.Equal(t, "agent-of-user-TWO-yyyyyy", checkout.seen[1].UserAgent)
}

func TestHandleCheckout_Preflight(t *testing.T) {
	app := newBillingApp(&fakeCheckout{}, &fakeDispatcher{})

	resp, err := app.Test(httptest.NewRequest(fiber.MethodOptions, "/api/v1/billing/checkout", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)
	assert.Empty(t, readBody(t, resp.Body))
}

func TestHandleWebhook_ValidSignature(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	app := newBillingApp(&fakeCheckout{}, dispatcher)

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(subscriptionUpdatedPayload),
		Secret:    testWebhookSecret,
		Timestamp: time.Now(),
	})
	req := httptest.NewRequest(fiber.MethodPost, "/api/v1/billing/webhook", strings.NewReader(subscriptionUpdatedPayload))
	req.Header.Set("Stripe-Signature", signed.Header)

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"received":true}`, readBody(t, resp.Body))

	require.Equal(t, 1, dispatcher.count())
	evt := dispatcher.events[0]
	assert.Equal(t, "evt_ctrl_1", evt.ID)
	assert.Equal(t, "customer.subscription.updated", evt.Type)
	assert.Equal(t, "cus_1", evt.Object.Customer.String())
}

func TestHandleWebhook_InvalidSignatureIsNotProcessed(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"forged header", "t=1700000000,v1=deadbeef"},
		{"wrong secret", webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
			Payload:   []byte(subscriptionUpdatedPayload),
			Secret:    "whsec_attacker",
			Timestamp: time.Now(),
		}).Header},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dispatcher := &fakeDispatcher{}
			app := newBillingApp(&fakeCheckout{}, dispatcher)

			req := httptest.NewRequest(fiber.MethodPost, "/api/v1/billing/webhook", strings.NewReader(subscriptionUpdatedPayload))
			if tt.header != "" {
				req.Header.Set("Stripe-Signature", tt.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)

			assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
			assert.Contains(t, resp.Header.Get(fiber.HeaderContentType), "text/plain")
			body := readBody(t, resp.Body)
			assert.NotContains(t, body, "received")
			assert.Zero(t, dispatcher.count())
		})
	}
}

func TestHandleWebhook_Methods(t *testing.T) {
	app := newBillingApp(&fakeCheckout{}, &fakeDispatcher{})

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/api/v1/billing/webhook", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusMethodNotAllowed, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(fiber.MethodOptions, "/api/v1/billing/webhook", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Empty(t, readBody(t, resp.Body))
	assert.Equal(t, "*", resp.Header.Get(fiber.HeaderAccessControlAllowOrigin))
}
