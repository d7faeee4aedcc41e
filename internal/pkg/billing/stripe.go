package billing

import (
	"context"
	"errors"
	"net/http"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"

	"github.com/ManuelReschke/CoinSchool/internal/pkg/retry"
)

// StripeProcessor implements Processor with stripe-go. The client is built
// from an explicit key instead of the package-level stripe.Key.
type StripeProcessor struct {
	api *client.API
}

func NewStripeProcessor(secretKey string) *StripeProcessor {
	return &StripeProcessor{api: client.New(secretKey, nil)}
}

func (p *StripeProcessor) PriceExists(ctx context.Context, priceID string) (bool, error) {
	params := &stripe.PriceParams{}
	params.Context = ctx

	pr, err := p.api.Prices.Get(priceID, params)
	if err != nil {
		if isResourceMissing(err) {
			return false, nil
		}
		return false, classifyStripeError(err)
	}
	return pr != nil && pr.ID != "", nil
}

func (p *StripeProcessor) CreateCustomer(ctx context.Context, in CustomerParams) (string, error) {
	params := &stripe.CustomerParams{}
	params.Context = ctx
	if in.Email != "" {
		params.Email = stripe.String(in.Email)
	}
	params.AddMetadata("user_id", in.UserID)
	if in.IdempotencyKey != "" {
		params.SetIdempotencyKey(in.IdempotencyKey)
	}

	c, err := p.api.Customers.New(params)
	if err != nil {
		return "", classifyStripeError(err)
	}
	return c.ID, nil
}

func (p *StripeProcessor) DeleteCustomer(ctx context.Context, customerID string) error {
	params := &stripe.CustomerParams{}
	params.Context = ctx

	if _, err := p.api.Customers.Del(customerID, params); err != nil {
		if isResourceMissing(err) {
			return nil
		}
		return classifyStripeError(err)
	}
	return nil
}

func (p *StripeProcessor) FindActivePromotionCode(ctx context.Context, code string) (*Discount, error) {
	params := &stripe.PromotionCodeListParams{
		Code:   stripe.String(code),
		Active: stripe.Bool(true),
	}
	params.Context = ctx
	params.Limit = stripe.Int64(1)
	params.Single = true

	it := p.api.PromotionCodes.List(params)
	for it.Next() {
		pc := it.PromotionCode()
		if pc != nil && pc.Code == code {
			return &Discount{PromotionCodeID: pc.ID}, nil
		}
	}
	if err := it.Err(); err != nil {
		return nil, classifyStripeError(err)
	}
	return nil, nil
}

func (p *StripeProcessor) ListCoupons(ctx context.Context) ([]Coupon, error) {
	params := &stripe.CouponListParams{}
	params.Context = ctx
	params.Limit = stripe.Int64(100)

	var out []Coupon
	it := p.api.Coupons.List(params)
	for it.Next() {
		c := it.Coupon()
		out = append(out, Coupon{ID: c.ID, Name: c.Name, Valid: c.Valid})
	}
	if err := it.Err(); err != nil {
		return nil, classifyStripeError(err)
	}
	return out, nil
}

func (p *StripeProcessor) CreateCheckoutSession(ctx context.Context, in CheckoutSessionParams) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Customer:   stripe.String(in.CustomerID),
		Mode:       stripe.String(in.Mode),
		SuccessURL: stripe.String(in.SuccessURL),
		CancelURL:  stripe.String(in.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(in.PriceID), Quantity: stripe.Int64(1)},
		},
	}
	params.Context = ctx
	if in.ClientReferenceID != "" {
		params.ClientReferenceID = stripe.String(in.ClientReferenceID)
	}
	if d := in.Discount; d != nil {
		dp := &stripe.CheckoutSessionDiscountParams{}
		if d.PromotionCodeID != "" {
			dp.PromotionCode = stripe.String(d.PromotionCodeID)
		} else {
			dp.Coupon = stripe.String(d.CouponID)
		}
		params.Discounts = []*stripe.CheckoutSessionDiscountParams{dp}
	}
	if in.IdempotencyKey != "" {
		params.SetIdempotencyKey(in.IdempotencyKey)
	}

	s, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, classifyStripeError(err)
	}
	return &CheckoutSession{ID: s.ID, URL: s.URL}, nil
}

func (p *StripeProcessor) LatestSubscription(ctx context.Context, customerID string) (*ProcessorSubscription, error) {
	params := &stripe.SubscriptionListParams{
		Customer: stripe.String(customerID),
		Status:   stripe.String("all"),
	}
	params.Context = ctx
	params.Limit = stripe.Int64(1)
	params.Single = true
	params.AddExpand("data.default_payment_method")

	it := p.api.Subscriptions.List(params)
	var sub *stripe.Subscription
	if it.Next() {
		sub = it.Subscription()
	}
	if err := it.Err(); err != nil {
		return nil, classifyStripeError(err)
	}
	if sub == nil {
		return nil, nil
	}
	return normalizeStripeSubscription(sub), nil
}

func normalizeStripeSubscription(sub *stripe.Subscription) *ProcessorSubscription {
	out := &ProcessorSubscription{
		ID:                sub.ID,
		Status:            string(sub.Status),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		if item.Price != nil {
			out.PriceID = item.Price.ID
		}
		out.CurrentPeriodStart = item.CurrentPeriodStart
		out.CurrentPeriodEnd = item.CurrentPeriodEnd
	}
	// Card details are only present when default_payment_method was expanded.
	if pm := sub.DefaultPaymentMethod; pm != nil && pm.Card != nil {
		out.PaymentMethodBrand = string(pm.Card.Brand)
		out.PaymentMethodLast4 = pm.Card.Last4
	}
	return out
}

func isResourceMissing(err error) bool {
	var se *stripe.Error
	if errors.As(err, &se) {
		return se.Code == stripe.ErrorCodeResourceMissing || se.HTTPStatusCode == http.StatusNotFound
	}
	return false
}

// classifyStripeError marks client errors as permanent so the harness does not
// resend a request Stripe already rejected. 409 and 429 stay retryable.
func classifyStripeError(err error) error {
	var se *stripe.Error
	if !errors.As(err, &se) {
		return err
	}
	switch {
	case se.HTTPStatusCode == http.StatusConflict, se.HTTPStatusCode == http.StatusTooManyRequests:
		return err
	case se.HTTPStatusCode >= 400 && se.HTTPStatusCode < 500:
		return retry.Permanent(err)
	default:
		return err
	}
}
