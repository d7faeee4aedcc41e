package billing

import "context"

// Processor is the payment processor surface used by checkout and reconciliation.
// Implementations return retry.Permanent errors for failures that cannot succeed
// on a second attempt.
type Processor interface {
	// PriceExists reports whether priceID resolves to a known price.
	PriceExists(ctx context.Context, priceID string) (bool, error)
	CreateCustomer(ctx context.Context, params CustomerParams) (string, error)
	DeleteCustomer(ctx context.Context, customerID string) error
	// FindActivePromotionCode returns nil when no active code matches exactly.
	FindActivePromotionCode(ctx context.Context, code string) (*Discount, error)
	ListCoupons(ctx context.Context) ([]Coupon, error)
	CreateCheckoutSession(ctx context.Context, params CheckoutSessionParams) (*CheckoutSession, error)
	// LatestSubscription returns the newest subscription in any status, or nil.
	LatestSubscription(ctx context.Context, customerID string) (*ProcessorSubscription, error)
}
