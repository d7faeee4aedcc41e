package models

import "time"

// Subscription status values mirror Stripe's lifecycle plus not_started for
// customers without any subscription.
const (
	SubscriptionStatusIncomplete        = "incomplete"
	SubscriptionStatusIncompleteExpired = "incomplete_expired"
	SubscriptionStatusTrialing          = "trialing"
	SubscriptionStatusActive            = "active"
	SubscriptionStatusPastDue           = "past_due"
	SubscriptionStatusCanceled          = "canceled"
	SubscriptionStatusUnpaid            = "unpaid"
	SubscriptionStatusPaused            = "paused"
	SubscriptionStatusNotStarted        = "not_started"
)

// Subscription is the local mirror of a customer's newest Stripe subscription.
// There is exactly one row per customer; a second subscription overwrites the first.
type Subscription struct {
	CustomerID         string    `gorm:"primaryKey;type:varchar(191)" json:"customer_id"`
	SubscriptionID     *string   `gorm:"type:varchar(191);index" json:"subscription_id,omitempty"`
	PriceID            *string   `gorm:"type:varchar(191)" json:"price_id,omitempty"`
	CurrentPeriodStart *int64    `json:"current_period_start,omitempty"`
	CurrentPeriodEnd   *int64    `json:"current_period_end,omitempty"`
	CancelAtPeriodEnd  bool      `gorm:"not null" json:"cancel_at_period_end"`
	Status             string    `gorm:"type:varchar(32);not null;index" json:"status"`
	PaymentMethodBrand *string   `gorm:"type:varchar(32)" json:"payment_method_brand,omitempty"`
	PaymentMethodLast4 *string   `gorm:"type:varchar(4)" json:"payment_method_last4,omitempty"`
	UpdatedAt          time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsValidSubscriptionStatus reports whether s is a known mirror status.
func IsValidSubscriptionStatus(s string) bool {
	switch s {
	case SubscriptionStatusIncomplete, SubscriptionStatusIncompleteExpired, SubscriptionStatusTrialing,
		SubscriptionStatusActive, SubscriptionStatusPastDue, SubscriptionStatusCanceled,
		SubscriptionStatusUnpaid, SubscriptionStatusPaused, SubscriptionStatusNotStarted:
		return true
	default:
		return false
	}
}

// ActiveAt reports whether the row grants premium access at the given epoch second.
func (s *Subscription) ActiveAt(now int64) bool {
	if s == nil || s.Status != SubscriptionStatusActive {
		return false
	}
	if s.CurrentPeriodStart == nil || s.CurrentPeriodEnd == nil {
		return false
	}
	return *s.CurrentPeriodStart <= now && now < *s.CurrentPeriodEnd
}
