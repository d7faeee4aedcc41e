package models

import (
	"time"

	"gorm.io/gorm"
)

// BillingCustomer maps a user to the Stripe customer created for them on
// their first checkout. DeletedAt is reserved for soft-deletes.
type BillingCustomer struct {
	UserID           string         `gorm:"primaryKey;type:varchar(36)" json:"user_id"`
	StripeCustomerID string         `gorm:"type:varchar(191);not null;uniqueIndex:ux_billing_customers_stripe_customer" json:"stripe_customer_id"`
	CreatedAt        time.Time      `gorm:"autoCreateTime" json:"created_at"`
	DeletedAt        gorm.DeletedAt `gorm:"index" json:"-"`
}
