package models

import "time"

// Order records a completed one-time checkout. Rows are immutable and keyed by
// the checkout session id, so a redelivered webhook cannot create a second row.
type Order struct {
	CheckoutSessionID string    `gorm:"primaryKey;type:varchar(191)" json:"checkout_session_id"`
	CustomerID        string    `gorm:"type:varchar(191);not null;index" json:"customer_id"`
	PaymentIntentID   string    `gorm:"type:varchar(191)" json:"payment_intent_id"`
	AmountTotal       int64     `json:"amount_total"`
	Currency          string    `gorm:"type:varchar(8)" json:"currency"`
	PaymentStatus     string    `gorm:"type:varchar(32)" json:"payment_status"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"created_at"`
}
