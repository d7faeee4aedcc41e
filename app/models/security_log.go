package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	SecurityEventPaymentInitiated = "payment_initiated"
	// SecurityEventPasswordReset rows are written by the auth provider into
	// the shared table. This service only reads them back.
	SecurityEventPasswordReset    = "password_reset"
)

// SecurityLog is an append-only audit row.
type SecurityLog struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	EventType string    `gorm:"type:varchar(50);not null;index" json:"event_type"`
	UserID    *string   `gorm:"type:varchar(36);index" json:"user_id,omitempty"`
	IPAddress string    `gorm:"type:varchar(45)" json:"ip_address"`
	UserAgent string    `gorm:"type:text" json:"user_agent"`
	Details   string    `gorm:"type:text" json:"details"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (l *SecurityLog) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	return nil
}
