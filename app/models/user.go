package models

import "time"

// User mirrors the identity issued by the auth provider. Rows are created by
// the provider; this service only reads them.
type User struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Email     string    `gorm:"type:varchar(200);index" json:"email"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}
