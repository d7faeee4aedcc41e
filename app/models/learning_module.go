package models

import "time"

// LearningModule is a catalog entry. Free modules still require an account.
type LearningModule struct {
	Slug      string    `gorm:"primaryKey;type:varchar(120)" json:"slug"`
	Title     string    `gorm:"type:varchar(200);not null" json:"title"`
	IsFree    bool      `gorm:"not null" json:"is_free"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}
