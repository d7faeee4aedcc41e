package repository

import (
	"context"

	"github.com/ManuelReschke/CoinSchool/app/models"
	"gorm.io/gorm"
)

type securityLogRepository struct {
	db *gorm.DB
}

// NewSecurityLogRepository creates a new security log repository instance
func NewSecurityLogRepository(db *gorm.DB) SecurityLogRepository {
	return &securityLogRepository{db: db}
}

func (r *securityLogRepository) Create(ctx context.Context, entry *models.SecurityLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

// ListByUserID returns the newest entries first
func (r *securityLogRepository) ListByUserID(ctx context.Context, userID string, limit int) ([]models.SecurityLog, error) {
	if limit <= 0 {
		limit = 50
	}
	var entries []models.SecurityLog
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}
