package repository

import (
	"context"

	"github.com/ManuelReschke/CoinSchool/app/models"
	"gorm.io/gorm"
)

type moduleRepository struct {
	db *gorm.DB
}

// NewModuleRepository creates a new learning module repository instance
func NewModuleRepository(db *gorm.DB) ModuleRepository {
	return &moduleRepository{db: db}
}

func (r *moduleRepository) GetBySlug(ctx context.Context, slug string) (*models.LearningModule, error) {
	var module models.LearningModule
	if err := r.db.WithContext(ctx).Where("slug = ?", slug).First(&module).Error; err != nil {
		return nil, err
	}
	return &module, nil
}

func (r *moduleRepository) List(ctx context.Context) ([]models.LearningModule, error) {
	var modules []models.LearningModule
	err := r.db.WithContext(ctx).Order("slug").Find(&modules).Error
	return modules, err
}
