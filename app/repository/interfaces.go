package repository

import (
	"context"

	"github.com/ManuelReschke/CoinSchool/app/models"
	"gorm.io/gorm"
)

// UserRepository reads users issued by the auth provider.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
}

// SecurityLogRepository appends audit rows.
type SecurityLogRepository interface {
	Create(ctx context.Context, entry *models.SecurityLog) error
	ListByUserID(ctx context.Context, userID string, limit int) ([]models.SecurityLog, error)
}

// ModuleRepository reads the learning module catalog.
type ModuleRepository interface {
	GetBySlug(ctx context.Context, slug string) (*models.LearningModule, error)
	List(ctx context.Context) ([]models.LearningModule, error)
}

// Repositories holds all repository instances
type Repositories struct {
	User        UserRepository
	SecurityLog SecurityLogRepository
	Module      ModuleRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User:        NewUserRepository(db),
		SecurityLog: NewSecurityLogRepository(db),
		Module:      NewModuleRepository(db),
	}
}
