package repository

import (
	"sync"

	"gorm.io/gorm"
)

// Factory manages repository instances and ensures they are singletons
type Factory struct {
	db    *gorm.DB
	repos *Repositories
	once  sync.Once
}

// NewFactory creates a new repository factory
func NewFactory(db *gorm.DB) *Factory {
	return &Factory{
		db: db,
	}
}

// GetRepositories returns a singleton instance of all repositories
func (f *Factory) GetRepositories() *Repositories {
	f.once.Do(func() {
		f.repos = NewRepositories(f.db)
	})
	return f.repos
}

// GetUserRepository returns the user repository instance
func (f *Factory) GetUserRepository() UserRepository {
	return f.GetRepositories().User
}

// GetSecurityLogRepository returns the security log repository instance
func (f *Factory) GetSecurityLogRepository() SecurityLogRepository {
	return f.GetRepositories().SecurityLog
}

// GetModuleRepository returns the learning module repository instance
func (f *Factory) GetModuleRepository() ModuleRepository {
	return f.GetRepositories().Module
}
