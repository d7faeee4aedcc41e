package billing

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ManuelReschke/CoinSchool/app/models"
)

// Repository provides DB operations used by the billing services.
type Repository interface {
	FindCustomerByUserID(ctx context.Context, userID string) (*models.BillingCustomer, error)
	CreateCustomer(ctx context.Context, customer *models.BillingCustomer) error
	UpsertSubscription(ctx context.Context, sub *models.Subscription) error
	// InsertOrder reports created=false when the checkout session was already recorded.
	InsertOrder(ctx context.Context, order *models.Order) (bool, error)
	FindActiveSubscriptionByUserID(ctx context.Context, userID string, now int64) (*models.Subscription, error)
	ListStaleSubscriptionCustomers(ctx context.Context, now int64, limit int) ([]string, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) FindCustomerByUserID(ctx context.Context, userID string) (*models.BillingCustomer, error) {
	var c models.BillingCustomer
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *gormRepository) CreateCustomer(ctx context.Context, customer *models.BillingCustomer) error {
	return r.db.WithContext(ctx).Create(customer).Error
}

func (r *gormRepository) UpsertSubscription(ctx context.Context, sub *models.Subscription) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "customer_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"subscription_id",
			"price_id",
			"current_period_start",
			"current_period_end",
			"cancel_at_period_end",
			"status",
			"payment_method_brand",
			"payment_method_last4",
			"updated_at",
		}),
	}).Create(sub).Error
}

func (r *gormRepository) InsertOrder(ctx context.Context, order *models.Order) (bool, error) {
	err := r.db.WithContext(ctx).Create(order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *gormRepository) FindActiveSubscriptionByUserID(ctx context.Context, userID string, now int64) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.WithContext(ctx).
		Joins("JOIN billing_customers ON billing_customers.stripe_customer_id = subscriptions.customer_id AND billing_customers.deleted_at IS NULL").
		Where("billing_customers.user_id = ?", userID).
		Where("subscriptions.status = ?", models.SubscriptionStatusActive).
		Where("subscriptions.current_period_start <= ? AND subscriptions.current_period_end > ?", now, now).
		Take(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// ListStaleSubscriptionCustomers returns customers whose mirror still says
// active or trialing although the period has ended, a sign of a missed webhook.
func (r *gormRepository) ListStaleSubscriptionCustomers(ctx context.Context, now int64, limit int) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&models.Subscription{}).
		Where("status IN ?", []string{models.SubscriptionStatusActive, models.SubscriptionStatusTrialing}).
		Where("current_period_end IS NOT NULL AND current_period_end <= ?", now).
		Order("current_period_end").
		Limit(limit).
		Pluck("customer_id", &ids).Error
	return ids, err
}
