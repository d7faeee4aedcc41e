package entitlements

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/CoinSchool/app/models"
)

// Denial reasons returned to clients.
const (
	ReasonAuthenticationRequired = "authentication_required"
	ReasonSubscriptionRequired   = "subscription_required"
)

// SubscriptionStore returns the mirror row that currently grants premium
// access to a user. gorm.ErrRecordNotFound means there is none.
type SubscriptionStore interface {
	FindActiveSubscriptionByUserID(ctx context.Context, userID string, now int64) (*models.Subscription, error)
}

// Decision is the outcome of an access check.
type Decision struct {
	Granted bool   `json:"granted"`
	Reason  string `json:"reason,omitempty"`
}

// Evaluator decides whether a user may open a learning module.
type Evaluator struct {
	store SubscriptionStore
	now   func() time.Time
}

func NewEvaluator(store SubscriptionStore) *Evaluator {
	return &Evaluator{store: store, now: time.Now}
}

// Evaluate applies the access policy. user is nil for anonymous callers.
// Any store failure denies access.
func (e *Evaluator) Evaluate(ctx context.Context, user *models.User, module models.LearningModule) Decision {
	if user == nil || user.ID == "" {
		return Decision{Reason: ReasonAuthenticationRequired}
	}
	if module.IsFree {
		return Decision{Granted: true}
	}

	now := e.now().Unix()
	sub, err := e.store.FindActiveSubscriptionByUserID(ctx, user.ID, now)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Errorw("[Entitlements] subscription lookup failed",
				"user_id", user.ID,
				"module", module.Slug,
				"error", err,
			)
		}
		return Decision{Reason: ReasonSubscriptionRequired}
	}

	// the store already filters, but a row outside its period must never grant
	if !sub.ActiveAt(now) {
		return Decision{Reason: ReasonSubscriptionRequired}
	}
	return Decision{Granted: true}
}
