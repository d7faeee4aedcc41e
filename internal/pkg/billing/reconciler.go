package billing

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/CoinSchool/app/models"
	"github.com/ManuelReschke/CoinSchool/internal/pkg/apperror"
	"github.com/ManuelReschke/CoinSchool/internal/pkg/metrics"
	"github.com/ManuelReschke/CoinSchool/internal/pkg/retry"
)

// Reconciler converges the local subscription mirror with the processor.
// It never applies event deltas: every sync re-reads the newest subscription,
// so running it repeatedly or out of order yields the same row.
type Reconciler struct {
	processor Processor
	repo      Repository
	metrics   *metrics.Billing
	now       func() time.Time
}

func NewReconciler(processor Processor, repo Repository, m *metrics.Billing) *Reconciler {
	return &Reconciler{processor: processor, repo: repo, metrics: m, now: time.Now}
}

// Handle applies a verified event. Events without a customer, irrelevant
// event types and unpaid one-time sessions are no-ops.
func (r *Reconciler) Handle(ctx context.Context, evt Event) error {
	act := classify(evt)
	if act == actionIgnore {
		log.Debugw("[Reconciler] event ignored", "event_id", evt.ID, "type", evt.Type)
		return nil
	}

	start := time.Now()
	var err error
	switch act {
	case actionSync:
		_, err = r.SyncCustomer(ctx, evt.Object.Customer.String())
	case actionRecordOrder:
		_, err = r.RecordOrder(ctx, evt.Object)
	}
	elapsed := time.Since(start)
	r.metrics.RecordReconcile(act.String(), elapsed, err)

	if err != nil {
		log.Errorw("[Reconciler] event failed",
			"event_id", evt.ID,
			"type", evt.Type,
			"action", act.String(),
			"customer_id", evt.Object.Customer.String(),
			"elapsed", elapsed.String(),
			"error", err.Error(),
		)
		return err
	}
	log.Infow("[Reconciler] event applied",
		"event_id", evt.ID,
		"type", evt.Type,
		"action", act.String(),
		"customer_id", evt.Object.Customer.String(),
		"elapsed", elapsed.String(),
	)
	return nil
}

// SyncCustomer fetches the customer's newest subscription and upserts the
// mirror row keyed by customer id.
func (r *Reconciler) SyncCustomer(ctx context.Context, customerID string) (*models.Subscription, error) {
	if customerID == "" {
		return nil, apperror.Validation("customer_id", "")
	}

	sub, err := retry.Value(ctx, "stripe.list_subscriptions", func() (*ProcessorSubscription, error) {
		return r.processor.LatestSubscription(ctx, customerID)
	})
	if err != nil {
		return nil, apperror.Upstream("stripe.list_subscriptions", err)
	}

	row := MirrorRow(customerID, sub)
	if !models.IsValidSubscriptionStatus(row.Status) {
		log.Warnw("[Reconciler] unknown subscription status", "customer_id", customerID, "status", row.Status)
	}
	if err := retry.Do(ctx, "db.upsert_subscription", func() error {
		return r.repo.UpsertSubscription(ctx, row)
	}); err != nil {
		return nil, apperror.Upstream("db.upsert_subscription", err)
	}
	return row, nil
}

// RecordOrder inserts the order for a paid one-time checkout session. A
// repeated delivery of the same session reports created=false and no error.
func (r *Reconciler) RecordOrder(ctx context.Context, obj EventObject) (bool, error) {
	if obj.ID == "" {
		return false, apperror.Validation("checkout_session_id", "")
	}
	order := &models.Order{
		CheckoutSessionID: obj.ID,
		CustomerID:        obj.Customer.String(),
		PaymentIntentID:   obj.PaymentIntent.String(),
		AmountTotal:       obj.AmountTotal,
		Currency:          obj.Currency,
		PaymentStatus:     obj.PaymentStatus,
	}
	created, err := retry.Value(ctx, "db.insert_order", func() (bool, error) {
		return r.repo.InsertOrder(ctx, order)
	})
	if err != nil {
		return false, apperror.Upstream("db.insert_order", err)
	}
	if !created {
		log.Infow("[Reconciler] order already recorded", "checkout_session_id", obj.ID)
	}
	return created, nil
}

// ResyncStale re-syncs customers whose mirror row claims an access period that
// has already ended. It covers webhooks the processor gave up redelivering.
func (r *Reconciler) ResyncStale(ctx context.Context, limit int) (int, error) {
	ids, err := retry.Value(ctx, "db.list_stale_subscriptions", func() ([]string, error) {
		return r.repo.ListStaleSubscriptionCustomers(ctx, r.now().Unix(), limit)
	})
	if err != nil {
		return 0, apperror.Upstream("db.list_stale_subscriptions", err)
	}

	synced := 0
	var errs []error
	for _, id := range ids {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		start := time.Now()
		_, err := r.SyncCustomer(ctx, id)
		r.metrics.RecordReconcile("resync", time.Since(start), err)
		if err != nil {
			log.Errorw("[Reconciler] resync failed", "customer_id", id, "error", err.Error())
			errs = append(errs, err)
			continue
		}
		synced++
	}
	if synced > 0 {
		log.Infof("[Reconciler] resynced %d stale subscriptions", synced)
	}
	return synced, errors.Join(errs...)
}

// MirrorRow builds the mirror row for customerID from the newest processor
// subscription, or the not_started row when there is none.
func MirrorRow(customerID string, sub *ProcessorSubscription) *models.Subscription {
	if sub == nil {
		return &models.Subscription{
			CustomerID: customerID,
			Status:     models.SubscriptionStatusNotStarted,
		}
	}
	return &models.Subscription{
		CustomerID:         customerID,
		SubscriptionID:     optString(sub.ID),
		PriceID:            optString(sub.PriceID),
		CurrentPeriodStart: optInt64(sub.CurrentPeriodStart),
		CurrentPeriodEnd:   optInt64(sub.CurrentPeriodEnd),
		CancelAtPeriodEnd:  sub.CancelAtPeriodEnd,
		Status:             sub.Status,
		PaymentMethodBrand: optString(sub.PaymentMethodBrand),
		PaymentMethodLast4: optString(sub.PaymentMethodLast4),
	}
}

func optString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func optInt64(v int64) *int64 {
	if v == 0 {
		return nil
	}
	return &v
}
