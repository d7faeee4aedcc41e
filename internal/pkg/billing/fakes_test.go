package billing

import (
	"context"
	"sync"

	"gorm.io/gorm"

	"github.com/ManuelReschke/CoinSchool/app/models"
	"github.com/ManuelReschke/CoinSchool/internal/pkg/apperror"
)

type fakeProcessor struct {
	mu sync.Mutex

	prices        map[string]bool
	promotions    map[string]string
	coupons       []Coupon
	subscriptions map[string]*ProcessorSubscription
	sessionURL    string

	createCustomerErr error
	sessionErr        error

	nextCustomer   string
	createdCusts   []CustomerParams
	deletedCusts   []string
	sessionParams  []CheckoutSessionParams
	subscriptionsN int
	priceChecks    int
}

func newFakeProcessor() *fakeProcessor {
	return &fakeProcessor{
		prices:        map[string]bool{"price_basic": true},
		promotions:    map[string]string{},
		subscriptions: map[string]*ProcessorSubscription{},
		sessionURL:    "https://checkout.stripe.test/c/pay/cs_test",
		nextCustomer:  "cus_new",
	}
}

func (f *fakeProcessor) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.priceChecks + len(f.createdCusts) + len(f.sessionParams) + f.subscriptionsN
}

func (f *fakeProcessor) PriceExists(ctx context.Context, priceID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.priceChecks++
	return f.prices[priceID], nil
}

func (f *fakeProcessor) CreateCustomer(ctx context.Context, params CustomerParams) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createdCusts = append(f.createdCusts, params)
	if f.createCustomerErr != nil {
		return "", f.createCustomerErr
	}
	return f.nextCustomer, nil
}

func (f *fakeProcessor) DeleteCustomer(ctx context.Context, customerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletedCusts = append(f.deletedCusts, customerID)
	return nil
}

func (f *fakeProcessor) FindActivePromotionCode(ctx context.Context, code string) (*Discount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id, ok := f.promotions[code]; ok {
		return &Discount{PromotionCodeID: id}, nil
	}
	return nil, nil
}

func (f *fakeProcessor) ListCoupons(ctx context.Context) ([]Coupon, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.coupons, nil
}

func (f *fakeProcessor) CreateCheckoutSession(ctx context.Context, params CheckoutSessionParams) (*CheckoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessionParams = append(f.sessionParams, params)
	if f.sessionErr != nil {
		return nil, f.sessionErr
	}
	return &CheckoutSession{ID: "cs_test", URL: f.sessionURL}, nil
}

func (f *fakeProcessor) LatestSubscription(ctx context.Context, customerID string) (*ProcessorSubscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscriptionsN++
	sub, ok := f.subscriptions[customerID]
	if !ok {
		return nil, nil
	}
	cp := *sub
	return &cp, nil
}

// fakeRepo models the unique constraints of the real tables.
type fakeRepo struct {
	mu sync.Mutex

	customers     map[string]*models.BillingCustomer
	subscriptions map[string]models.Subscription
	orders        map[string]models.Order

	createCustomerErr error
	// raceCustomer is inserted right before CreateCustomer fails with a duplicate.
	raceCustomer *models.BillingCustomer
	upserts      int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		customers:     map[string]*models.BillingCustomer{},
		subscriptions: map[string]models.Subscription{},
		orders:        map[string]models.Order{},
	}
}

func (r *fakeRepo) FindCustomerByUserID(ctx context.Context, userID string) (*models.BillingCustomer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.customers[userID]
	if !ok || c.DeletedAt.Valid {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *fakeRepo) CreateCustomer(ctx context.Context, customer *models.BillingCustomer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.raceCustomer != nil {
		r.customers[r.raceCustomer.UserID] = r.raceCustomer
		r.raceCustomer = nil
	}
	if r.createCustomerErr != nil {
		return r.createCustomerErr
	}
	if _, ok := r.customers[customer.UserID]; ok {
		return gorm.ErrDuplicatedKey
	}
	cp := *customer
	r.customers[customer.UserID] = &cp
	return nil
}

func (r *fakeRepo) UpsertSubscription(ctx context.Context, sub *models.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upserts++
	r.subscriptions[sub.CustomerID] = *sub
	return nil
}

func (r *fakeRepo) InsertOrder(ctx context.Context, order *models.Order) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.orders[order.CheckoutSessionID]; ok {
		return false, nil
	}
	r.orders[order.CheckoutSessionID] = *order
	return true, nil
}

func (r *fakeRepo) FindActiveSubscriptionByUserID(ctx context.Context, userID string, now int64) (*models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.customers[userID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	sub, ok := r.subscriptions[c.StripeCustomerID]
	if !ok || !sub.ActiveAt(now) {
		return nil, gorm.ErrRecordNotFound
	}
	return &sub, nil
}

func (r *fakeRepo) ListStaleSubscriptionCustomers(ctx context.Context, now int64, limit int) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for id, sub := range r.subscriptions {
		if sub.Status != models.SubscriptionStatusActive && sub.Status != models.SubscriptionStatusTrialing {
			continue
		}
		if sub.CurrentPeriodEnd != nil && *sub.CurrentPeriodEnd <= now {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (r *fakeRepo) subscriptionRows() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subscriptions)
}

type fakeUsers struct {
	users map[string]*models.User
	calls int
}

func (f *fakeUsers) UserFromToken(ctx context.Context, token string) (*models.User, error) {
	f.calls++
	if token == "" {
		return nil, apperror.Authentication("")
	}
	u, ok := f.users[token]
	if !ok {
		return nil, apperror.Authentication("")
	}
	return u, nil
}

type fakeAudit struct {
	mu      sync.Mutex
	entries []*models.SecurityLog
}

func (f *fakeAudit) Record(ctx context.Context, entry *models.SecurityLog) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entry)
}
