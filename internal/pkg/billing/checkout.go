package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ManuelReschke/CoinSchool/app/models"
	"github.com/ManuelReschke/CoinSchool/internal/pkg/apperror"
	"github.com/ManuelReschke/CoinSchool/internal/pkg/metrics"
	"github.com/ManuelReschke/CoinSchool/internal/pkg/retry"
)

// CheckoutRequest is the body of a checkout initiation call.
type CheckoutRequest struct {
	PriceID       string `json:"price_id" validate:"required"`
	SuccessURL    string `json:"success_url" validate:"required"`
	CancelURL     string `json:"cancel_url" validate:"required"`
	Mode          string `json:"mode" validate:"required,oneof=payment subscription"`
	PromotionCode string `json:"promotion_code,omitempty"`
}

type CheckoutResult struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
}

// RequestMeta carries caller details for the audit trail.
type RequestMeta struct {
	IP        string
	UserAgent string
}

// UserResolver resolves a bearer token to a user. It returns an
// authentication error for a bad token and a not-found error for an unknown user.
type UserResolver interface {
	UserFromToken(ctx context.Context, token string) (*models.User, error)
}

// AuditRecorder writes security log entries. Implementations swallow their own failures.
type AuditRecorder interface {
	Record(ctx context.Context, entry *models.SecurityLog)
}

type CheckoutDeps struct {
	Processor Processor
	Repo      Repository
	Users     UserResolver
	Audit     AuditRecorder
	Metrics   *metrics.Billing
	// SiteURL is the public base URL used to resolve relative redirect paths.
	SiteURL string
}

// CheckoutService creates hosted checkout sessions.
type CheckoutService struct {
	processor Processor
	repo      Repository
	users     UserResolver
	audit     AuditRecorder
	metrics   *metrics.Billing
	siteURL   string
	validate  *validator.Validate
}

func NewCheckoutService(d CheckoutDeps) *CheckoutService {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return &CheckoutService{
		processor: d.Processor,
		repo:      d.Repo,
		users:     d.Users,
		audit:     d.Audit,
		metrics:   d.Metrics,
		siteURL:   strings.TrimRight(d.SiteURL, "/"),
		validate:  v,
	}
}

// CreateSession validates the request, resolves the caller and their billing
// customer, and asks the processor for a hosted checkout session.
func (s *CheckoutService) CreateSession(ctx context.Context, token string, req CheckoutRequest, meta RequestMeta) (*CheckoutResult, error) {
	start := time.Now()
	res, err := s.createSession(ctx, token, req, meta)
	if err != nil {
		s.metrics.RecordCheckout(string(apperror.KindOf(err)))
		log.Errorw("[Checkout] session creation failed",
			"kind", string(apperror.KindOf(err)),
			"price_id", req.PriceID,
			"mode", req.Mode,
			"elapsed", time.Since(start).String(),
			"error", err.Error(),
		)
		return nil, err
	}
	s.metrics.RecordCheckout("ok")
	log.Infow("[Checkout] session created", "session_id", res.SessionID, "elapsed", time.Since(start).String())
	return res, nil
}

func (s *CheckoutService) createSession(ctx context.Context, token string, req CheckoutRequest, meta RequestMeta) (*CheckoutResult, error) {
	req = normalizeRequest(req)
	if err := s.validateRequest(req); err != nil {
		return nil, err
	}
	req.SuccessURL = s.absoluteURL(req.SuccessURL)
	req.CancelURL = s.absoluteURL(req.CancelURL)

	user, err := s.users.UserFromToken(ctx, token)
	if err != nil {
		return nil, err
	}

	exists, err := retry.Value(ctx, "stripe.get_price", func() (bool, error) {
		return s.processor.PriceExists(ctx, req.PriceID)
	})
	if err != nil {
		return nil, apperror.Upstream("stripe.get_price", err)
	}
	if !exists {
		return nil, apperror.NotFound("Price")
	}

	customerID, err := s.resolveCustomer(ctx, user)
	if err != nil {
		return nil, err
	}

	discount := s.resolveDiscount(ctx, req.PromotionCode)

	params := CheckoutSessionParams{
		CustomerID:        customerID,
		PriceID:           req.PriceID,
		Mode:              req.Mode,
		SuccessURL:        req.SuccessURL,
		CancelURL:         req.CancelURL,
		ClientReferenceID: user.ID,
		Discount:          discount,
		IdempotencyKey:    uuid.NewString(),
	}
	session, err := retry.Value(ctx, "stripe.create_checkout_session", func() (*CheckoutSession, error) {
		return s.processor.CreateCheckoutSession(ctx, params)
	})
	if err != nil {
		return nil, apperror.Upstream("stripe.create_checkout_session", err)
	}
	if session == nil || session.URL == "" {
		return nil, apperror.Upstream("stripe.create_checkout_session", errors.New("processor returned no session url"))
	}

	s.recordPaymentInitiated(ctx, user, req, session, discount, meta)

	return &CheckoutResult{SessionID: session.ID, URL: session.URL}, nil
}

func normalizeRequest(req CheckoutRequest) CheckoutRequest {
	req.PriceID = strings.TrimSpace(req.PriceID)
	req.SuccessURL = strings.TrimSpace(req.SuccessURL)
	req.CancelURL = strings.TrimSpace(req.CancelURL)
	req.Mode = strings.TrimSpace(req.Mode)
	req.PromotionCode = strings.TrimSpace(req.PromotionCode)
	return req
}

// validateRequest reports the first failing parameter only.
func (s *CheckoutService) validateRequest(req CheckoutRequest) error {
	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperror.Validation("body", "invalid request body")
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "oneof":
		return apperror.Validation(fe.Field(), fmt.Sprintf("%s must be one of: %s", fe.Field(), strings.ReplaceAll(fe.Param(), " ", ", ")))
	default:
		return apperror.Validation(fe.Field(), "")
	}
}

func (s *CheckoutService) absoluteURL(u string) string {
	if strings.HasPrefix(u, "/") && !strings.HasPrefix(u, "//") && s.siteURL != "" {
		return s.siteURL + u
	}
	return u
}

// resolveCustomer returns the processor customer id for user, creating the
// customer and its mapping on first checkout.
func (s *CheckoutService) resolveCustomer(ctx context.Context, user *models.User) (string, error) {
	existing, err := s.findCustomer(ctx, user.ID)
	if err != nil {
		return "", err
	}
	if existing != nil {
		return existing.StripeCustomerID, nil
	}

	idempotencyKey := uuid.NewString()
	customerID, err := retry.Value(ctx, "stripe.create_customer", func() (string, error) {
		return s.processor.CreateCustomer(ctx, CustomerParams{
			UserID:         user.ID,
			Email:          user.Email,
			IdempotencyKey: idempotencyKey,
		})
	})
	if err != nil {
		return "", apperror.Upstream("stripe.create_customer", err)
	}

	mapping := &models.BillingCustomer{UserID: user.ID, StripeCustomerID: customerID}
	err = retry.Do(ctx, "db.insert_billing_customer", func() error {
		err := s.repo.CreateCustomer(ctx, mapping)
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return retry.Permanent(err)
		}
		return err
	})
	if err == nil {
		log.Infow("[Checkout] billing customer created", "user_id", user.ID, "customer_id", customerID)
		return customerID, nil
	}

	// The processor customer is not referenced by any row; remove it.
	s.deleteOrphanedCustomer(ctx, customerID)

	if errors.Is(err, gorm.ErrDuplicatedKey) {
		// A concurrent checkout for the same user persisted its mapping first.
		existing, ferr := s.findCustomer(ctx, user.ID)
		if ferr != nil {
			return "", ferr
		}
		if existing != nil {
			return existing.StripeCustomerID, nil
		}
	}
	return "", apperror.Upstream("db.insert_billing_customer", err)
}

func (s *CheckoutService) findCustomer(ctx context.Context, userID string) (*models.BillingCustomer, error) {
	c, err := retry.Value(ctx, "db.find_billing_customer", func() (*models.BillingCustomer, error) {
		c, err := s.repo.FindCustomerByUserID(ctx, userID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return c, err
	})
	if err != nil {
		return nil, apperror.Upstream("db.find_billing_customer", err)
	}
	return c, nil
}

func (s *CheckoutService) deleteOrphanedCustomer(ctx context.Context, customerID string) {
	err := retry.Do(ctx, "stripe.delete_customer", func() error {
		return s.processor.DeleteCustomer(ctx, customerID)
	})
	if err != nil {
		log.Errorw("[Checkout] failed to delete orphaned customer", "customer_id", customerID, "error", err.Error())
		return
	}
	log.Warnw("[Checkout] deleted orphaned customer", "customer_id", customerID)
}

// resolveDiscount never fails: an unknown or unresolvable code means no discount.
func (s *CheckoutService) resolveDiscount(ctx context.Context, code string) *Discount {
	if code == "" {
		return nil
	}

	promo, err := retry.Value(ctx, "stripe.find_promotion_code", func() (*Discount, error) {
		return s.processor.FindActivePromotionCode(ctx, code)
	})
	if err != nil {
		log.Warnw("[Checkout] promotion code lookup failed", "code", code, "error", err.Error())
	} else if promo != nil {
		return promo
	}

	coupons, err := retry.Value(ctx, "stripe.list_coupons", func() ([]Coupon, error) {
		return s.processor.ListCoupons(ctx)
	})
	if err != nil {
		log.Warnw("[Checkout] coupon lookup failed", "code", code, "error", err.Error())
		return nil
	}
	if d := matchCoupon(coupons, code); d != nil {
		return d
	}
	log.Infow("[Checkout] promotion code not resolved, continuing without discount", "code", code)
	return nil
}

// matchCoupon prefers an exact id match over a case-insensitive name match.
func matchCoupon(coupons []Coupon, code string) *Discount {
	for _, c := range coupons {
		if c.Valid && c.ID == code {
			return &Discount{CouponID: c.ID}
		}
	}
	for _, c := range coupons {
		if c.Valid && c.Name != "" && strings.EqualFold(c.Name, code) {
			return &Discount{CouponID: c.ID}
		}
	}
	return nil
}

func (s *CheckoutService) recordPaymentInitiated(ctx context.Context, user *models.User, req CheckoutRequest, session *CheckoutSession, discount *Discount, meta RequestMeta) {
	if s.audit == nil {
		return
	}
	details := map[string]any{
		"session_id": session.ID,
		"price_id":   req.PriceID,
		"mode":       req.Mode,
		"discounted": discount != nil,
	}
	raw, err := json.Marshal(details)
	if err != nil {
		raw = []byte("{}")
	}
	userID := user.ID
	s.audit.Record(ctx, &models.SecurityLog{
		EventType: models.SecurityEventPaymentInitiated,
		UserID:    &userID,
		IPAddress: meta.IP,
		UserAgent: meta.UserAgent,
		Details:   string(raw),
	})
}
