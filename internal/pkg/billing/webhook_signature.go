package billing

import (
	"context"
	"errors"
	"strings"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/ManuelReschke/CoinSchool/internal/pkg/apperror"
	"github.com/ManuelReschke/CoinSchool/internal/pkg/retry"
)

var (
	errMissingSignature = errors.New("missing signature header")
	errMissingSecret    = errors.New("webhook secret is not configured")
)

// WebhookVerifier authenticates inbound Stripe events.
type WebhookVerifier struct {
	secret string
}

func NewWebhookVerifier(secret string) *WebhookVerifier {
	return &WebhookVerifier{secret: strings.TrimSpace(secret)}
}

// Verify checks the payload against the Stripe-Signature header and returns the
// decoded event. Every authenticity failure is a signature error.
func (v *WebhookVerifier) Verify(ctx context.Context, payload []byte, signatureHeader string) (Event, error) {
	return VerifyWebhookSignature(ctx, payload, signatureHeader, v.secret)
}

func VerifyWebhookSignature(ctx context.Context, payload []byte, signatureHeader, secret string) (Event, error) {
	sig := strings.TrimSpace(signatureHeader)
	secret = strings.TrimSpace(secret)
	if sig == "" {
		return Event{}, apperror.Signature(errMissingSignature)
	}
	if secret == "" {
		return Event{}, apperror.Signature(errMissingSecret)
	}

	evt, err := retry.Value(ctx, "stripe.verify_webhook", func() (stripe.Event, error) {
		evt, err := webhook.ConstructEventWithOptions(payload, sig, secret, webhook.ConstructEventOptions{
			IgnoreAPIVersionMismatch: true,
		})
		if err != nil {
			// verification is local and deterministic
			return evt, retry.Permanent(err)
		}
		return evt, nil
	})
	if err != nil {
		return Event{}, apperror.Signature(err)
	}
	return toEvent(evt)
}

func toEvent(evt stripe.Event) (Event, error) {
	out := Event{ID: evt.ID, Type: string(evt.Type)}
	if evt.Data == nil {
		return out, nil
	}
	obj, err := ParseEventObject(evt.Data.Raw)
	if err != nil {
		return Event{}, apperror.Signature(err)
	}
	out.Object = obj
	out.Raw = evt.Data.Raw
	return out, nil
}
