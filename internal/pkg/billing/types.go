package billing

import (
	"bytes"
	"encoding/json"
)

// Checkout modes accepted by the initiator.
const (
	ModePayment      = "payment"
	ModeSubscription = "subscription"
)

// ProcessorSubscription is the provider-agnostic shape of the newest
// subscription returned for a customer.
type ProcessorSubscription struct {
	ID                 string
	PriceID            string
	Status             string
	CurrentPeriodStart int64
	CurrentPeriodEnd   int64
	CancelAtPeriodEnd  bool
	PaymentMethodBrand string
	PaymentMethodLast4 string
}

// Discount references either a promotion code or a coupon, never both.
type Discount struct {
	PromotionCodeID string
	CouponID        string
}

// Coupon is the subset of coupon fields used by the fallback search.
type Coupon struct {
	ID    string
	Name  string
	Valid bool
}

// CustomerParams describes a processor customer to create.
type CustomerParams struct {
	UserID         string
	Email          string
	IdempotencyKey string
}

// CheckoutSessionParams describes a hosted checkout session to create.
type CheckoutSessionParams struct {
	CustomerID        string
	PriceID           string
	Mode              string
	SuccessURL        string
	CancelURL         string
	ClientReferenceID string
	Discount          *Discount
	IdempotencyKey    string
}

// CheckoutSession is the processor's answer to a session request.
type CheckoutSession struct {
	ID  string
	URL string
}

// Event is a verified webhook event.
type Event struct {
	ID     string
	Type   string
	Object EventObject
	// Raw is the data.object payload, kept for hand-off to the job queue.
	Raw json.RawMessage
}

// EventObject holds the data.object fields the reconciler looks at. Stripe
// sends most references either as an id string or as an expanded object.
type EventObject struct {
	ID            string       `json:"id"`
	Object        string       `json:"object"`
	Customer      ExpandableID `json:"customer"`
	Mode          string       `json:"mode"`
	PaymentStatus string       `json:"payment_status"`
	Invoice       ExpandableID `json:"invoice"`
	PaymentIntent ExpandableID `json:"payment_intent"`
	AmountTotal   int64        `json:"amount_total"`
	Currency      string       `json:"currency"`
}

// ExpandableID decodes either "id" or {"id": "..."}.
type ExpandableID string

func (e *ExpandableID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*e = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*e = ExpandableID(s)
		return nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*e = ExpandableID(obj.ID)
	return nil
}

func (e ExpandableID) String() string { return string(e) }

// ParseEventObject decodes a data.object payload.
func ParseEventObject(raw []byte) (EventObject, error) {
	var obj EventObject
	if len(bytes.TrimSpace(raw)) == 0 {
		return obj, nil
	}
	err := json.Unmarshal(raw, &obj)
	return obj, err
}
