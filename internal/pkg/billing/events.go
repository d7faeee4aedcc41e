package billing

// Event types with dedicated handling.
const (
	EventCheckoutSessionCompleted = "checkout.session.completed"
	EventPaymentIntentSucceeded   = "payment_intent.succeeded"
)

// relevantEvents are the lifecycle events that trigger a re-sync. The
// reconciler does not interpret them beyond that.
var relevantEvents = map[string]struct{}{
	EventCheckoutSessionCompleted:                  {},
	"customer.subscription.created":                {},
	"customer.subscription.updated":                {},
	"customer.subscription.deleted":                {},
	"customer.subscription.paused":                 {},
	"customer.subscription.resumed":                {},
	"customer.subscription.pending_update_applied": {},
	"customer.subscription.pending_update_expired": {},
	"customer.subscription.trial_will_end":         {},
	"invoice.paid":                                 {},
	"invoice.payment_failed":                       {},
	"invoice.payment_action_required":              {},
	"invoice.upcoming":                             {},
	"invoice.marked_uncollectible":                 {},
	"invoice.payment_succeeded":                    {},
	EventPaymentIntentSucceeded:                    {},
	"payment_intent.payment_failed":                {},
	"payment_intent.canceled":                      {},
}

// IsRelevantEvent reports whether eventType is handled by the reconciler.
func IsRelevantEvent(eventType string) bool {
	_, ok := relevantEvents[eventType]
	return ok
}

// action is what the reconciler decided to do with an event.
type action int

const (
	actionIgnore action = iota
	actionSync
	actionRecordOrder
)

func (a action) String() string {
	switch a {
	case actionSync:
		return "sync"
	case actionRecordOrder:
		return "record_order"
	default:
		return "ignore"
	}
}

// classify maps an event onto an action without touching any external system.
func classify(evt Event) action {
	if !IsRelevantEvent(evt.Type) {
		return actionIgnore
	}
	obj := evt.Object
	if obj.Customer == "" {
		return actionIgnore
	}

	switch evt.Type {
	case EventPaymentIntentSucceeded:
		// Invoice-less intents arrive through checkout.session.completed instead.
		if obj.Invoice == "" {
			return actionIgnore
		}
		return actionSync
	case EventCheckoutSessionCompleted:
		switch obj.Mode {
		case ModeSubscription:
			return actionSync
		case ModePayment:
			if obj.PaymentStatus == "paid" {
				return actionRecordOrder
			}
			return actionIgnore
		default:
			return actionIgnore
		}
	default:
		return actionSync
	}
}
