package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "coinschool"

// Billing exports checkout, webhook and reconciliation telemetry. A nil
// *Billing is valid and records nothing, which keeps services usable in tests.
type Billing struct {
	checkouts         *prometheus.CounterVec
	webhooks          *prometheus.CounterVec
	reconciles        *prometheus.CounterVec
	reconcileDuration *prometheus.HistogramVec
	jobs              *prometheus.CounterVec
}

// NewBilling builds the billing collectors and registers them with reg.
// Collectors that are already registered are reused.
func NewBilling(reg prometheus.Registerer) (*Billing, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	b := &Billing{
		checkouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "billing",
			Name:      "checkout_requests_total",
			Help:      "Checkout session requests by outcome.",
		}, []string{"outcome"}),
		webhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "billing",
			Name:      "webhook_events_total",
			Help:      "Inbound webhook deliveries by verification result.",
		}, []string{"result"}),
		reconciles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "billing",
			Name:      "reconcile_total",
			Help:      "Reconciler runs by action and result.",
		}, []string{"action", "result"}),
		reconcileDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "billing",
			Name:      "reconcile_duration_seconds",
			Help:      "Latency of reconciler runs, processor and database calls included.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"action"}),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobqueue",
			Name:      "jobs_total",
			Help:      "Background jobs by type and final status.",
		}, []string{"type", "status"}),
	}

	var err error
	if b.checkouts, err = registerCounterVec(reg, b.checkouts); err != nil {
		return nil, err
	}
	if b.webhooks, err = registerCounterVec(reg, b.webhooks); err != nil {
		return nil, err
	}
	if b.reconciles, err = registerCounterVec(reg, b.reconciles); err != nil {
		return nil, err
	}
	if b.jobs, err = registerCounterVec(reg, b.jobs); err != nil {
		return nil, err
	}
	if err := reg.Register(b.reconcileDuration); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return nil, fmt.Errorf("register billing metric: %w", err)
		}
		existing, ok := are.ExistingCollector.(*prometheus.HistogramVec)
		if !ok {
			return nil, fmt.Errorf("register billing metric: unexpected collector %T", are.ExistingCollector)
		}
		b.reconcileDuration = existing
	}
	return b, nil
}

func registerCounterVec(reg prometheus.Registerer, c *prometheus.CounterVec) (*prometheus.CounterVec, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return nil, fmt.Errorf("register billing metric: %w", err)
		}
		existing, ok := are.ExistingCollector.(*prometheus.CounterVec)
		if !ok {
			return nil, fmt.Errorf("register billing metric: unexpected collector %T", are.ExistingCollector)
		}
		return existing, nil
	}
	return c, nil
}

func (b *Billing) RecordCheckout(outcome string) {
	if b == nil {
		return
	}
	b.checkouts.WithLabelValues(outcome).Inc()
}

func (b *Billing) RecordWebhook(result string) {
	if b == nil {
		return
	}
	b.webhooks.WithLabelValues(result).Inc()
}

// RecordReconcile tracks one reconciler run.
func (b *Billing) RecordReconcile(action string, duration time.Duration, err error) {
	if b == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	b.reconciles.WithLabelValues(action, result).Inc()
	b.reconcileDuration.WithLabelValues(action).Observe(duration.Seconds())
}

func (b *Billing) RecordJob(jobType, status string) {
	if b == nil {
		return
	}
	b.jobs.WithLabelValues(jobType, status).Inc()
}
