package billing

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/CoinSchool/internal/pkg/jobqueue"
	"github.com/ManuelReschke/CoinSchool/internal/pkg/retry"
)

// Enqueuer is the part of the job queue used to hand off events.
type Enqueuer interface {
	EnqueueJobWithRetries(jobType jobqueue.JobType, payload map[string]interface{}, maxRetries int) (*jobqueue.Job, error)
}

// EventDispatcher hands verified events to background processing after the
// webhook response has been written.
type EventDispatcher struct {
	queue      Enqueuer
	reconciler *Reconciler
}

// NewEventDispatcher creates a dispatcher. A nil queue makes every event run
// in-process on its own goroutine.
func NewEventDispatcher(queue Enqueuer, reconciler *Reconciler) *EventDispatcher {
	return &EventDispatcher{queue: queue, reconciler: reconciler}
}

// Dispatch queues evt for reconciliation. Irrelevant events are dropped here so
// they never reach Redis. Errors are logged only; the sender already has its 200.
func (d *EventDispatcher) Dispatch(evt Event) {
	if classify(evt) == actionIgnore {
		log.Debugw("[Dispatch] event not queued", "event_id", evt.ID, "type", evt.Type)
		return
	}

	if d.queue != nil {
		payload := jobqueue.StripeEventJobPayload{
			EventID:   evt.ID,
			EventType: evt.Type,
			Object:    string(evt.Raw),
		}
		// Queue-level retries stay off: the per-call harness is the only retry layer.
		job, err := d.queue.EnqueueJobWithRetries(jobqueue.JobTypeStripeEvent, payload.ToMap(), 0)
		if err == nil {
			log.Infow("[Dispatch] event queued", "event_id", evt.ID, "type", evt.Type, "job_id", job.ID)
			return
		}
		log.Warnw("[Dispatch] enqueue failed, processing in-process", "event_id", evt.ID, "error", err.Error())
	}

	go d.runDetached(evt)
}

func (d *EventDispatcher) runDetached(evt Event) {
	ctx, cancel := context.WithTimeout(context.Background(), retry.RequestDeadline)
	defer cancel()
	if err := d.reconciler.Handle(ctx, evt); err != nil {
		log.Errorw("[Dispatch] in-process reconcile failed", "event_id", evt.ID, "type", evt.Type, "error", err.Error())
	}
}

// ProcessJob is the job queue handler for JobTypeStripeEvent.
func (r *Reconciler) ProcessJob(ctx context.Context, job *jobqueue.Job) error {
	payload, err := jobqueue.StripeEventJobPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("decode stripe event job %s: %w", job.ID, err)
	}
	evt, err := EventFromJobPayload(payload)
	if err != nil {
		return fmt.Errorf("decode stripe event job %s: %w", job.ID, err)
	}
	return r.Handle(ctx, evt)
}

// ProcessResyncJob is the job queue handler for JobTypeSubscriptionResync.
func (r *Reconciler) ProcessResyncJob(ctx context.Context, job *jobqueue.Job) error {
	payload, err := jobqueue.SubscriptionResyncJobPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("decode resync job %s: %w", job.ID, err)
	}
	_, err = r.SyncCustomer(ctx, payload.CustomerID)
	return err
}

// EventFromJobPayload rebuilds the event stored by Dispatch.
func EventFromJobPayload(p *jobqueue.StripeEventJobPayload) (Event, error) {
	raw := json.RawMessage(p.Object)
	obj, err := ParseEventObject(raw)
	if err != nil {
		return Event{}, err
	}
	return Event{ID: p.EventID, Type: p.EventType, Object: obj, Raw: raw}, nil
}
