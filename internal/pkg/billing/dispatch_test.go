package billing

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/CoinSchool/internal/pkg/jobqueue"
)

type fakeEnqueuer struct {
	mu   sync.Mutex
	jobs []*jobqueue.Job
	err  error
}

func (f *fakeEnqueuer) EnqueueJobWithRetries(jobType jobqueue.JobType, payload map[string]interface{}, maxRetries int) (*jobqueue.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	job := &jobqueue.Job{ID: "job-1", Type: jobType, Payload: payload, MaxRetries: maxRetries}
	f.jobs = append(f.jobs, job)
	return job, nil
}

func TestDispatch_QueuesRelevantEvents(t *testing.T) {
	rec, _, _ := newTestReconciler()
	q := &fakeEnqueuer{}
	d := NewEventDispatcher(q, rec)

	evt := eventFor(t, "evt_1", "invoice.paid", map[string]any{"id": "in_1", "customer": "cus_1"})
	d.Dispatch(evt)

	require.Len(t, q.jobs, 1)
	job := q.jobs[0]
	assert.Equal(t, jobqueue.JobTypeStripeEvent, job.Type)
	assert.Zero(t, job.MaxRetries)

	payload, err := jobqueue.StripeEventJobPayloadFromMap(job.Payload)
	require.NoError(t, err)
	restored, err := EventFromJobPayload(payload)
	require.NoError(t, err)
	assert.Equal(t, evt.ID, restored.ID)
	assert.Equal(t, evt.Type, restored.Type)
	assert.Equal(t, evt.Object, restored.Object)
}

func TestDispatch_SkipsIgnoredEvents(t *testing.T) {
	rec, _, _ := newTestReconciler()
	q := &fakeEnqueuer{}
	d := NewEventDispatcher(q, rec)

	d.Dispatch(eventFor(t, "evt_1", "invoice.paid", map[string]any{"id": "in_1"}))
	d.Dispatch(eventFor(t, "evt_2", "charge.refunded", map[string]any{"id": "ch_1", "customer": "cus_1"}))

	assert.Empty(t, q.jobs)
}

func TestDispatch_FallsBackToInProcess(t *testing.T) {
	rec, _, repo := newTestReconciler()
	d := NewEventDispatcher(&fakeEnqueuer{err: errors.New("redis down")}, rec)

	d.Dispatch(eventFor(t, "evt_1", "customer.subscription.created", map[string]any{"id": "sub_1", "customer": "cus_1"}))

	assert.Eventually(t, func() bool {
		return repo.subscriptionRows() == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDispatch_WithoutQueue(t *testing.T) {
	rec, _, repo := newTestReconciler()
	d := NewEventDispatcher(nil, rec)

	d.Dispatch(eventFor(t, "evt_1", "customer.subscription.created", map[string]any{"id": "sub_1", "customer": "cus_1"}))

	assert.Eventually(t, func() bool {
		return repo.subscriptionRows() == 1
	}, 2*time.Second, 10*time.Millisecond)
}
