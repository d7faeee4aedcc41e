package jobqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/CoinSchool/internal/pkg/metrics"
)

const (
	keyPrefix = "coinschool:billing:"

	// Redis keys
	JobKeyPrefix     = keyPrefix + "job:"
	JobQueueKey      = keyPrefix + "queue"
	JobProcessingKey = keyPrefix + "processing"
	JobStatsKey      = keyPrefix + "stats"

	DefaultMaxRetries = 3
	JobTTL            = 24 * time.Hour
	// JobTimeout bounds a single handler run. The reconciler's own harness
	// finishes well inside it.
	JobTimeout = 2 * time.Minute
	// EnqueueTimeout bounds the Redis write on the webhook path, where the
	// sender is still waiting for its acknowledgement.
	EnqueueTimeout = 2 * time.Second

	stuckMaxAge        = 10 * time.Minute
	stuckSweepInterval = time.Minute
	baseRetryDelay     = 30 * time.Second
	maxRetryDelay      = 10 * time.Minute
)

// ErrNoClient is returned when the queue was built without Redis.
var ErrNoClient = errors.New("job queue has no redis client")

// Handler processes one job. A returned error marks the job failed.
type Handler func(ctx context.Context, job *Job) error

// Queue runs webhook reconciliation and resync jobs on Redis lists. Pending
// ids live in JobQueueKey, in-flight ids in JobProcessingKey, and the job
// body under JobKeyPrefix+id.
type Queue struct {
	client         *redis.Client
	workers        int
	enqueueTimeout time.Duration

	mu      sync.Mutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	handlersMu sync.RWMutex
	handlers   map[JobType]Handler
	metrics    *metrics.Billing
}

// NewQueue creates a queue on client. workers <= 0 falls back to 3.
func NewQueue(client *redis.Client, workers int) *Queue {
	if workers <= 0 {
		workers = 3
	}
	return &Queue{
		client:         client,
		workers:        workers,
		enqueueTimeout: EnqueueTimeout,
		handlers:       make(map[JobType]Handler),
	}
}

// RegisterHandler binds a handler to a job type. Registering twice replaces the handler.
func (q *Queue) RegisterHandler(jobType JobType, h Handler) {
	q.handlersMu.Lock()
	defer q.handlersMu.Unlock()
	q.handlers[jobType] = h
}

// SetMetrics enables job outcome counters.
func (q *Queue) SetMetrics(m *metrics.Billing) {
	q.metrics = m
}

// dispatch runs the handler registered for the job's type. A panicking
// handler fails the job instead of killing the worker.
func (q *Queue) dispatch(ctx context.Context, job *Job) (err error) {
	q.handlersMu.RLock()
	h, ok := q.handlers[job.Type]
	q.handlersMu.RUnlock()
	if !ok {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, job)
}

// Start launches the workers and the stuck-job sweeper.
func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.running {
		return
	}
	if q.client == nil {
		log.Warn("[JobQueue] No Redis client, workers not started")
		return
	}

	q.ctx, q.cancel = context.WithCancel(context.Background())
	q.running = true
	log.Infof("[JobQueue] Starting %d workers", q.workers)

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(q.ctx, i)
	}

	q.wg.Add(1)
	go q.stuckSweeper(q.ctx)
}

// Stop cancels the workers and waits for in-flight jobs to return.
func (q *Queue) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.running {
		return
	}

	log.Info("[JobQueue] Stopping workers...")
	q.cancel()
	q.running = false
	q.wg.Wait()
	log.Info("[JobQueue] All workers stopped")
}

func (q *Queue) stuckSweeper(ctx context.Context) {
	defer q.wg.Done()
	ticker := time.NewTicker(stuckSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := q.recoverStuck(ctx, time.Now(), stuckMaxAge)
			if err != nil {
				log.Errorf("[JobQueue] Stuck sweep failed: %v", err)
				continue
			}
			if n > 0 {
				log.Warnf("[JobQueue] Requeued %d stuck jobs", n)
			}
		}
	}
}

// recoverStuck moves jobs that have been processing longer than maxAge back
// to pending. Entries without a readable body are dropped from the list.
func (q *Queue) recoverStuck(ctx context.Context, now time.Time, maxAge time.Duration) (int, error) {
	ids, err := q.client.LRange(ctx, JobProcessingKey, 0, -1).Result()
	if err != nil {
		return 0, err
	}

	recovered := 0
	for _, id := range ids {
		job, err := q.GetJob(ctx, id)
		if err != nil {
			if !errors.Is(err, redis.Nil) {
				log.Errorf("[JobQueue] Sweeper could not read job %s: %v", id, err)
			}
			q.removeFromProcessing(ctx, id)
			continue
		}
		if job.Status != JobStatusProcessing {
			q.removeFromProcessing(ctx, id)
			continue
		}

		started := job.UpdatedAt
		if job.ProcessedAt != nil && !job.ProcessedAt.IsZero() {
			started = *job.ProcessedAt
		}
		if now.Sub(started) <= maxAge {
			continue
		}

		job.Status = JobStatusPending
		job.ErrorMsg = "recovered by sweeper"
		job.UpdatedAt = now
		q.updateJob(ctx, job)

		pipe := q.client.TxPipeline()
		pipe.LRem(ctx, JobProcessingKey, 1, id)
		pipe.RPush(ctx, JobQueueKey, id)
		if _, err := pipe.Exec(ctx); err != nil {
			return recovered, err
		}
		recovered++
	}
	return recovered, nil
}

func (q *Queue) worker(ctx context.Context, id int) {
	defer q.wg.Done()
	log.Debugf("[JobQueue] Worker %d started", id)

	for ctx.Err() == nil {
		job, err := q.dequeueJob(ctx)
		if err != nil {
			if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
				log.Errorf("[JobQueue] Worker %d: dequeue failed: %v", id, err)
				time.Sleep(time.Second)
			}
			continue
		}
		// In-flight jobs finish even when Stop is called.
		q.processJob(context.WithoutCancel(ctx), job)
	}
	log.Debugf("[JobQueue] Worker %d stopped", id)
}

// EnqueueJob adds a job with the default retry budget.
func (q *Queue) EnqueueJob(jobType JobType, payload map[string]interface{}) (*Job, error) {
	return q.EnqueueJobWithRetries(jobType, payload, DefaultMaxRetries)
}

// EnqueueJobWithRetries adds a job that the queue re-runs at most maxRetries
// times after a failure. Zero disables queue-level retries.
func (q *Queue) EnqueueJobWithRetries(jobType JobType, payload map[string]interface{}, maxRetries int) (*Job, error) {
	if q.client == nil {
		return nil, ErrNoClient
	}
	if maxRetries < 0 {
		maxRetries = 0
	}

	now := time.Now()
	job := &Job{
		ID:         uuid.New().String(),
		Type:       jobType,
		Status:     JobStatusPending,
		Payload:    payload,
		CreatedAt:  now,
		UpdatedAt:  now,
		MaxRetries: maxRetries,
	}

	jobData, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), q.enqueueTimeout)
	defer cancel()

	pipe := q.client.TxPipeline()
	pipe.Set(ctx, JobKeyPrefix+job.ID, jobData, JobTTL)
	pipe.LPush(ctx, JobQueueKey, job.ID)
	pipe.HIncrBy(ctx, JobStatsKey, string(JobStatusPending), 1)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to enqueue job: %w", err)
	}

	log.Debugf("[JobQueue] Enqueued job %s (type=%s)", job.ID, job.Type)
	return job, nil
}

// dequeueJob blocks up to a second for the next id and moves it to the
// processing list atomically.
func (q *Queue) dequeueJob(ctx context.Context) (*Job, error) {
	jobID, err := q.client.BLMove(ctx, JobQueueKey, JobProcessingKey, "RIGHT", "LEFT", time.Second).Result()
	if err != nil {
		return nil, err
	}

	job, err := q.GetJob(ctx, jobID)
	if err != nil {
		q.removeFromProcessing(ctx, jobID)
		return nil, fmt.Errorf("job %s unreadable: %w", jobID, err)
	}
	return job, nil
}

func (q *Queue) processJob(ctx context.Context, job *Job) {
	job.MarkAsProcessing()
	q.updateJob(ctx, job)

	runCtx, cancel := context.WithTimeout(ctx, JobTimeout)
	err := q.dispatch(runCtx, job)
	cancel()

	if err == nil {
		job.MarkAsCompleted()
		q.updateJobStats(ctx, JobStatusCompleted, 1)
		q.metrics.RecordJob(string(job.Type), string(JobStatusCompleted))
		q.removeCompletedJob(ctx, job.ID)
		q.removeFromProcessing(ctx, job.ID)
		return
	}

	job.MarkAsFailed(err.Error())
	if job.IsRetryable() {
		delay := retryDelay(job.RetryCount)
		log.Warnf("[JobQueue] Job %s failed, retry %d/%d in %s: %v", job.ID, job.RetryCount, job.MaxRetries, delay, err)
		job.MarkAsRetrying()
		q.updateJob(ctx, job)
		q.removeFromProcessing(ctx, job.ID)
		q.requeueAfter(job.ID, delay)
		return
	}

	log.Errorw("[JobQueue] Job failed permanently",
		"job_id", job.ID,
		"type", string(job.Type),
		"attempts", job.RetryCount,
		"error", err.Error(),
	)
	q.updateJob(ctx, job)
	q.updateJobStats(ctx, JobStatusFailed, 1)
	q.metrics.RecordJob(string(job.Type), string(JobStatusFailed))
	q.removeFromProcessing(ctx, job.ID)
}

// retryDelay doubles per attempt starting at baseRetryDelay.
func retryDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := baseRetryDelay
	for i := 1; i < attempt && d < maxRetryDelay; i++ {
		d *= 2
	}
	if d > maxRetryDelay {
		d = maxRetryDelay
	}
	return d
}

// requeueAfter pushes jobID back once delay has passed, unless the queue has
// stopped. The job body keeps status retrying so the sweeper ignores it.
func (q *Queue) requeueAfter(jobID string, delay time.Duration) {
	q.mu.Lock()
	ctx := q.ctx
	q.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}

	time.AfterFunc(delay, func() {
		if ctx.Err() != nil {
			return
		}
		if err := q.client.LPush(context.Background(), JobQueueKey, jobID).Err(); err != nil {
			log.Errorf("[JobQueue] Requeue of %s failed: %v", jobID, err)
		}
	})
}

func (q *Queue) updateJob(ctx context.Context, job *Job) {
	jobData, err := json.Marshal(job)
	if err != nil {
		log.Errorf("[JobQueue] Failed to marshal job %s: %v", job.ID, err)
		return
	}
	if err := q.client.Set(ctx, JobKeyPrefix+job.ID, jobData, JobTTL).Err(); err != nil {
		log.Errorf("[JobQueue] Failed to update job %s: %v", job.ID, err)
	}
}

func (q *Queue) removeFromProcessing(ctx context.Context, jobID string) {
	if err := q.client.LRem(ctx, JobProcessingKey, 1, jobID).Err(); err != nil {
		log.Errorf("[JobQueue] Failed to remove job %s from processing list: %v", jobID, err)
	}
}

func (q *Queue) removeCompletedJob(ctx context.Context, jobID string) {
	if err := q.client.Del(ctx, JobKeyPrefix+jobID).Err(); err != nil {
		log.Errorf("[JobQueue] Failed to delete completed job %s: %v", jobID, err)
	}
}

func (q *Queue) updateJobStats(ctx context.Context, status JobStatus, delta int64) {
	if err := q.client.HIncrBy(ctx, JobStatsKey, string(status), delta).Err(); err != nil {
		log.Errorf("[JobQueue] Failed to update job stats: %v", err)
	}
}

// GetJob returns the stored job. A missing id yields redis.Nil.
func (q *Queue) GetJob(ctx context.Context, jobID string) (*Job, error) {
	if q.client == nil {
		return nil, ErrNoClient
	}
	jobData, err := q.client.Get(ctx, JobKeyPrefix+jobID).Bytes()
	if err != nil {
		return nil, err
	}

	var job Job
	if err := json.Unmarshal(jobData, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	return &job, nil
}

// GetJobStats returns the counters per terminal status.
func (q *Queue) GetJobStats(ctx context.Context) (map[JobStatus]int64, error) {
	if q.client == nil {
		return nil, ErrNoClient
	}
	stats, err := q.client.HGetAll(ctx, JobStatsKey).Result()
	if err != nil {
		return nil, err
	}

	result := make(map[JobStatus]int64, len(stats))
	for status, count := range stats {
		if n, err := json.Number(count).Int64(); err == nil {
			result[JobStatus(status)] = n
		}
	}
	return result, nil
}

// GetQueueSize returns the number of pending jobs.
func (q *Queue) GetQueueSize(ctx context.Context) (int64, error) {
	if q.client == nil {
		return 0, ErrNoClient
	}
	return q.client.LLen(ctx, JobQueueKey).Result()
}

// GetProcessingSize returns the number of jobs in flight.
func (q *Queue) GetProcessingSize(ctx context.Context) (int64, error) {
	if q.client == nil {
		return 0, ErrNoClient
	}
	return q.client.LLen(ctx, JobProcessingKey).Result()
}
