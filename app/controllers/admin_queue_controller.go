package controllers

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/CoinSchool/internal/pkg/apperror"
	"github.com/ManuelReschke/CoinSchool/internal/pkg/jobqueue"
)

// JobInspector is the read side of the job queue.
type JobInspector interface {
	GetJob(ctx context.Context, jobID string) (*jobqueue.Job, error)
	GetJobStats(ctx context.Context) (map[jobqueue.JobStatus]int64, error)
	GetQueueSize(ctx context.Context) (int64, error)
	GetProcessingSize(ctx context.Context) (int64, error)
	EnqueueJob(jobType jobqueue.JobType, payload map[string]interface{}) (*jobqueue.Job, error)
}

// StaleResyncer runs one sweep over mirror rows whose period has ended.
type StaleResyncer interface {
	RunResyncOnce(ctx context.Context) (int, error)
}

// AdminQueueController exposes queue state and manual resync triggers to
// operators holding the service role key.
type AdminQueueController struct {
	queue  JobInspector
	resync StaleResyncer
}

// NewAdminQueueController creates a new admin queue controller
func NewAdminQueueController(queue JobInspector, resync StaleResyncer) *AdminQueueController {
	return &AdminQueueController{queue: queue, resync: resync}
}

// HandleQueueStats returns job counters and queue depth
func (aqc *AdminQueueController) HandleQueueStats(c *fiber.Ctx) error {
	ctx := c.UserContext()
	stats, err := aqc.queue.GetJobStats(ctx)
	if err != nil {
		return writeError(c, apperror.Upstream("jobqueue.stats", err))
	}
	pending, err := aqc.queue.GetQueueSize(ctx)
	if err != nil {
		return writeError(c, apperror.Upstream("jobqueue.size", err))
	}
	processing, err := aqc.queue.GetProcessingSize(ctx)
	if err != nil {
		return writeError(c, apperror.Upstream("jobqueue.processing_size", err))
	}

	return c.JSON(fiber.Map{
		"stats":      stats,
		"pending":    pending,
		"processing": processing,
	})
}

// HandleGetJob returns a single job by id
func (aqc *AdminQueueController) HandleGetJob(c *fiber.Ctx) error {
	jobID := strings.TrimSpace(c.Params("id"))
	job, err := aqc.queue.GetJob(c.UserContext(), jobID)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return writeError(c, apperror.NotFound("Job"))
		}
		return writeError(c, apperror.Upstream("jobqueue.get", err))
	}
	return c.JSON(job)
}

// HandleResyncCustomer queues a mirror refresh for one processor customer
func (aqc *AdminQueueController) HandleResyncCustomer(c *fiber.Ctx) error {
	customerID := strings.TrimSpace(c.Params("customerID"))
	if customerID == "" {
		return writeError(c, apperror.Validation("customerID", ""))
	}

	payload := jobqueue.SubscriptionResyncJobPayload{CustomerID: customerID}
	job, err := aqc.queue.EnqueueJob(jobqueue.JobTypeSubscriptionResync, payload.ToMap())
	if err != nil {
		log.Errorw("[AdminQueue] resync enqueue failed", "customer_id", customerID, "error", err)
		return writeError(c, apperror.Upstream("jobqueue.enqueue", err))
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"job_id": job.ID})
}

// HandleResyncStale runs the stale-period sweep immediately
func (aqc *AdminQueueController) HandleResyncStale(c *fiber.Ctx) error {
	n, err := aqc.resync.RunResyncOnce(c.UserContext())
	if err != nil {
		log.Errorw("[AdminQueue] stale resync failed", "synced", n, "error", err)
		return writeError(c, apperror.Upstream("billing.resync_stale", err))
	}
	return c.JSON(fiber.Map{"synced": n})
}
