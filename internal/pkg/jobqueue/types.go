package jobqueue

import (
	"encoding/json"
	"time"
)

// JobType defines the type of job
type JobType string

const (
	// JobTypeStripeEvent carries a verified webhook event to the reconciler.
	JobTypeStripeEvent JobType = "stripe_event"
	// JobTypeSubscriptionResync re-syncs a single customer's mirror row.
	JobTypeSubscriptionResync JobType = "subscription_resync"
)

// JobStatus defines the status of a job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusRetrying   JobStatus = "retrying"
)

// Job represents a background job
type Job struct {
	ID          string                 `json:"id"`
	Type        JobType                `json:"type"`
	Status      JobStatus              `json:"status"`
	Payload     map[string]interface{} `json:"payload"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
	ProcessedAt *time.Time             `json:"processed_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	ErrorMsg    string                 `json:"error_msg,omitempty"`
	RetryCount  int                    `json:"retry_count"`
	MaxRetries  int                    `json:"max_retries"`
}

// StripeEventJobPayload is a verified event reduced to what the reconciler needs.
// Object holds the raw data.object JSON.
type StripeEventJobPayload struct {
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	Object    string `json:"object"`
}

// ToMap converts the payload to a map for storage
func (p StripeEventJobPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"event_id":   p.EventID,
		"event_type": p.EventType,
		"object":     p.Object,
	}
}

// StripeEventJobPayloadFromMap creates a payload from a map
func StripeEventJobPayloadFromMap(data map[string]interface{}) (*StripeEventJobPayload, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	var payload StripeEventJobPayload
	err = json.Unmarshal(jsonData, &payload)
	return &payload, err
}

// SubscriptionResyncJobPayload names the customer whose mirror row is re-synced.
type SubscriptionResyncJobPayload struct {
	CustomerID string `json:"customer_id"`
}

func (p SubscriptionResyncJobPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"customer_id": p.CustomerID,
	}
}

func SubscriptionResyncJobPayloadFromMap(data map[string]interface{}) (*SubscriptionResyncJobPayload, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	var payload SubscriptionResyncJobPayload
	err = json.Unmarshal(jsonData, &payload)
	return &payload, err
}

// IsRetryable checks if the job can be retried
func (j *Job) IsRetryable() bool {
	return j.Status == JobStatusFailed && j.RetryCount < j.MaxRetries
}

// MarkAsProcessing updates the job status to processing
func (j *Job) MarkAsProcessing() {
	now := time.Now()
	j.Status = JobStatusProcessing
	j.UpdatedAt = now
	j.ProcessedAt = &now
}

// MarkAsCompleted updates the job status to completed
func (j *Job) MarkAsCompleted() {
	now := time.Now()
	j.Status = JobStatusCompleted
	j.UpdatedAt = now
	j.CompletedAt = &now
	j.ErrorMsg = ""
}

// MarkAsFailed updates the job status to failed
func (j *Job) MarkAsFailed(errorMsg string) {
	j.Status = JobStatusFailed
	j.UpdatedAt = time.Now()
	j.ErrorMsg = errorMsg
	j.RetryCount++
}

// MarkAsRetrying updates the job status to retrying
func (j *Job) MarkAsRetrying() {
	j.Status = JobStatusRetrying
	j.UpdatedAt = time.Now()
}
