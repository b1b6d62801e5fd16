package queue

import (
	"context"
	"fmt"
	"time"
)

const (
	// WorkQueueName is the RabbitMQ queue the delivery workers consume.
	WorkQueueName = "notifications"
	// DLQName receives payloads the workers could not decode.
	DLQName = "dlq.notifications"

	// JobNameSendNotification is the only job kind the dispatch queue carries.
	JobNameSendNotification = "send-notification"
)

// Publisher publishes dispatch messages to a broker queue.
type Publisher interface {
	Publish(ctx context.Context, queue string, msg DispatchMessage) error
	Close() error
}

// MessageHandler handles a consumed dispatch message. A non-nil error
// requeues the broker delivery.
type MessageHandler func(ctx context.Context, msg DispatchMessage) error

// Consumer consumes dispatch messages from a broker queue.
type Consumer interface {
	Consume(ctx context.Context, queue string, handler MessageHandler) error
	Close() error
}

// DelayedQueue holds jobs until their run time and tracks their attempts.
type DelayedQueue interface {
	// Enqueue adds job or replaces a job with the same id. It returns false
	// when a job with that id is currently being delivered.
	Enqueue(ctx context.Context, job Job) (bool, error)
	// ClaimDue marks up to limit jobs due at now as active and returns them.
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]Job, error)
	Complete(ctx context.Context, jobID string) error
	// Retry records a failed attempt and schedules the next one with
	// exponential backoff, or marks the job failed once attempts run out.
	Retry(ctx context.Context, jobID string, now time.Time) (RetryResult, error)
	Release(ctx context.Context, jobID string, runAt time.Time) error
	Remove(ctx context.Context, jobID string) error
}

// JobState is the lifecycle state of a job in the delayed queue.
type JobState string

const (
	JobStateDelayed JobState = "delayed"
	JobStateActive  JobState = "active"
	JobStateFailed  JobState = "failed"
)

// Job is one scheduled delivery of a notification.
type Job struct {
	ID             string
	Name           string
	NotificationID int64
	RunAt          time.Time
	// Attempts counts failed deliveries so far.
	Attempts    int
	MaxAttempts int
	State       JobState
}

// NewSendNotificationJob returns the job delivering notificationID at runAt.
func NewSendNotificationJob(notificationID int64, runAt time.Time) Job {
	return Job{
		ID:             JobID(notificationID),
		Name:           JobNameSendNotification,
		NotificationID: notificationID,
		RunAt:          runAt.UTC(),
	}
}

// Message converts a claimed job into its broker payload.
func (j Job) Message() DispatchMessage {
	return DispatchMessage{
		Name:           j.Name,
		JobID:          j.ID,
		NotificationID: j.NotificationID,
		Attempt:        j.Attempts + 1,
	}
}

// RetryResult reports what Retry decided for a job.
type RetryResult struct {
	Attempts  int
	Exhausted bool
	NextRunAt time.Time
}

// JobID is the deduplication key of a notification's job.
func JobID(notificationID int64) string {
	return fmt.Sprintf("notification-%d", notificationID)
}
