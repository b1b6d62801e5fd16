package service

import (
	"context"
	"fmt"
	"time"

	"github.com/kursadbilgin/birthday-reminder/internal/domain"
	"github.com/kursadbilgin/birthday-reminder/internal/observability"
	"github.com/kursadbilgin/birthday-reminder/internal/queue"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const minWorkerConcurrency = 1

// MessageProcessor performs one delivery attempt.
type MessageProcessor interface {
	Process(ctx context.Context, msg queue.DispatchMessage) error
}

// WorkerService runs the broker consumers and applies the delayed queue's
// retry policy to each attempt's outcome.
type WorkerService struct {
	processor   MessageProcessor
	jobs        queue.DelayedQueue
	consumer    queue.Consumer
	logger      *zap.Logger
	metrics     *observability.Metrics
	concurrency int
	now         func() time.Time
}

func NewWorkerService(
	processor MessageProcessor,
	jobs queue.DelayedQueue,
	consumer queue.Consumer,
	concurrency int,
	logger *zap.Logger,
) (*WorkerService, error) {
	if processor == nil {
		return nil, fmt.Errorf("message processor is required")
	}
	if jobs == nil {
		return nil, fmt.Errorf("delayed queue is required")
	}
	if consumer == nil {
		return nil, fmt.Errorf("consumer is required")
	}
	if concurrency < minWorkerConcurrency {
		concurrency = minWorkerConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &WorkerService{
		processor:   processor,
		jobs:        jobs,
		consumer:    consumer,
		logger:      logger,
		concurrency: concurrency,
		now:         time.Now,
	}, nil
}

func (s *WorkerService) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// Start consumes the work queue with the configured number of workers until
// ctx is canceled.
func (s *WorkerService) Start(ctx context.Context) error {
	g, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < s.concurrency; i++ {
		workerID := i + 1

		g.Go(func() error {
			s.logger.Info("worker started", zap.Int("workerId", workerID))

			if err := s.consumer.Consume(groupCtx, queue.WorkQueueName, s.handleMessage); err != nil {
				s.logger.Error("worker stopped with error", zap.Int("workerId", workerID), zap.Error(err))
				return err
			}

			s.logger.Info("worker stopped", zap.Int("workerId", workerID))
			return nil
		})
	}

	return g.Wait()
}

// handleMessage returns an error only when the job bookkeeping itself fails,
// which makes the consumer requeue the broker delivery.
func (s *WorkerService) handleMessage(ctx context.Context, msg queue.DispatchMessage) error {
	processErr := s.processor.Process(ctx, msg)
	if processErr == nil {
		if err := s.jobs.Complete(ctx, msg.JobID); err != nil {
			return fmt.Errorf("failed to complete job %q: %w", msg.JobID, err)
		}
		return nil
	}

	typeLabel := domain.TypeBirthday.String()
	result, err := s.jobs.Retry(ctx, msg.JobID, s.now())
	if err != nil {
		return fmt.Errorf("failed to schedule retry of job %q: %w", msg.JobID, err)
	}

	if result.Exhausted {
		s.metrics.IncNotificationFailed(typeLabel, "retry_exhausted")
		s.logger.Warn("job attempts exhausted, left for recovery sweep",
			zap.String("jobId", msg.JobID),
			zap.Int64("notificationId", msg.NotificationID),
			zap.Int("attempts", result.Attempts),
			zap.Error(processErr),
		)
		return nil
	}

	s.metrics.IncRetryScheduled(typeLabel)
	s.logger.Info("job retry scheduled",
		zap.String("jobId", msg.JobID),
		zap.Int64("notificationId", msg.NotificationID),
		zap.Int("attempts", result.Attempts),
		zap.Time("nextRunAt", result.NextRunAt),
		zap.Error(processErr),
	)
	return nil
}
