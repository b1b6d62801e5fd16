package service

import (
	"context"
	"fmt"
	"time"

	"github.com/kursadbilgin/birthday-reminder/internal/queue"
	"go.uber.org/zap"
)

const (
	defaultPromoterInterval  = time.Second
	defaultPromoterBatchSize = 100
)

// Promoter moves due jobs from the delayed queue onto the broker work queue.
type Promoter struct {
	jobs      queue.DelayedQueue
	publisher queue.Publisher
	logger    *zap.Logger
	interval  time.Duration
	batchSize int
	now       func() time.Time
}

func NewPromoter(
	jobs queue.DelayedQueue,
	publisher queue.Publisher,
	interval time.Duration,
	batchSize int,
	logger *zap.Logger,
) (*Promoter, error) {
	if jobs == nil {
		return nil, fmt.Errorf("delayed queue is required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if interval <= 0 {
		interval = defaultPromoterInterval
	}
	if batchSize <= 0 {
		batchSize = defaultPromoterBatchSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Promoter{
		jobs:      jobs,
		publisher: publisher,
		logger:    logger,
		interval:  interval,
		batchSize: batchSize,
		now:       time.Now,
	}, nil
}

func (p *Promoter) Start(ctx context.Context) error {
	if err := p.promoteDue(ctx); err != nil && ctx.Err() == nil {
		p.logger.Error("promoter initial run failed", zap.Error(err))
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := p.promoteDue(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				p.logger.Error("promoter run failed", zap.Error(err))
			}
		}
	}
}

// promoteDue drains due jobs batch by batch. A job that cannot be published
// goes back to the delayed queue for the next tick.
func (p *Promoter) promoteDue(ctx context.Context) error {
	for {
		jobs, err := p.jobs.ClaimDue(ctx, p.now(), p.batchSize)
		if err != nil {
			return fmt.Errorf("failed to claim due jobs: %w", err)
		}

		for _, job := range jobs {
			if err := p.publisher.Publish(ctx, queue.WorkQueueName, job.Message()); err != nil {
				p.logger.Error("failed to publish due job",
					zap.String("jobId", job.ID),
					zap.Int64("notificationId", job.NotificationID),
					zap.Error(err),
				)
				if releaseErr := p.jobs.Release(ctx, job.ID, p.now().Add(p.interval)); releaseErr != nil {
					p.logger.Error("failed to release unpublished job",
						zap.String("jobId", job.ID),
						zap.Error(releaseErr),
					)
				}
				continue
			}

			p.logger.Debug("job promoted",
				zap.String("jobId", job.ID),
				zap.Int("attempt", job.Attempts+1),
			)
		}

		if len(jobs) < p.batchSize || ctx.Err() != nil {
			return nil
		}
	}
}
