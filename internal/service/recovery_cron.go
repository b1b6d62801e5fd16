package service

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const defaultRecoverySchedule = "@every 15m"

// Recoverer re-queues notifications that are due or overdue.
type Recoverer interface {
	RecoverUnsentMessages(ctx context.Context) (int, error)
}

// RecoveryCron runs the recovery sweep on a cron schedule, so overdue
// notifications are queued even when no user is created or updated.
type RecoveryCron struct {
	recoverer Recoverer
	schedule  string
	logger    *zap.Logger
	timeout   time.Duration
}

func NewRecoveryCron(recoverer Recoverer, schedule string, timeout time.Duration, logger *zap.Logger) (*RecoveryCron, error) {
	if recoverer == nil {
		return nil, fmt.Errorf("recoverer is required")
	}
	if schedule == "" {
		schedule = defaultRecoverySchedule
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid recovery schedule %q: %w", schedule, err)
	}
	if timeout <= 0 {
		timeout = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RecoveryCron{
		recoverer: recoverer,
		schedule:  schedule,
		logger:    logger,
		timeout:   timeout,
	}, nil
}

// Start blocks until ctx is canceled, then waits for a running sweep.
func (c *RecoveryCron) Start(ctx context.Context) error {
	cronLog := cronLogger{logger: c.logger.Sugar()}
	scheduler := cron.New(
		cron.WithLogger(cronLog),
		cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
	)

	if _, err := scheduler.AddFunc(c.schedule, func() { c.runOnce(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule recovery sweep: %w", err)
	}

	scheduler.Start()
	c.logger.Info("recovery cron started", zap.String("schedule", c.schedule))

	<-ctx.Done()
	<-scheduler.Stop().Done()
	c.logger.Info("recovery cron stopped")
	return nil
}

func (c *RecoveryCron) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	runCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	queued, err := c.recoverer.RecoverUnsentMessages(runCtx)
	if err != nil {
		c.logger.Error("scheduled recovery sweep failed", zap.Int("queued", queued), zap.Error(err))
		return
	}
	c.logger.Debug("scheduled recovery sweep done", zap.Int("queued", queued))
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	logger *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Errorw(msg, append(keysAndValues, "error", err)...)
}
