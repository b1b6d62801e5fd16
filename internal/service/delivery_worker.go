package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/birthday-reminder/internal/domain"
	"github.com/kursadbilgin/birthday-reminder/internal/observability"
	"github.com/kursadbilgin/birthday-reminder/internal/provider"
	"github.com/kursadbilgin/birthday-reminder/internal/queue"
	"github.com/kursadbilgin/birthday-reminder/internal/ratelimit"
	"github.com/kursadbilgin/birthday-reminder/internal/repository"
	"go.uber.org/zap"
)

const (
	settleTimeout = 5 * time.Second
	// scheduleSkew tolerates clock drift between the promoter and the worker.
	scheduleSkew = time.Minute
)

// DeliveryCompleter records a successful delivery and arms the next one.
type DeliveryCompleter interface {
	CompleteDelivery(ctx context.Context, notification *domain.Notification, user *domain.User) (*domain.Notification, error)
}

// DeliveryWorker performs one delivery attempt for a dispatch message.
type DeliveryWorker struct {
	notifications repository.NotificationRepository
	users         repository.UserRepository
	attempts      repository.AttemptRepository
	completer     DeliveryCompleter
	sender        provider.EmailSender
	limiter       ratelimit.Limiter
	logger        *zap.Logger
	metrics       *observability.Metrics
	now           func() time.Time
}

func NewDeliveryWorker(
	repos repository.Repositories,
	completer DeliveryCompleter,
	sender provider.EmailSender,
	limiter ratelimit.Limiter,
	logger *zap.Logger,
) (*DeliveryWorker, error) {
	if repos.Notifications == nil || repos.Users == nil || repos.Attempts == nil {
		return nil, fmt.Errorf("notification, user and attempt repositories are required")
	}
	if completer == nil {
		return nil, fmt.Errorf("delivery completer is required")
	}
	if sender == nil {
		return nil, fmt.Errorf("email sender is required")
	}
	if limiter == nil {
		limiter = ratelimit.Unlimited{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &DeliveryWorker{
		notifications: repos.Notifications,
		users:         repos.Users,
		attempts:      repos.Attempts,
		completer:     completer,
		sender:        sender,
		limiter:       limiter,
		logger:        logger,
		now:           time.Now,
	}, nil
}

func (w *DeliveryWorker) SetMetrics(metrics *observability.Metrics) {
	if w == nil {
		return
	}
	w.metrics = metrics
}

// Process delivers the notification named by msg. Missing notifications or
// users, already sent notifications and notifications rescheduled into the
// future are dropped without error. A failed
// email call marks the notification failed and returns *domain.DeliveryError.
func (w *DeliveryWorker) Process(ctx context.Context, msg queue.DispatchMessage) error {
	logger := w.logger.With(
		zap.Int64("notificationId", msg.NotificationID),
		zap.String("jobId", msg.JobID),
		zap.Int("attempt", msg.Attempt),
	)

	notification, err := w.notifications.GetByID(ctx, msg.NotificationID)
	if errors.Is(err, domain.ErrNotFound) {
		logger.Info("notification no longer exists, dropping job")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load notification %d: %w", msg.NotificationID, err)
	}
	if !notification.Status.IsActive() {
		logger.Info("notification already sent, dropping job")
		return nil
	}
	if notification.ScheduledAt.After(w.now().Add(scheduleSkew)) {
		logger.Info("notification rescheduled to a later date, dropping job",
			zap.Time("scheduledAt", notification.ScheduledAt),
		)
		return nil
	}

	user, err := w.users.GetByID(ctx, notification.UserID)
	if errors.Is(err, domain.ErrNotFound) {
		logger.Info("notification owner no longer exists, dropping job", zap.Int64("userId", notification.UserID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load user %d: %w", notification.UserID, err)
	}

	if err := w.limiter.Wait(ctx, ratelimit.BucketEmail); err != nil {
		return fmt.Errorf("rate limiter wait failed: %w", err)
	}

	typeLabel := notification.Type.String()
	w.metrics.IncWorkerInFlight(typeLabel)
	defer w.metrics.DecWorkerInFlight(typeLabel)

	// From here every exit leaves the notification sent or failed.
	settled := false
	defer func() {
		if settled {
			return
		}
		w.markFailed(ctx, logger, notification.ID)
	}()

	sendStart := w.now()
	resp, sendErr := w.sender.Send(ctx, provider.Email{
		To:      user.Email,
		Message: domain.BirthdayMessage(user),
	})
	w.metrics.ObserveNotificationSendDuration(typeLabel, w.now().Sub(sendStart))

	if err := w.recordAttempt(ctx, notification.ID, msg.Attempt, resp, sendErr); err != nil {
		logger.Error("failed to record delivery attempt", zap.Error(err))
	}

	if sendErr != nil {
		w.metrics.IncNotificationFailed(typeLabel, provider.FailureReason(sendErr))
		logger.Warn("birthday email delivery failed",
			zap.Bool("transient", provider.IsTransient(sendErr)),
			zap.Error(sendErr),
		)
		return &domain.DeliveryError{NotificationID: notification.ID, Cause: sendErr}
	}

	next, err := w.completer.CompleteDelivery(ctx, notification, user)
	if err != nil {
		return fmt.Errorf("failed to complete delivery of notification %d: %w", notification.ID, err)
	}
	settled = true

	w.metrics.IncNotificationSent(typeLabel)
	logger.Info("birthday email delivered",
		zap.Int64("userId", user.ID),
		zap.Int64("nextNotificationId", next.ID),
		zap.Time("nextScheduledAt", next.ScheduledAt),
	)
	return nil
}

// markFailed runs on a context detached from cancellation so shutdown does
// not leave the notification pending.
func (w *DeliveryWorker) markFailed(ctx context.Context, logger *zap.Logger, notificationID int64) {
	settleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
	defer cancel()

	err := w.notifications.UpdateStatus(settleCtx, notificationID, domain.StatusFailed)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		logger.Error("failed to mark notification failed", zap.Error(err))
	}
}

func (w *DeliveryWorker) recordAttempt(
	ctx context.Context,
	notificationID int64,
	attemptNumber int,
	resp *provider.ProviderResponse,
	sendErr error,
) error {
	var (
		statusCode *int
		attemptErr *string
	)

	if resp != nil && resp.StatusCode > 0 {
		value := resp.StatusCode
		statusCode = &value
	}
	if sendErr != nil {
		value := strings.TrimSpace(sendErr.Error())
		attemptErr = &value

		if code, ok := provider.StatusCode(sendErr); ok && statusCode == nil {
			statusCode = &code
		}
	}

	return w.attempts.Create(ctx, &domain.DeliveryAttempt{
		ID:             uuid.NewString(),
		NotificationID: notificationID,
		AttemptNumber:  attemptNumber,
		StatusCode:     statusCode,
		Error:          attemptErr,
		CreatedAt:      w.now().UTC(),
	})
}
