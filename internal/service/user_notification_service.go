package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/birthday-reminder/internal/domain"
	"github.com/kursadbilgin/birthday-reminder/internal/observability"
	"github.com/kursadbilgin/birthday-reminder/internal/queue"
	"github.com/kursadbilgin/birthday-reminder/internal/repository"
	"go.uber.org/zap"
)

const defaultRecoveryWindow = 24 * time.Hour

// CreateUserInput is a validated user creation request.
type CreateUserInput struct {
	FirstName string
	LastName  string
	Email     string
	Birthday  time.Time
	Timezone  string
}

// UserNotificationService owns users and keeps one active birthday
// notification per user in step with their birthday and timezone.
type UserNotificationService struct {
	repos          repository.Repositories
	tx             repository.TxManager
	jobs           queue.DelayedQueue
	logger         *zap.Logger
	metrics        *observability.Metrics
	recoveryWindow time.Duration
	now            func() time.Time
}

func NewUserNotificationService(
	repos repository.Repositories,
	tx repository.TxManager,
	jobs queue.DelayedQueue,
	recoveryWindow time.Duration,
	logger *zap.Logger,
) (*UserNotificationService, error) {
	if repos.Users == nil || repos.Notifications == nil {
		return nil, fmt.Errorf("user and notification repositories are required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction manager is required")
	}
	if jobs == nil {
		return nil, fmt.Errorf("delayed queue is required")
	}
	if recoveryWindow <= 0 {
		recoveryWindow = defaultRecoveryWindow
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &UserNotificationService{
		repos:          repos,
		tx:             tx,
		jobs:           jobs,
		logger:         logger,
		recoveryWindow: recoveryWindow,
		now:            time.Now,
	}, nil
}

func (s *UserNotificationService) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// CreateUser stores the user and its first pending notification in one
// transaction, then runs the recovery sweep so the job is queued at once.
func (s *UserNotificationService) CreateUser(ctx context.Context, input CreateUserInput) (*domain.User, error) {
	user := &domain.User{
		FirstName: strings.TrimSpace(input.FirstName),
		LastName:  strings.TrimSpace(input.LastName),
		Email:     strings.TrimSpace(input.Email),
		Birthday:  input.Birthday,
		Timezone:  strings.TrimSpace(input.Timezone),
	}
	if err := user.Validate(); err != nil {
		return nil, err
	}

	scheduledAt, err := domain.NextOccurrence(user.Birthday, user.Timezone, s.now())
	if err != nil {
		return nil, err
	}

	var notification *domain.Notification
	err = s.tx.WithinTransaction(ctx, func(repos repository.Repositories) error {
		if err := repos.Users.Create(ctx, user); err != nil {
			return fmt.Errorf("insert user: %w", err)
		}
		notification = domain.NewBirthdayNotification(user.ID, scheduledAt)
		if err := repos.Notifications.Create(ctx, notification); err != nil {
			return fmt.Errorf("insert notification: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, domain.NewRequestError("create user", err)
	}

	observability.ContextLogger(s.logger, ctx).Info("user created",
		zap.Int64("userId", user.ID),
		zap.Int64("notificationId", notification.ID),
		zap.Time("scheduledAt", notification.ScheduledAt),
	)

	s.sweepAfterMutation(ctx)
	return user, nil
}

// UpdateUser applies patch and moves the user's active notification to the
// recomputed occurrence. It reports false when the user does not exist.
func (s *UserNotificationService) UpdateUser(ctx context.Context, id int64, patch domain.UserPatch) (bool, error) {
	if err := validatePatch(patch); err != nil {
		return false, err
	}

	var (
		found     bool
		scheduled *domain.Notification
	)
	err := s.tx.WithinTransaction(ctx, func(repos repository.Repositories) error {
		current, err := repos.Users.GetByID(ctx, id)
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("load user: %w", err)
		}

		patched := patch.Apply(*current)
		if err := patched.Validate(); err != nil {
			return err
		}

		found, err = repos.Users.Update(ctx, id, patch)
		if err != nil {
			return fmt.Errorf("update user: %w", err)
		}
		if !found {
			return nil
		}

		user, err := repos.Users.GetByID(ctx, id)
		if err != nil {
			return fmt.Errorf("reload user: %w", err)
		}

		scheduledAt, err := domain.NextOccurrence(user.Birthday, user.Timezone, s.now())
		if err != nil {
			return err
		}

		active, err := repos.Notifications.GetActiveByUserID(ctx, id, domain.TypeBirthday)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return fmt.Errorf("%w: no active notification for user %d", domain.ErrNotFound, id)
			}
			return fmt.Errorf("load notification: %w", err)
		}
		if err := repos.Notifications.Reschedule(ctx, active.ID, scheduledAt); err != nil {
			return fmt.Errorf("reschedule notification: %w", err)
		}

		active.ScheduledAt = scheduledAt
		active.Status = domain.StatusPending
		scheduled = active
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrValidation) || errors.Is(err, domain.ErrNotFound) {
			return false, err
		}
		return false, domain.NewRequestError("update user", err)
	}
	if !found {
		return false, nil
	}

	observability.ContextLogger(s.logger, ctx).Info("user updated",
		zap.Int64("userId", id),
		zap.Int64("notificationId", scheduled.ID),
		zap.Time("scheduledAt", scheduled.ScheduledAt),
	)

	s.sweepAfterMutation(ctx)
	return true, nil
}

// DeleteUser removes the user with its notifications and drops their queued
// jobs. It returns domain.ErrNotFound when the user does not exist.
func (s *UserNotificationService) DeleteUser(ctx context.Context, id int64) error {
	var notificationIDs []int64
	err := s.tx.WithinTransaction(ctx, func(repos repository.Repositories) error {
		if _, err := repos.Users.GetByID(ctx, id); err != nil {
			return err
		}

		ids, err := repos.Notifications.ListIDsByUserID(ctx, id)
		if err != nil {
			return fmt.Errorf("list notifications: %w", err)
		}
		if _, err := repos.Notifications.DeleteByUserID(ctx, id); err != nil {
			return fmt.Errorf("delete notifications: %w", err)
		}
		if err := repos.Users.Delete(ctx, id); err != nil {
			return fmt.Errorf("delete user: %w", err)
		}

		notificationIDs = ids
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("%w: user %d", domain.ErrNotFound, id)
		}
		return domain.NewRequestError("delete user", err)
	}

	logger := observability.ContextLogger(s.logger, ctx)
	for _, notificationID := range notificationIDs {
		jobID := queue.JobID(notificationID)
		if err := s.jobs.Remove(ctx, jobID); err != nil {
			// The worker drops jobs whose notification is gone.
			logger.Warn("failed to remove dispatch job of deleted user",
				zap.Int64("userId", id),
				zap.String("jobId", jobID),
				zap.Error(err),
			)
		}
	}

	logger.Info("user deleted",
		zap.Int64("userId", id),
		zap.Int("notifications", len(notificationIDs)),
	)
	return nil
}

// RecoverUnsentMessages queues a dispatch job for every pending or failed
// notification scheduled inside the recovery window, future ones included.
// Jobs are keyed by notification id, so repeated sweeps replace rather than
// duplicate them. It returns the number of jobs queued.
func (s *UserNotificationService) RecoverUnsentMessages(ctx context.Context) (int, error) {
	now := s.now().UTC()
	unsent, err := s.repos.Notifications.ListUnsentSince(ctx, now.Add(-s.recoveryWindow))
	if err != nil {
		return 0, fmt.Errorf("failed to list unsent notifications: %w", err)
	}

	logger := observability.ContextLogger(s.logger, ctx)

	var (
		queued int
		errs   []error
	)
	for i := range unsent {
		notification := unsent[i]

		runAt := notification.ScheduledAt
		if runAt.Before(now) {
			runAt = now
		}

		job := queue.NewSendNotificationJob(notification.ID, runAt)
		added, err := s.jobs.Enqueue(ctx, job)
		if err != nil {
			logger.Error("failed to queue notification",
				zap.Int64("notificationId", notification.ID),
				zap.String("jobId", job.ID),
				zap.Error(err),
			)
			errs = append(errs, err)
			continue
		}
		if !added {
			logger.Debug("notification delivery in flight, job left as is",
				zap.Int64("notificationId", notification.ID),
				zap.String("jobId", job.ID),
			)
			continue
		}
		queued++
	}

	s.metrics.AddRecoveryRequeued(queued)
	logger.Info("recovery sweep finished",
		zap.Int("candidates", len(unsent)),
		zap.Int("queued", queued),
		zap.Int("failed", len(errs)),
	)

	if len(errs) > 0 {
		return queued, fmt.Errorf("failed to queue %d of %d notifications: %w", len(errs), len(unsent), errors.Join(errs...))
	}
	return queued, nil
}

// CompleteDelivery marks notification sent and arms the user's next
// occurrence in one transaction, then queues the new job.
func (s *UserNotificationService) CompleteDelivery(
	ctx context.Context,
	notification *domain.Notification,
	user *domain.User,
) (*domain.Notification, error) {
	if notification == nil || user == nil {
		return nil, fmt.Errorf("notification and user are required")
	}

	scheduledAt, err := domain.NextOccurrence(user.Birthday, user.Timezone, s.now())
	if err != nil {
		return nil, err
	}

	next := domain.NewBirthdayNotification(user.ID, scheduledAt)
	err = s.tx.WithinTransaction(ctx, func(repos repository.Repositories) error {
		if err := repos.Notifications.UpdateStatus(ctx, notification.ID, domain.StatusSent); err != nil {
			return fmt.Errorf("mark notification sent: %w", err)
		}
		if err := repos.Notifications.Create(ctx, next); err != nil {
			return fmt.Errorf("insert next notification: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	notification.Status = domain.StatusSent

	job := queue.NewSendNotificationJob(next.ID, next.ScheduledAt)
	if _, err := s.jobs.Enqueue(ctx, job); err != nil {
		// The next recovery sweep queues it; it is well inside the window.
		observability.ContextLogger(s.logger, ctx).Warn("failed to queue next notification",
			zap.Int64("notificationId", next.ID),
			zap.String("jobId", job.ID),
			zap.Error(err),
		)
	}

	return next, nil
}

func (s *UserNotificationService) ListUsers(ctx context.Context) ([]domain.User, error) {
	users, err := s.repos.Users.List(ctx)
	if err != nil {
		return nil, domain.NewRequestError("list users", err)
	}
	return users, nil
}

func (s *UserNotificationService) ListNotifications(ctx context.Context, params repository.ListParams) ([]domain.Notification, error) {
	notifications, err := s.repos.Notifications.List(ctx, params)
	if err != nil {
		return nil, domain.NewRequestError("list notifications", err)
	}
	return notifications, nil
}

// sweepAfterMutation queues the schedule a create or update just wrote. The
// mutation is already committed, so a failure here is only logged; the
// periodic sweep picks the notification up later.
func (s *UserNotificationService) sweepAfterMutation(ctx context.Context) {
	if _, err := s.RecoverUnsentMessages(ctx); err != nil {
		observability.ContextLogger(s.logger, ctx).Warn("recovery sweep after mutation failed", zap.Error(err))
	}
}

func validatePatch(patch domain.UserPatch) error {
	fields := []struct {
		name  string
		value *string
	}{
		{name: "firstName", value: patch.FirstName},
		{name: "lastName", value: patch.LastName},
		{name: "email", value: patch.Email},
		{name: "timezone", value: patch.Timezone},
	}
	for _, f := range fields {
		if f.value != nil && strings.TrimSpace(*f.value) == "" {
			return fmt.Errorf("%w: %s must not be empty", domain.ErrValidation, f.name)
		}
	}
	if patch.Birthday != nil && patch.Birthday.IsZero() {
		return fmt.Errorf("%w: birthday must not be empty", domain.ErrValidation)
	}
	return nil
}
