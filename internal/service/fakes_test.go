package service

import (
	"context"
	"sync"
	"time"

	"github.com/kursadbilgin/birthday-reminder/internal/domain"
	"github.com/kursadbilgin/birthday-reminder/internal/provider"
	"github.com/kursadbilgin/birthday-reminder/internal/queue"
	"github.com/kursadbilgin/birthday-reminder/internal/repository"
)

type fakeNotificationRepo struct {
	createFn            func(ctx context.Context, n *domain.Notification) error
	getByIDFn           func(ctx context.Context, id int64) (*domain.Notification, error)
	getActiveByUserIDFn func(ctx context.Context, userID int64, typ domain.Type) (*domain.Notification, error)
	listFn              func(ctx context.Context, params repository.ListParams) ([]domain.Notification, error)
	listUnsentSinceFn   func(ctx context.Context, since time.Time) ([]domain.Notification, error)
	listIDsByUserIDFn   func(ctx context.Context, userID int64) ([]int64, error)
	updateStatusFn      func(ctx context.Context, id int64, status domain.Status) error
	rescheduleFn        func(ctx context.Context, id int64, scheduledAt time.Time) error
	deleteByUserIDFn    func(ctx context.Context, userID int64) (int64, error)
}

func (f *fakeNotificationRepo) Create(ctx context.Context, n *domain.Notification) error {
	if f.createFn != nil {
		return f.createFn(ctx, n)
	}
	return nil
}

func (f *fakeNotificationRepo) GetByID(ctx context.Context, id int64) (*domain.Notification, error) {
	if f.getByIDFn != nil {
		return f.getByIDFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (f *fakeNotificationRepo) GetActiveByUserID(ctx context.Context, userID int64, typ domain.Type) (*domain.Notification, error) {
	if f.getActiveByUserIDFn != nil {
		return f.getActiveByUserIDFn(ctx, userID, typ)
	}
	return nil, domain.ErrNotFound
}

func (f *fakeNotificationRepo) List(ctx context.Context, params repository.ListParams) ([]domain.Notification, error) {
	if f.listFn != nil {
		return f.listFn(ctx, params)
	}
	return nil, nil
}

func (f *fakeNotificationRepo) ListUnsentSince(ctx context.Context, since time.Time) ([]domain.Notification, error) {
	if f.listUnsentSinceFn != nil {
		return f.listUnsentSinceFn(ctx, since)
	}
	return nil, nil
}

func (f *fakeNotificationRepo) ListIDsByUserID(ctx context.Context, userID int64) ([]int64, error) {
	if f.listIDsByUserIDFn != nil {
		return f.listIDsByUserIDFn(ctx, userID)
	}
	return nil, nil
}

func (f *fakeNotificationRepo) UpdateStatus(ctx context.Context, id int64, status domain.Status) error {
	if f.updateStatusFn != nil {
		return f.updateStatusFn(ctx, id, status)
	}
	return nil
}

func (f *fakeNotificationRepo) Reschedule(ctx context.Context, id int64, scheduledAt time.Time) error {
	if f.rescheduleFn != nil {
		return f.rescheduleFn(ctx, id, scheduledAt)
	}
	return nil
}

func (f *fakeNotificationRepo) DeleteByUserID(ctx context.Context, userID int64) (int64, error) {
	if f.deleteByUserIDFn != nil {
		return f.deleteByUserIDFn(ctx, userID)
	}
	return 0, nil
}

type fakeUserRepo struct {
	createFn  func(ctx context.Context, u *domain.User) error
	getByIDFn func(ctx context.Context, id int64) (*domain.User, error)
	listFn    func(ctx context.Context) ([]domain.User, error)
	updateFn  func(ctx context.Context, id int64, patch domain.UserPatch) (bool, error)
	deleteFn  func(ctx context.Context, id int64) error
}

func (f *fakeUserRepo) Create(ctx context.Context, u *domain.User) error {
	if f.createFn != nil {
		return f.createFn(ctx, u)
	}
	return nil
}

func (f *fakeUserRepo) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	if f.getByIDFn != nil {
		return f.getByIDFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (f *fakeUserRepo) List(ctx context.Context) ([]domain.User, error) {
	if f.listFn != nil {
		return f.listFn(ctx)
	}
	return nil, nil
}

func (f *fakeUserRepo) Update(ctx context.Context, id int64, patch domain.UserPatch) (bool, error) {
	if f.updateFn != nil {
		return f.updateFn(ctx, id, patch)
	}
	return false, nil
}

func (f *fakeUserRepo) Delete(ctx context.Context, id int64) error {
	if f.deleteFn != nil {
		return f.deleteFn(ctx, id)
	}
	return nil
}

type fakeAttemptRepo struct {
	mu       sync.Mutex
	attempts []domain.DeliveryAttempt
	createFn func(ctx context.Context, a *domain.DeliveryAttempt) error
}

func (f *fakeAttemptRepo) Create(ctx context.Context, a *domain.DeliveryAttempt) error {
	if f.createFn != nil {
		return f.createFn(ctx, a)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts = append(f.attempts, *a)
	return nil
}

func (f *fakeAttemptRepo) ListByNotificationID(_ context.Context, notificationID int64) ([]domain.DeliveryAttempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.DeliveryAttempt
	for _, a := range f.attempts {
		if a.NotificationID == notificationID {
			out = append(out, a)
		}
	}
	return out, nil
}

type fakeEmailSender struct {
	mu     sync.Mutex
	sent   []provider.Email
	sendFn func(ctx context.Context, email provider.Email) (*provider.ProviderResponse, error)
}

func (f *fakeEmailSender) Send(ctx context.Context, email provider.Email) (*provider.ProviderResponse, error) {
	f.mu.Lock()
	f.sent = append(f.sent, email)
	f.mu.Unlock()

	if f.sendFn != nil {
		return f.sendFn(ctx, email)
	}
	return &provider.ProviderResponse{StatusCode: 200}, nil
}

func (f *fakeEmailSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fakeLimiter struct {
	waitFn func(ctx context.Context, bucket string) error
}

func (f *fakeLimiter) Allow(context.Context, string) (bool, error) { return true, nil }

func (f *fakeLimiter) Wait(ctx context.Context, bucket string) error {
	if f.waitFn != nil {
		return f.waitFn(ctx, bucket)
	}
	return nil
}

type fakeCompleter struct {
	completeFn func(ctx context.Context, n *domain.Notification, u *domain.User) (*domain.Notification, error)
}

func (f *fakeCompleter) CompleteDelivery(ctx context.Context, n *domain.Notification, u *domain.User) (*domain.Notification, error) {
	if f.completeFn != nil {
		return f.completeFn(ctx, n, u)
	}
	return &domain.Notification{ID: n.ID + 1, UserID: u.ID, Status: domain.StatusPending}, nil
}

type fakeDelayedQueue struct {
	enqueueFn  func(ctx context.Context, job queue.Job) (bool, error)
	claimDueFn func(ctx context.Context, now time.Time, limit int) ([]queue.Job, error)
	completeFn func(ctx context.Context, jobID string) error
	retryFn    func(ctx context.Context, jobID string, now time.Time) (queue.RetryResult, error)
	releaseFn  func(ctx context.Context, jobID string, runAt time.Time) error
	removeFn   func(ctx context.Context, jobID string) error
}

func (f *fakeDelayedQueue) Enqueue(ctx context.Context, job queue.Job) (bool, error) {
	if f.enqueueFn != nil {
		return f.enqueueFn(ctx, job)
	}
	return true, nil
}

func (f *fakeDelayedQueue) ClaimDue(ctx context.Context, now time.Time, limit int) ([]queue.Job, error) {
	if f.claimDueFn != nil {
		return f.claimDueFn(ctx, now, limit)
	}
	return nil, nil
}

func (f *fakeDelayedQueue) Complete(ctx context.Context, jobID string) error {
	if f.completeFn != nil {
		return f.completeFn(ctx, jobID)
	}
	return nil
}

func (f *fakeDelayedQueue) Retry(ctx context.Context, jobID string, now time.Time) (queue.RetryResult, error) {
	if f.retryFn != nil {
		return f.retryFn(ctx, jobID, now)
	}
	return queue.RetryResult{}, nil
}

func (f *fakeDelayedQueue) Release(ctx context.Context, jobID string, runAt time.Time) error {
	if f.releaseFn != nil {
		return f.releaseFn(ctx, jobID, runAt)
	}
	return nil
}

func (f *fakeDelayedQueue) Remove(ctx context.Context, jobID string) error {
	if f.removeFn != nil {
		return f.removeFn(ctx, jobID)
	}
	return nil
}

type fakePublisher struct {
	publishFn func(ctx context.Context, queueName string, msg queue.DispatchMessage) error
	closeFn   func() error
}

func (f *fakePublisher) Publish(ctx context.Context, queueName string, msg queue.DispatchMessage) error {
	if f.publishFn != nil {
		return f.publishFn(ctx, queueName, msg)
	}
	return nil
}

func (f *fakePublisher) Close() error {
	if f.closeFn != nil {
		return f.closeFn()
	}
	return nil
}

type fakeConsumer struct {
	consumeFn func(ctx context.Context, queueName string, handler queue.MessageHandler) error
}

func (f *fakeConsumer) Consume(ctx context.Context, queueName string, handler queue.MessageHandler) error {
	if f.consumeFn != nil {
		return f.consumeFn(ctx, queueName, handler)
	}
	<-ctx.Done()
	return nil
}

func (f *fakeConsumer) Close() error { return nil }

type fakeProcessor struct {
	processFn func(ctx context.Context, msg queue.DispatchMessage) error
}

func (f *fakeProcessor) Process(ctx context.Context, msg queue.DispatchMessage) error {
	if f.processFn != nil {
		return f.processFn(ctx, msg)
	}
	return nil
}

type fakeRecoverer struct {
	mu    sync.Mutex
	calls int
	done  chan struct{}
	err   error
}

func (f *fakeRecoverer) RecoverUnsentMessages(context.Context) (int, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.done != nil {
		select {
		case f.done <- struct{}{}:
		default:
		}
	}
	return 1, f.err
}
