package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/birthday-reminder/internal/domain"
	"gorm.io/gorm"
)

var activeStatuses = []domain.Status{domain.StatusPending, domain.StatusFailed}

// ListParams narrows List; nil fields match everything.
type ListParams struct {
	Status *domain.Status
	Type   *domain.Type
}

type NotificationRepository interface {
	// Create returns domain.ErrConflict when the user already has an active notification of the same type.
	Create(ctx context.Context, n *domain.Notification) error
	GetByID(ctx context.Context, id int64) (*domain.Notification, error)
	GetActiveByUserID(ctx context.Context, userID int64, typ domain.Type) (*domain.Notification, error)
	List(ctx context.Context, params ListParams) ([]domain.Notification, error)
	// ListUnsentSince returns pending or failed notifications scheduled after since, future ones included.
	ListUnsentSince(ctx context.Context, since time.Time) ([]domain.Notification, error)
	ListIDsByUserID(ctx context.Context, userID int64) ([]int64, error)
	UpdateStatus(ctx context.Context, id int64, status domain.Status) error
	// Reschedule moves a notification to scheduledAt and resets it to pending.
	Reschedule(ctx context.Context, id int64, scheduledAt time.Time) error
	DeleteByUserID(ctx context.Context, userID int64) (int64, error)
}

type GormNotificationRepo struct {
	db *gorm.DB
}

func NewGormNotificationRepo(db *gorm.DB) *GormNotificationRepo {
	return &GormNotificationRepo{db: db}
}

func (r *GormNotificationRepo) Create(ctx context.Context, n *domain.Notification) error {
	if n == nil {
		return fmt.Errorf("%w: notification is required", domain.ErrValidation)
	}
	if err := n.Validate(); err != nil {
		return err
	}

	model := notificationModelFromDomain(n)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if isUniqueViolationError(err) {
			return domain.ErrConflict
		}
		return err
	}
	*n = *notificationModelToDomain(model)
	return nil
}

func (r *GormNotificationRepo) GetByID(ctx context.Context, id int64) (*domain.Notification, error) {
	var model NotificationModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return notificationModelToDomain(&model), nil
}

func (r *GormNotificationRepo) GetActiveByUserID(ctx context.Context, userID int64, typ domain.Type) (*domain.Notification, error) {
	var model NotificationModel
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND type = ? AND status IN ?", userID, typ, activeStatuses).
		Order("scheduled_at DESC").
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return notificationModelToDomain(&model), nil
}

func (r *GormNotificationRepo) List(ctx context.Context, params ListParams) ([]domain.Notification, error) {
	query := r.db.WithContext(ctx).Model(&NotificationModel{})

	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}
	if params.Type != nil {
		query = query.Where("type = ?", *params.Type)
	}

	var models []NotificationModel
	if err := query.Order("id ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	return notificationsToDomain(models), nil
}

func (r *GormNotificationRepo) ListUnsentSince(ctx context.Context, since time.Time) ([]domain.Notification, error) {
	var models []NotificationModel
	err := r.db.WithContext(ctx).
		Where("status IN ? AND scheduled_at > ?", activeStatuses, since.UTC()).
		Order("scheduled_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return notificationsToDomain(models), nil
}

func (r *GormNotificationRepo) ListIDsByUserID(ctx context.Context, userID int64) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).
		Model(&NotificationModel{}).
		Where("user_id = ?", userID).
		Order("id ASC").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *GormNotificationRepo) UpdateStatus(ctx context.Context, id int64, status domain.Status) error {
	result := r.db.WithContext(ctx).
		Model(&NotificationModel{}).
		Where("id = ?", id).
		Update("status", status)
	if result.Error != nil {
		if isUniqueViolationError(result.Error) {
			return domain.ErrConflict
		}
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormNotificationRepo) Reschedule(ctx context.Context, id int64, scheduledAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&NotificationModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":       domain.StatusPending,
			"scheduled_at": scheduledAt.UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormNotificationRepo) DeleteByUserID(ctx context.Context, userID int64) (int64, error) {
	result := r.db.WithContext(ctx).Delete(&NotificationModel{}, "user_id = ?", userID)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func notificationsToDomain(models []NotificationModel) []domain.Notification {
	notifications := make([]domain.Notification, 0, len(models))
	for i := range models {
		notifications = append(notifications, *notificationModelToDomain(&models[i]))
	}
	return notifications
}

func isUniqueViolationError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint")
}
