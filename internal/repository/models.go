package repository

import (
	"time"

	"github.com/kursadbilgin/birthday-reminder/internal/domain"
)

// UserModel is the persistence model for the users table.
type UserModel struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	FirstName string `gorm:"type:varchar(255);not null"`
	LastName  string `gorm:"type:varchar(255);not null"`
	Email     string `gorm:"type:varchar(255);not null"`
	Birthday  string `gorm:"type:varchar(10);not null"`
	Timezone  string `gorm:"type:varchar(64);not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (UserModel) TableName() string {
	return "users"
}

// NotificationModel is the persistence model for the notifications table.
type NotificationModel struct {
	ID          int64         `gorm:"primaryKey;autoIncrement"`
	UserID      int64         `gorm:"not null;index"`
	User        *UserModel    `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	Type        domain.Type   `gorm:"type:varchar(20);not null"`
	Status      domain.Status `gorm:"type:varchar(20);not null;default:pending"`
	ScheduledAt time.Time     `gorm:"not null"`
	CreatedAt   time.Time
}

func (NotificationModel) TableName() string {
	return "notifications"
}

// DeliveryAttemptModel is the persistence model for delivery_attempts.
type DeliveryAttemptModel struct {
	ID             string             `gorm:"type:varchar(36);primaryKey"`
	NotificationID int64              `gorm:"not null;index"`
	Notification   *NotificationModel `gorm:"foreignKey:NotificationID;constraint:OnDelete:CASCADE"`
	AttemptNumber  int                `gorm:"not null"`
	StatusCode     *int               `gorm:"type:int"`
	Error          *string            `gorm:"type:text"`
	CreatedAt      time.Time
}

func (DeliveryAttemptModel) TableName() string {
	return "delivery_attempts"
}

func userModelFromDomain(u *domain.User) *UserModel {
	if u == nil {
		return nil
	}

	return &UserModel{
		ID:        u.ID,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Email:     u.Email,
		Birthday:  u.Birthday.Format(domain.BirthdayLayout),
		Timezone:  u.Timezone,
		UpdatedAt: u.UpdatedAt,
	}
}

func userModelToDomain(m *UserModel) (*domain.User, error) {
	if m == nil {
		return nil, nil
	}

	birthday, err := domain.ParseBirthday(m.Birthday)
	if err != nil {
		return nil, err
	}

	return &domain.User{
		ID:        m.ID,
		FirstName: m.FirstName,
		LastName:  m.LastName,
		Email:     m.Email,
		Birthday:  birthday,
		Timezone:  m.Timezone,
		UpdatedAt: m.UpdatedAt,
	}, nil
}

func notificationModelFromDomain(n *domain.Notification) *NotificationModel {
	if n == nil {
		return nil
	}

	return &NotificationModel{
		ID:          n.ID,
		UserID:      n.UserID,
		Type:        n.Type,
		Status:      n.Status,
		ScheduledAt: n.ScheduledAt.UTC(),
		CreatedAt:   n.CreatedAt,
	}
}

func notificationModelToDomain(m *NotificationModel) *domain.Notification {
	if m == nil {
		return nil
	}

	return &domain.Notification{
		ID:          m.ID,
		UserID:      m.UserID,
		Type:        m.Type,
		Status:      m.Status,
		ScheduledAt: m.ScheduledAt.UTC(),
		CreatedAt:   m.CreatedAt,
	}
}

func attemptModelFromDomain(a *domain.DeliveryAttempt) *DeliveryAttemptModel {
	if a == nil {
		return nil
	}

	return &DeliveryAttemptModel{
		ID:             a.ID,
		NotificationID: a.NotificationID,
		AttemptNumber:  a.AttemptNumber,
		StatusCode:     a.StatusCode,
		Error:          a.Error,
		CreatedAt:      a.CreatedAt,
	}
}

func attemptModelToDomain(m *DeliveryAttemptModel) *domain.DeliveryAttempt {
	if m == nil {
		return nil
	}

	return &domain.DeliveryAttempt{
		ID:             m.ID,
		NotificationID: m.NotificationID,
		AttemptNumber:  m.AttemptNumber,
		StatusCode:     m.StatusCode,
		Error:          m.Error,
		CreatedAt:      m.CreatedAt,
	}
}
