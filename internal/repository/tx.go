package repository

import (
	"context"

	"gorm.io/gorm"
)

// Repositories groups the stores bound to a single connection or transaction.
type Repositories struct {
	Users         UserRepository
	Notifications NotificationRepository
	Attempts      AttemptRepository
}

func NewGormRepositories(db *gorm.DB) Repositories {
	return Repositories{
		Users:         NewGormUserRepo(db),
		Notifications: NewGormNotificationRepo(db),
		Attempts:      NewGormAttemptRepo(db),
	}
}

type TxManager interface {
	// WithinTransaction runs fn against transaction-scoped repositories.
	// Returning an error rolls everything back.
	WithinTransaction(ctx context.Context, fn func(repos Repositories) error) error
}

type GormTxManager struct {
	db *gorm.DB
}

func NewGormTxManager(db *gorm.DB) *GormTxManager {
	return &GormTxManager{db: db}
}

func (m *GormTxManager) WithinTransaction(ctx context.Context, fn func(repos Repositories) error) error {
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewGormRepositories(tx))
	})
}
