package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/kursadbilgin/birthday-reminder/internal/domain"
	"gorm.io/gorm"
)

type UserRepository interface {
	Create(ctx context.Context, u *domain.User) error
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	List(ctx context.Context) ([]domain.User, error)
	// Update applies the non-nil fields of patch and reports whether a row matched.
	Update(ctx context.Context, id int64, patch domain.UserPatch) (bool, error)
	Delete(ctx context.Context, id int64) error
}

type GormUserRepo struct {
	db *gorm.DB
}

func NewGormUserRepo(db *gorm.DB) *GormUserRepo {
	return &GormUserRepo{db: db}
}

func (r *GormUserRepo) Create(ctx context.Context, u *domain.User) error {
	model := userModelFromDomain(u)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if u != nil {
		u.ID = model.ID
		u.UpdatedAt = model.UpdatedAt
	}
	return nil
}

func (r *GormUserRepo) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	var model UserModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return userModelToDomain(&model)
}

func (r *GormUserRepo) List(ctx context.Context) ([]domain.User, error) {
	var models []UserModel
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&models).Error; err != nil {
		return nil, err
	}

	users := make([]domain.User, 0, len(models))
	for i := range models {
		u, err := userModelToDomain(&models[i])
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}

	return users, nil
}

func (r *GormUserRepo) Update(ctx context.Context, id int64, patch domain.UserPatch) (bool, error) {
	updates := map[string]any{"updated_at": time.Now().UTC()}
	if patch.FirstName != nil {
		updates["first_name"] = strings.TrimSpace(*patch.FirstName)
	}
	if patch.LastName != nil {
		updates["last_name"] = strings.TrimSpace(*patch.LastName)
	}
	if patch.Email != nil {
		updates["email"] = strings.TrimSpace(*patch.Email)
	}
	if patch.Birthday != nil {
		updates["birthday"] = patch.Birthday.Format(domain.BirthdayLayout)
	}
	if patch.Timezone != nil {
		updates["timezone"] = strings.TrimSpace(*patch.Timezone)
	}

	result := r.db.WithContext(ctx).
		Model(&UserModel{}).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *GormUserRepo) Delete(ctx context.Context, id int64) error {
	result := r.db.WithContext(ctx).Delete(&UserModel{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
