package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"clipstream/internal/model"
)

// ErrDuplicateUser reports a unique-index violation on username or email,
// which the pre-create existence check can miss under concurrent registration.
var ErrDuplicateUser = errors.New("duplicate username or email")

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, user *model.User) error {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateUser
		}
		return fmt.Errorf("create user failed: %w", err)
	}
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id uint) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("query user by id failed: %w", err)
	}
	return &user, nil
}

// GetByUsernameOrEmail resolves a user by either identifier in one query.
// Either argument may be empty; empty strings never match a stored row.
func (r *UserRepository) GetByUsernameOrEmail(ctx context.Context, username, email string) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).
		Where("(username = ? AND username <> '') OR (email = ? AND email <> '')", username, email).
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("query user by username or email failed: %w", err)
	}
	return &user, nil
}

// SetRefreshToken stores token as the user's sole active refresh token.
func (r *UserRepository) SetRefreshToken(ctx context.Context, id uint, refreshToken string) error {
	res := r.db.WithContext(ctx).Model(&model.User{}).
		Where("id = ?", id).
		Update("refresh_token", refreshToken)
	if res.Error != nil {
		return fmt.Errorf("set refresh token failed: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("set refresh token: user %d not found", id)
	}
	return nil
}

// ClearRefreshToken unsets the user's refresh token (ACTIVE -> ABSENT).
func (r *UserRepository) ClearRefreshToken(ctx context.Context, id uint) error {
	err := r.db.WithContext(ctx).Model(&model.User{}).
		Where("id = ?", id).
		Update("refresh_token", "").Error
	if err != nil {
		return fmt.Errorf("clear refresh token failed: %w", err)
	}
	return nil
}

// RotateRefreshToken replaces oldToken with newToken only if oldToken is still
// the stored value. It reports false when the row no longer matches, which is
// how a concurrent rotation or a replayed token loses the race: at most one
// rotation per stored value can succeed.
func (r *UserRepository) RotateRefreshToken(ctx context.Context, id uint, oldToken, newToken string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.User{}).
		Where("id = ? AND refresh_token = ?", id, oldToken).
		Update("refresh_token", newToken)
	if res.Error != nil {
		return false, fmt.Errorf("rotate refresh token failed: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}
