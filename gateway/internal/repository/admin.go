package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/viaduct-io/viaduct/gateway/internal/db"
)

// AdminUserRepository persists admin console operator accounts.
type AdminUserRepository interface {
	Create(ctx context.Context, user *db.AdminUser) error
	GetByID(ctx context.Context, id uuid.UUID) (*db.AdminUser, error)
	GetByEmail(ctx context.Context, email string) (*db.AdminUser, error)
	Update(ctx context.Context, user *db.AdminUser) error
}

type gormAdminUserRepository struct {
	db *gorm.DB
}

// NewAdminUserRepository returns an AdminUserRepository backed by the provided *gorm.DB.
func NewAdminUserRepository(database *gorm.DB) AdminUserRepository {
	return &gormAdminUserRepository{db: database}
}

func (r *gormAdminUserRepository) Create(ctx context.Context, user *db.AdminUser) error {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		return fmt.Errorf("admin_users: create: %w", err)
	}
	return nil
}

func (r *gormAdminUserRepository) GetByID(ctx context.Context, id uuid.UUID) (*db.AdminUser, error) {
	var user db.AdminUser
	err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("admin_users: get by id: %w", err)
	}
	return &user, nil
}

func (r *gormAdminUserRepository) GetByEmail(ctx context.Context, email string) (*db.AdminUser, error) {
	var user db.AdminUser
	err := r.db.WithContext(ctx).First(&user, "email = ?", email).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("admin_users: get by email: %w", err)
	}
	return &user, nil
}

func (r *gormAdminUserRepository) Update(ctx context.Context, user *db.AdminUser) error {
	result := r.db.WithContext(ctx).Save(user)
	if result.Error != nil {
		return fmt.Errorf("admin_users: update: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// RefreshTokenRepository persists hashed admin-console refresh tokens.
type RefreshTokenRepository interface {
	Create(ctx context.Context, token *db.RefreshToken) error
	GetByHash(ctx context.Context, hash string) (*db.RefreshToken, error)
	DeleteByHash(ctx context.Context, hash string) error
	DeleteExpired(ctx context.Context) error
}

type gormRefreshTokenRepository struct {
	db *gorm.DB
}

// NewRefreshTokenRepository returns a RefreshTokenRepository backed by the provided *gorm.DB.
func NewRefreshTokenRepository(database *gorm.DB) RefreshTokenRepository {
	return &gormRefreshTokenRepository{db: database}
}

func (r *gormRefreshTokenRepository) Create(ctx context.Context, token *db.RefreshToken) error {
	if err := r.db.WithContext(ctx).Create(token).Error; err != nil {
		return fmt.Errorf("refresh_tokens: create: %w", err)
	}
	return nil
}

func (r *gormRefreshTokenRepository) GetByHash(ctx context.Context, hash string) (*db.RefreshToken, error) {
	var token db.RefreshToken
	err := r.db.WithContext(ctx).First(&token, "token_hash = ?", hash).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("refresh_tokens: get by hash: %w", err)
	}
	return &token, nil
}

// DeleteByHash removes a refresh token by its SHA-256 hash. A no-op when
// the hash is already gone — the desired state (token absent) is met.
func (r *gormRefreshTokenRepository) DeleteByHash(ctx context.Context, hash string) error {
	err := r.db.WithContext(ctx).Where("token_hash = ?", hash).Delete(&db.RefreshToken{}).Error
	if err != nil {
		return fmt.Errorf("refresh_tokens: delete by hash: %w", err)
	}
	return nil
}

// DeleteExpired removes every refresh token past its expiry. Intended to be
// called periodically by a background cleanup job.
func (r *gormRefreshTokenRepository) DeleteExpired(ctx context.Context) error {
	err := r.db.WithContext(ctx).Where("expires_at < CURRENT_TIMESTAMP").Delete(&db.RefreshToken{}).Error
	if err != nil {
		return fmt.Errorf("refresh_tokens: delete expired: %w", err)
	}
	return nil
}
