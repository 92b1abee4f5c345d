package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/viaduct-io/viaduct/gateway/internal/db"
)

// SettingRepository persists the SMTP/webhook config the alerting package
// reads before each send.
type SettingRepository interface {
	Get(ctx context.Context, key string) (*db.Setting, error)
	Set(ctx context.Context, key string, value db.EncryptedString) error
	GetMany(ctx context.Context, prefix string) ([]db.Setting, error)
	Delete(ctx context.Context, key string) error
}

type gormSettingRepository struct {
	db *gorm.DB
}

// NewSettingRepository returns a SettingRepository backed by the provided *gorm.DB.
func NewSettingRepository(database *gorm.DB) SettingRepository {
	return &gormSettingRepository{db: database}
}

func (r *gormSettingRepository) Get(ctx context.Context, key string) (*db.Setting, error) {
	var s db.Setting
	err := r.db.WithContext(ctx).First(&s, "key = ?", key).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

// Set upserts a setting. On conflict the value and updated_at are
// overwritten, avoiding a read-before-write on every save.
func (r *gormSettingRepository) Set(ctx context.Context, key string, value db.EncryptedString) error {
	s := db.Setting{Key: key, Value: value}
	return r.db.WithContext(ctx).Save(&s).Error
}

func (r *gormSettingRepository) GetMany(ctx context.Context, prefix string) ([]db.Setting, error) {
	var settings []db.Setting
	err := r.db.WithContext(ctx).Where("key LIKE ?", prefix+"%").Find(&settings).Error
	if err != nil {
		return nil, err
	}
	return settings, nil
}

// Delete removes a setting by key. Idempotent: absent keys are not an error.
func (r *gormSettingRepository) Delete(ctx context.Context, key string) error {
	return r.db.WithContext(ctx).Delete(&db.Setting{}, "key = ?", key).Error
}
