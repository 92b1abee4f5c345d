package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/viaduct-io/viaduct/gateway/internal/db"
)

// AlertLogRepository persists the durable record of every operator alert
// the alerting package fires, independent of whether email/webhook delivery
// succeeded.
type AlertLogRepository interface {
	Create(ctx context.Context, log *db.AlertLog) error
	List(ctx context.Context, opts ListOptions) ([]db.AlertLog, int64, error)
}

type gormAlertLogRepository struct {
	db *gorm.DB
}

// NewAlertLogRepository returns an AlertLogRepository backed by the provided *gorm.DB.
func NewAlertLogRepository(database *gorm.DB) AlertLogRepository {
	return &gormAlertLogRepository{db: database}
}

func (r *gormAlertLogRepository) Create(ctx context.Context, log *db.AlertLog) error {
	if err := r.db.WithContext(ctx).Create(log).Error; err != nil {
		return fmt.Errorf("alertlog: create: %w", err)
	}
	return nil
}

func (r *gormAlertLogRepository) List(ctx context.Context, opts ListOptions) ([]db.AlertLog, int64, error) {
	var logs []db.AlertLog
	var total int64

	if err := r.db.WithContext(ctx).Model(&db.AlertLog{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("alertlog: list count: %w", err)
	}
	if err := r.db.WithContext(ctx).
		Limit(opts.Limit).
		Offset(opts.Offset).
		Order("created_at DESC").
		Find(&logs).Error; err != nil {
		return nil, 0, fmt.Errorf("alertlog: list: %w", err)
	}

	return logs, total, nil
}
