package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/viaduct-io/viaduct/gateway/internal/db"
)

// DatabaseRepository persists the per-database routing record that the
// Query Router and Direct Executor read.
type DatabaseRepository interface {
	Create(ctx context.Context, rec *db.DatabaseRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*db.DatabaseRecord, error)
	Update(ctx context.Context, rec *db.DatabaseRecord) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, opts ListOptions) ([]db.DatabaseRecord, int64, error)
}

type gormDatabaseRepository struct {
	db *gorm.DB
}

// NewDatabaseRepository returns a DatabaseRepository backed by the provided *gorm.DB.
func NewDatabaseRepository(database *gorm.DB) DatabaseRepository {
	return &gormDatabaseRepository{db: database}
}

func (r *gormDatabaseRepository) Create(ctx context.Context, rec *db.DatabaseRecord) error {
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("databases: create: %w", err)
	}
	return nil
}

// GetByID retrieves a routing record by database_id. Returns ErrNotFound if
// no record exists — this is the lookup the Query Router makes for every
// routed query. The tunnel handshake does not consult it.
func (r *gormDatabaseRepository) GetByID(ctx context.Context, id uuid.UUID) (*db.DatabaseRecord, error) {
	var rec db.DatabaseRecord
	err := r.db.WithContext(ctx).First(&rec, "database_id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("databases: get by id: %w", err)
	}
	return &rec, nil
}

func (r *gormDatabaseRepository) Update(ctx context.Context, rec *db.DatabaseRecord) error {
	result := r.db.WithContext(ctx).Save(rec)
	if result.Error != nil {
		return fmt.Errorf("databases: update: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormDatabaseRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&db.DatabaseRecord{}, "database_id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("databases: delete: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormDatabaseRepository) List(ctx context.Context, opts ListOptions) ([]db.DatabaseRecord, int64, error) {
	var recs []db.DatabaseRecord
	var total int64

	if err := r.db.WithContext(ctx).Model(&db.DatabaseRecord{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("databases: list count: %w", err)
	}

	if err := r.db.WithContext(ctx).
		Limit(opts.Limit).
		Offset(opts.Offset).
		Order("created_at ASC").
		Find(&recs).Error; err != nil {
		return nil, 0, fmt.Errorf("databases: list: %w", err)
	}

	return recs, total, nil
}
