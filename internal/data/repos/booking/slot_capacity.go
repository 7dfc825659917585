package booking

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/seatbook/seatbook-backend/internal/domain"
	"github.com/seatbook/seatbook-backend/internal/platform/logger"
)

// SlotCapacityRepo is the persistent capacity store. It is the sole source of
// truth for remaining_count and version across process boundaries.
type SlotCapacityRepo interface {
	// Open inserts the capacity row for a slot-date. A row that already
	// exists is left untouched (first writer wins); the return reports
	// whether this call created it.
	Open(ctx context.Context, tx *gorm.DB, record *domain.SlotCapacity) (bool, error)
	GetBySlotDate(ctx context.Context, tx *gorm.DB, slotID uuid.UUID, date time.Time) (*domain.SlotCapacity, error)
	// UpdateCount writes remaining_count unconditionally and bumps version.
	// Callers must hold their own serialization (the mutex strategy).
	UpdateCount(ctx context.Context, tx *gorm.DB, id uuid.UUID, remaining int) error
	// UpdateCountByVersion writes remaining_count only when the stored
	// version still equals expectedVersion, bumping version on success.
	// A false return is the version-conflict signal.
	UpdateCountByVersion(ctx context.Context, tx *gorm.DB, id uuid.UUID, expectedVersion, remaining int) (bool, error)
	DeleteAll(ctx context.Context, tx *gorm.DB) error
}

type slotCapacityRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSlotCapacityRepo(db *gorm.DB, baseLog *logger.Logger) SlotCapacityRepo {
	return &slotCapacityRepo{db: db, log: baseLog.With("repo", "SlotCapacityRepo")}
}

func (r *slotCapacityRepo) base(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *slotCapacityRepo) Open(ctx context.Context, tx *gorm.DB, record *domain.SlotCapacity) (bool, error) {
	record.Date = domain.DateOnly(record.Date)
	res := r.base(tx).WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "slot_id"}, {Name: "date"}},
			DoNothing: true,
		}).
		Create(record)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *slotCapacityRepo) GetBySlotDate(ctx context.Context, tx *gorm.DB, slotID uuid.UUID, date time.Time) (*domain.SlotCapacity, error) {
	var c domain.SlotCapacity
	if err := r.base(tx).WithContext(ctx).
		Where("slot_id = ? AND date = ?", slotID, domain.DateOnly(date)).
		First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *slotCapacityRepo) UpdateCount(ctx context.Context, tx *gorm.DB, id uuid.UUID, remaining int) error {
	return r.base(tx).WithContext(ctx).
		Model(&domain.SlotCapacity{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"remaining_count": remaining,
			"version":         gorm.Expr("version + 1"),
		}).Error
}

func (r *slotCapacityRepo) UpdateCountByVersion(ctx context.Context, tx *gorm.DB, id uuid.UUID, expectedVersion, remaining int) (bool, error) {
	res := r.base(tx).WithContext(ctx).
		Model(&domain.SlotCapacity{}).
		Where("id = ? AND version = ?", id, expectedVersion).
		Updates(map[string]any{
			"remaining_count": remaining,
			"version":         gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *slotCapacityRepo) DeleteAll(ctx context.Context, tx *gorm.DB) error {
	return r.base(tx).WithContext(ctx).
		Session(&gorm.Session{AllowGlobalUpdate: true}).
		Delete(&domain.SlotCapacity{}).Error
}
