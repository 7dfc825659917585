package booking

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/seatbook/seatbook-backend/internal/domain"
	"github.com/seatbook/seatbook-backend/internal/platform/logger"
)

type SlotRepo interface {
	Create(ctx context.Context, tx *gorm.DB, slots []*domain.Slot) ([]*domain.Slot, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.Slot, error)
	DeleteAll(ctx context.Context, tx *gorm.DB) error
}

type slotRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSlotRepo(db *gorm.DB, baseLog *logger.Logger) SlotRepo {
	return &slotRepo{db: db, log: baseLog.With("repo", "SlotRepo")}
}

func (r *slotRepo) base(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *slotRepo) Create(ctx context.Context, tx *gorm.DB, slots []*domain.Slot) ([]*domain.Slot, error) {
	if len(slots) == 0 {
		return []*domain.Slot{}, nil
	}
	if err := r.base(tx).WithContext(ctx).Create(&slots).Error; err != nil {
		return nil, err
	}
	return slots, nil
}

func (r *slotRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.Slot, error) {
	var s domain.Slot
	if err := r.base(tx).WithContext(ctx).
		Where("id = ?", id).
		First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *slotRepo) DeleteAll(ctx context.Context, tx *gorm.DB) error {
	return r.base(tx).WithContext(ctx).
		Session(&gorm.Session{AllowGlobalUpdate: true}).
		Delete(&domain.Slot{}).Error
}
