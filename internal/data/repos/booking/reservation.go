package booking

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/seatbook/seatbook-backend/internal/domain"
	domainbooking "github.com/seatbook/seatbook-backend/internal/domain/booking"
	"github.com/seatbook/seatbook-backend/internal/platform/logger"
)

type ReservationRepo interface {
	// Create inserts a confirmed reservation. A uniqueness rejection on
	// (user_id, visit_at) is converted into CodeDuplicatedTime here; this
	// is the authoritative duplicate check, the protocol's pre-read is only
	// a fast-fail optimization.
	Create(ctx context.Context, tx *gorm.DB, res *domain.Reservation) error
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.Reservation, error)
	ExistsConfirmed(ctx context.Context, tx *gorm.DB, userID uuid.UUID, visitAt time.Time) (bool, error)
	// MarkCanceled flips a confirmed reservation to canceled. False means
	// the row was missing or already canceled.
	MarkCanceled(ctx context.Context, tx *gorm.DB, id uuid.UUID) (bool, error)
	DeleteAll(ctx context.Context, tx *gorm.DB) error
}

type reservationRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewReservationRepo(db *gorm.DB, baseLog *logger.Logger) ReservationRepo {
	return &reservationRepo{db: db, log: baseLog.With("repo", "ReservationRepo")}
}

func (r *reservationRepo) base(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *reservationRepo) Create(ctx context.Context, tx *gorm.DB, res *domain.Reservation) error {
	if err := r.base(tx).WithContext(ctx).Create(res).Error; err != nil {
		if domainbooking.IsUniqueViolation(err) {
			return domainbooking.Wrap(domainbooking.CodeDuplicatedTime, "reservation.create", err)
		}
		return err
	}
	return nil
}

func (r *reservationRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.Reservation, error) {
	var res domain.Reservation
	if err := r.base(tx).WithContext(ctx).
		Where("id = ?", id).
		First(&res).Error; err != nil {
		return nil, err
	}
	return &res, nil
}

func (r *reservationRepo) ExistsConfirmed(ctx context.Context, tx *gorm.DB, userID uuid.UUID, visitAt time.Time) (bool, error) {
	var count int64
	if err := r.base(tx).WithContext(ctx).
		Model(&domain.Reservation{}).
		Where("user_id = ? AND visit_at = ? AND status = ?", userID, visitAt, domain.ReservationConfirmed).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *reservationRepo) MarkCanceled(ctx context.Context, tx *gorm.DB, id uuid.UUID) (bool, error) {
	res := r.base(tx).WithContext(ctx).
		Model(&domain.Reservation{}).
		Where("id = ? AND status = ?", id, domain.ReservationConfirmed).
		Update("status", domain.ReservationCanceled)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *reservationRepo) DeleteAll(ctx context.Context, tx *gorm.DB) error {
	return r.base(tx).WithContext(ctx).
		Session(&gorm.Session{AllowGlobalUpdate: true}).
		Delete(&domain.Reservation{}).Error
}
