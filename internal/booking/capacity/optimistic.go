package capacity

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	bookingrepo "github.com/seatbook/seatbook-backend/internal/data/repos/booking"
	"github.com/seatbook/seatbook-backend/internal/domain/booking"
	"github.com/seatbook/seatbook-backend/internal/platform/dbctx"
	"github.com/seatbook/seatbook-backend/internal/platform/logger"
)

// OptimisticStrategy decrements through a version-guarded update: the write
// lands only when the row's version still matches the one read inside the
// current transaction. A miss surfaces CodeVersionConflict, which the retry
// facade wrapping the whole reservation transaction treats as retry-worthy.
// The application never holds a lock; the store's version check is the
// serialization mechanism.
type OptimisticStrategy struct {
	caps bookingrepo.SlotCapacityRepo
	log  *logger.Logger
}

func NewOptimisticStrategy(caps bookingrepo.SlotCapacityRepo, baseLog *logger.Logger) *OptimisticStrategy {
	return &OptimisticStrategy{
		caps: caps,
		log:  baseLog.With("strategy", "optimistic"),
	}
}

func (s *OptimisticStrategy) Name() string { return "optimistic" }

func (s *OptimisticStrategy) Decrease(dbc dbctx.Context, slotID uuid.UUID, date time.Time, partySize int) error {
	const op = "capacity.optimistic.decrease"
	if partySize <= 0 {
		return booking.NewError(booking.CodeInvalidInput, op, "party size must be positive", nil)
	}

	row, err := s.caps.GetBySlotDate(dbc.Ctx, dbc.Tx, slotID, date)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return booking.NewError(booking.CodeSlotNotOpened, op, "no capacity row for slot-date", err)
		}
		return booking.MapStoreError(op, err)
	}

	// The capacity check runs against the freshly loaded row, so a genuine
	// shortfall is terminal and never masked by a version conflict.
	led := Ledger{Remaining: row.RemainingCount, Max: row.MaxCount}
	if !led.Decrease(partySize) {
		return booking.NewError(booking.CodeCapacityNotEnough, op, "not enough seats remaining", nil)
	}

	ok, err := s.caps.UpdateCountByVersion(dbc.Ctx, dbc.Tx, row.ID, row.Version, led.Remaining)
	if err != nil {
		return booking.MapStoreError(op, err)
	}
	if !ok {
		return booking.NewError(booking.CodeVersionConflict, op, "capacity row advanced since read", nil)
	}
	return nil
}

func (s *OptimisticStrategy) Increase(dbc dbctx.Context, slotID uuid.UUID, date time.Time, partySize int) error {
	const op = "capacity.optimistic.increase"
	if partySize <= 0 {
		return booking.NewError(booking.CodeInvalidInput, op, "party size must be positive", nil)
	}

	row, err := s.caps.GetBySlotDate(dbc.Ctx, dbc.Tx, slotID, date)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return booking.NewError(booking.CodeSlotNotOpened, op, "no capacity row for slot-date", err)
		}
		return booking.MapStoreError(op, err)
	}

	led := Ledger{Remaining: row.RemainingCount, Max: row.MaxCount}
	led.Increase(partySize)

	ok, err := s.caps.UpdateCountByVersion(dbc.Ctx, dbc.Tx, row.ID, row.Version, led.Remaining)
	if err != nil {
		return booking.MapStoreError(op, err)
	}
	if !ok {
		return booking.NewError(booking.CodeVersionConflict, op, "capacity row advanced since read", nil)
	}
	return nil
}
