package capacity

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	bookingrepo "github.com/seatbook/seatbook-backend/internal/data/repos/booking"
	"github.com/seatbook/seatbook-backend/internal/domain/booking"
	"github.com/seatbook/seatbook-backend/internal/platform/dbctx"
	"github.com/seatbook/seatbook-backend/internal/platform/logger"
)

// MutexStrategy serializes every read-decrement-write sequence behind one
// process-wide lock against the persistent capacity store. The lock is
// deliberately coarse: no two decrements for any key interleave. Correct as a
// single-instance baseline, it does not scale with request volume; a per-key
// lock table would be the equivalent-correctness alternative.
//
// The lock must span the enclosing transaction, not just the read-write pair:
// if it were released before commit, a second caller could read the
// still-committed old count and overwrite the first caller's decrement after
// it lands. Callers therefore wrap the whole transaction in Serialize;
// Decrease and Increase themselves take no lock.
type MutexStrategy struct {
	mu   sync.Mutex
	caps bookingrepo.SlotCapacityRepo
	log  *logger.Logger
}

func NewMutexStrategy(caps bookingrepo.SlotCapacityRepo, baseLog *logger.Logger) *MutexStrategy {
	return &MutexStrategy{
		caps: caps,
		log:  baseLog.With("strategy", "mutex"),
	}
}

func (s *MutexStrategy) Name() string { return "mutex" }

// Serialize runs fn inside the strategy's critical section. fn is the entire
// unit of work, transaction commit included, so the next caller only reads
// state this caller has already made durable.
func (s *MutexStrategy) Serialize(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn()
}

func (s *MutexStrategy) Decrease(dbc dbctx.Context, slotID uuid.UUID, date time.Time, partySize int) error {
	const op = "capacity.mutex.decrease"
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
	if !led.Decrease(partySize) {
		return booking.NewError(booking.CodeCapacityNotEnough, op, "not enough seats remaining", nil)
	}
	if err := s.caps.UpdateCount(dbc.Ctx, dbc.Tx, row.ID, led.Remaining); err != nil {
		return booking.MapStoreError(op, err)
	}
	return nil
}

func (s *MutexStrategy) Increase(dbc dbctx.Context, slotID uuid.UUID, date time.Time, partySize int) error {
	const op = "capacity.mutex.increase"
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
	if err := s.caps.UpdateCount(dbc.Ctx, dbc.Tx, row.ID, led.Remaining); err != nil {
		return booking.MapStoreError(op, err)
	}
	return nil
}
