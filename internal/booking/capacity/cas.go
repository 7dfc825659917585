package capacity

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/seatbook/seatbook-backend/internal/domain/booking"
	"github.com/seatbook/seatbook-backend/internal/platform/dbctx"
	"github.com/seatbook/seatbook-backend/internal/platform/logger"
)

// DefaultSpinLimit bounds the compare-and-swap loop. Exhausting it is a
// liveness failure (CodeNotAvailable), not a capacity rejection.
const DefaultSpinLimit = 50

type casCell struct {
	remaining atomic.Int64
	max       int64
}

// CASStrategy keeps a process-local mirror of each pool in an atomic cell and
// decrements it lock-free. The mirror is derived, best-effort state: it must
// be primed through Init before first use and is unsound when more than one
// process shares the underlying slot-date key.
type CASStrategy struct {
	cells     sync.Map // poolKey -> *casCell
	spinLimit int
	log       *logger.Logger
}

func NewCASStrategy(baseLog *logger.Logger, spinLimit int) *CASStrategy {
	if spinLimit <= 0 {
		spinLimit = DefaultSpinLimit
	}
	return &CASStrategy{
		spinLimit: spinLimit,
		log:       baseLog.With("strategy", "cas"),
	}
}

func (s *CASStrategy) Name() string { return "cas" }

// Init primes the cell for a slot-date key. The first writer wins; a racing
// or repeated Init leaves the live counter untouched. Slots must be opened
// before traffic arrives, there is no lazy creation.
func (s *CASStrategy) Init(slotID uuid.UUID, date time.Time, initialRemaining int) bool {
	cell := &casCell{max: int64(initialRemaining)}
	cell.remaining.Store(int64(initialRemaining))
	_, loaded := s.cells.LoadOrStore(poolKey(slotID, date), cell)
	if loaded {
		s.log.Debug("capacity cell already primed", "key", poolKey(slotID, date))
	}
	return !loaded
}

// Clear drops every cell. Test teardown only.
func (s *CASStrategy) Clear() {
	s.cells.Range(func(k, _ any) bool {
		s.cells.Delete(k)
		return true
	})
}

// Remaining reports the current mirror value for a key.
func (s *CASStrategy) Remaining(slotID uuid.UUID, date time.Time) (int, bool) {
	v, ok := s.cells.Load(poolKey(slotID, date))
	if !ok {
		return 0, false
	}
	return int(v.(*casCell).remaining.Load()), true
}

func (s *CASStrategy) Decrease(_ dbctx.Context, slotID uuid.UUID, date time.Time, partySize int) error {
	const op = "capacity.cas.decrease"
	if partySize <= 0 {
		return booking.NewError(booking.CodeInvalidInput, op, "party size must be positive", nil)
	}
	v, ok := s.cells.Load(poolKey(slotID, date))
	if !ok {
		return booking.NewError(booking.CodeNotInitialized, op, "capacity cell not primed for slot-date", nil)
	}
	cell := v.(*casCell)

	for i := 0; i < s.spinLimit; i++ {
		current := cell.remaining.Load()
		if current < int64(partySize) {
			return booking.NewError(booking.CodeCapacityNotEnough, op, "not enough seats remaining", nil)
		}
		if cell.remaining.CompareAndSwap(current, current-int64(partySize)) {
			return nil
		}
	}
	return booking.NewError(booking.CodeNotAvailable, op, "retry exceeded", nil)
}

func (s *CASStrategy) Increase(_ dbctx.Context, slotID uuid.UUID, date time.Time, partySize int) error {
	const op = "capacity.cas.increase"
	if partySize <= 0 {
		return booking.NewError(booking.CodeInvalidInput, op, "party size must be positive", nil)
	}
	v, ok := s.cells.Load(poolKey(slotID, date))
	if !ok {
		return booking.NewError(booking.CodeNotInitialized, op, "capacity cell not primed for slot-date", nil)
	}
	cell := v.(*casCell)

	for i := 0; i < s.spinLimit; i++ {
		current := cell.remaining.Load()
		next := current + int64(partySize)
		if next > cell.max {
			next = cell.max
		}
		if cell.remaining.CompareAndSwap(current, next) {
			return nil
		}
	}
	return booking.NewError(booking.CodeNotAvailable, op, "retry exceeded", nil)
}
