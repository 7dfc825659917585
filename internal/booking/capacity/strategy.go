package capacity

import (
	"time"

	"github.com/google/uuid"

	"github.com/seatbook/seatbook-backend/internal/domain"
	"github.com/seatbook/seatbook-backend/internal/platform/dbctx"
)

// Strategy mutates the remaining capacity for one slot-date key. All three
// implementations share this contract; which one is active is a
// deployment-time configuration choice.
//
// Decrease fails with CodeInvalidInput for partySize <= 0,
// CodeCapacityNotEnough when the pool cannot satisfy the request (terminal,
// never retried), and a strategy-specific liveness or conflict code when
// contention intervenes.
type Strategy interface {
	Name() string
	Decrease(dbc dbctx.Context, slotID uuid.UUID, date time.Time, partySize int) error
	// Increase is the cancellation refund primitive. It preserves the same
	// invariant as Decrease: remaining never exceeds the pool maximum.
	Increase(dbc dbctx.Context, slotID uuid.UUID, date time.Time, partySize int) error
}

// TxSerializer is implemented by strategies whose correctness depends on the
// enclosing transaction committing inside their critical section. The protocol
// wraps its whole unit of work in Serialize when the active strategy exposes
// it.
type TxSerializer interface {
	Serialize(fn func() error) error
}

func poolKey(slotID uuid.UUID, date time.Time) string {
	return slotID.String() + ":" + domain.DateOnly(date).Format("2006-01-02")
}
