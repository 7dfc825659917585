package reservation

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/seatbook/seatbook-backend/internal/booking/capacity"
	"github.com/seatbook/seatbook-backend/internal/data/db"
	bookingrepo "github.com/seatbook/seatbook-backend/internal/data/repos/booking"
	"github.com/seatbook/seatbook-backend/internal/data/repos/testutil"
	userrepo "github.com/seatbook/seatbook-backend/internal/data/repos/user"
	"github.com/seatbook/seatbook-backend/internal/domain"
	"github.com/seatbook/seatbook-backend/internal/domain/booking"
	"github.com/seatbook/seatbook-backend/internal/platform/dbctx"
)

type serviceEnv struct {
	svc  *Service
	gdb  *gorm.DB
	caps bookingrepo.SlotCapacityRepo
	cas  *capacity.CASStrategy
}

func newServiceEnv(t *testing.T, strategy string) *serviceEnv {
	t.Helper()
	gdb := testutil.DB(t)
	log := testutil.Logger(t)

	caps := bookingrepo.NewSlotCapacityRepo(gdb, log)
	deps := Deps{
		Users:        userrepo.NewRepo(gdb, log),
		Slots:        bookingrepo.NewSlotRepo(gdb, log),
		Capacities:   caps,
		Reservations: bookingrepo.NewReservationRepo(gdb, log),
		Runner:       db.NewGormTxRunner(gdb),
		Log:          log,
	}

	env := &serviceEnv{gdb: gdb, caps: caps}
	switch strategy {
	case "cas":
		cas := capacity.NewCASStrategy(log, 0)
		t.Cleanup(cas.Clear)
		deps.Strategy = cas
		deps.CAS = cas
		env.cas = cas
	case "mutex":
		deps.Strategy = capacity.NewMutexStrategy(caps, log)
	case "optimistic":
		deps.Strategy = capacity.NewOptimisticStrategy(caps, log)
		deps.Retrier = NewRetrier(RetryPolicy{MaxAttempts: 3, MinBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}, log)
	default:
		t.Fatalf("unknown strategy %q", strategy)
	}

	env.svc = NewService(deps)
	return env
}

func (e *serviceEnv) seedUser(t *testing.T) *domain.User {
	t.Helper()
	u := testutil.SeedUser(t, context.Background(), e.gdb, fmt.Sprintf("guest-%s@example.com", uuid.New()))
	t.Cleanup(func() {
		e.gdb.Delete(&domain.Reservation{}, "user_id = ?", u.ID)
		e.gdb.Delete(&domain.User{}, "id = ?", u.ID)
	})
	return u
}

func (e *serviceEnv) seedSlot(t *testing.T, maxCapacity int) *domain.Slot {
	t.Helper()
	s := testutil.SeedSlot(t, context.Background(), e.gdb, maxCapacity)
	t.Cleanup(func() {
		e.gdb.Delete(&domain.SlotCapacity{}, "slot_id = ?", s.ID)
		e.gdb.Delete(&domain.Slot{}, "id = ?", s.ID)
	})
	return s
}

func (e *serviceEnv) remaining(t *testing.T, slotID uuid.UUID, date time.Time) int {
	t.Helper()
	row, err := e.caps.GetBySlotDate(context.Background(), nil, slotID, date)
	if err != nil {
		t.Fatalf("load capacity row: %v", err)
	}
	return row.RemainingCount
}

func TestInitCapacityOpensSlotDate(t *testing.T) {
	env := newServiceEnv(t, "mutex")
	slot := env.seedSlot(t, 10)
	date := testutil.Date(t, "2026-10-01")

	row, err := env.svc.InitCapacity(context.Background(), slot.ID, date, 10)
	if err != nil {
		t.Fatalf("init capacity: %v", err)
	}
	if row.RemainingCount != 10 || row.MaxCount != 10 {
		t.Fatalf("row = %d/%d, want 10/10", row.RemainingCount, row.MaxCount)
	}
	if !row.Date.Equal(domain.DateOnly(date)) {
		t.Fatalf("date = %v, want normalized %v", row.Date, domain.DateOnly(date))
	}
}

func TestInitCapacityRepeatKeepsLiveCount(t *testing.T) {
	env := newServiceEnv(t, "mutex")
	user := env.seedUser(t)
	slot := env.seedSlot(t, 10)
	date := testutil.Date(t, "2026-10-01")
	ctx := context.Background()

	if _, err := env.svc.InitCapacity(ctx, slot.ID, date, 10); err != nil {
		t.Fatalf("init capacity: %v", err)
	}
	if _, err := env.svc.Create(ctx, CreateInput{UserID: user.ID, SlotID: slot.ID, Date: date, PartySize: 3}); err != nil {
		t.Fatalf("create: %v", err)
	}

	row, err := env.svc.InitCapacity(ctx, slot.ID, date, 99)
	if err != nil {
		t.Fatalf("repeat init: %v", err)
	}
	if row.RemainingCount != 7 {
		t.Fatalf("repeat init reset the live count: got %d, want 7", row.RemainingCount)
	}
}

func TestInitCapacityRejectsNegative(t *testing.T) {
	env := newServiceEnv(t, "mutex")
	slot := env.seedSlot(t, 10)

	_, err := env.svc.InitCapacity(context.Background(), slot.ID, testutil.Date(t, "2026-10-01"), -1)
	if !booking.IsCode(err, booking.CodeInvalidInput) {
		t.Fatalf("err = %v, want code %s", err, booking.CodeInvalidInput)
	}
}

func TestInitCapacityUnknownSlot(t *testing.T) {
	env := newServiceEnv(t, "mutex")

	_, err := env.svc.InitCapacity(context.Background(), uuid.New(), testutil.Date(t, "2026-10-01"), 5)
	if !booking.IsCode(err, booking.CodeSlotNotFound) {
		t.Fatalf("err = %v, want code %s", err, booking.CodeSlotNotFound)
	}
}

func TestCreateHappyPath(t *testing.T) {
	for _, strategy := range []string{"mutex", "optimistic", "cas"} {
		t.Run(strategy, func(t *testing.T) {
			env := newServiceEnv(t, strategy)
			user := env.seedUser(t)
			slot := env.seedSlot(t, 10)
			date := testutil.Date(t, "2026-10-01")
			ctx := context.Background()

			if _, err := env.svc.InitCapacity(ctx, slot.ID, date, 10); err != nil {
				t.Fatalf("init capacity: %v", err)
			}

			res, err := env.svc.Create(ctx, CreateInput{
				UserID:    user.ID,
				SlotID:    slot.ID,
				Date:      date,
				PartySize: 4,
				Note:      "window seat",
			})
			if err != nil {
				t.Fatalf("create: %v", err)
			}
			if res.Status != domain.ReservationConfirmed {
				t.Fatalf("status = %q, want %q", res.Status, domain.ReservationConfirmed)
			}
			if want := domain.VisitAt(date, slot); !res.VisitAt.Equal(want) {
				t.Fatalf("visit at = %v, want %v", res.VisitAt, want)
			}

			if strategy == "cas" {
				if got, _ := env.cas.Remaining(slot.ID, date); got != 6 {
					t.Fatalf("cas remaining = %d, want 6", got)
				}
			} else {
				if got := env.remaining(t, slot.ID, date); got != 6 {
					t.Fatalf("remaining = %d, want 6", got)
				}
			}
		})
	}
}

func TestCreateUnknownUser(t *testing.T) {
	env := newServiceEnv(t, "mutex")
	slot := env.seedSlot(t, 10)
	date := testutil.Date(t, "2026-10-01")

	_, err := env.svc.Create(context.Background(), CreateInput{UserID: uuid.New(), SlotID: slot.ID, Date: date, PartySize: 2})
	if !booking.IsCode(err, booking.CodeUserNotFound) {
		t.Fatalf("err = %v, want code %s", err, booking.CodeUserNotFound)
	}
}

func TestCreateUnknownSlot(t *testing.T) {
	env := newServiceEnv(t, "mutex")
	user := env.seedUser(t)

	_, err := env.svc.Create(context.Background(), CreateInput{UserID: user.ID, SlotID: uuid.New(), Date: testutil.Date(t, "2026-10-01"), PartySize: 2})
	if !booking.IsCode(err, booking.CodeSlotNotFound) {
		t.Fatalf("err = %v, want code %s", err, booking.CodeSlotNotFound)
	}
}

func TestCreateInvalidPartySize(t *testing.T) {
	env := newServiceEnv(t, "mutex")
	user := env.seedUser(t)
	slot := env.seedSlot(t, 6)
	date := testutil.Date(t, "2026-10-01")
	ctx := context.Background()

	if _, err := env.svc.InitCapacity(ctx, slot.ID, date, 6); err != nil {
		t.Fatalf("init capacity: %v", err)
	}

	for _, size := range []int{0, -1, 7} {
		_, err := env.svc.Create(ctx, CreateInput{UserID: user.ID, SlotID: slot.ID, Date: date, PartySize: size})
		if !booking.IsCode(err, booking.CodeInvalidPartySize) {
			t.Fatalf("party size %d: err = %v, want code %s", size, err, booking.CodeInvalidPartySize)
		}
	}
	if got := env.remaining(t, slot.ID, date); got != 6 {
		t.Fatalf("invalid input mutated remaining: got %d, want 6", got)
	}
}

func TestCreateSlotDateNotOpened(t *testing.T) {
	env := newServiceEnv(t, "mutex")
	user := env.seedUser(t)
	slot := env.seedSlot(t, 10)

	_, err := env.svc.Create(context.Background(), CreateInput{UserID: user.ID, SlotID: slot.ID, Date: testutil.Date(t, "2026-10-01"), PartySize: 2})
	if !booking.IsCode(err, booking.CodeSlotNotOpened) {
		t.Fatalf("err = %v, want code %s", err, booking.CodeSlotNotOpened)
	}
}

func TestCreateCASRowWithoutCellNotInitialized(t *testing.T) {
	env := newServiceEnv(t, "cas")
	user := env.seedUser(t)
	slot := env.seedSlot(t, 10)
	date := testutil.Date(t, "2026-10-01")
	ctx := context.Background()

	// Capacity row exists but the mirror was never primed, for example after
	// a process restart. Booking must fail loudly instead of lazily creating
	// a cell from nothing.
	testutil.SeedSlotCapacity(t, ctx, env.gdb, slot.ID, date, 10)

	_, err := env.svc.Create(ctx, CreateInput{UserID: user.ID, SlotID: slot.ID, Date: date, PartySize: 2})
	if !booking.IsCode(err, booking.CodeNotInitialized) {
		t.Fatalf("err = %v, want code %s", err, booking.CodeNotInitialized)
	}
}

func TestCreateDuplicateVisit(t *testing.T) {
	env := newServiceEnv(t, "mutex")
	user := env.seedUser(t)
	slot := env.seedSlot(t, 10)
	date := testutil.Date(t, "2026-10-01")
	ctx := context.Background()

	if _, err := env.svc.InitCapacity(ctx, slot.ID, date, 10); err != nil {
		t.Fatalf("init capacity: %v", err)
	}
	if _, err := env.svc.Create(ctx, CreateInput{UserID: user.ID, SlotID: slot.ID, Date: date, PartySize: 2}); err != nil {
		t.Fatalf("first create: %v", err)
	}

	_, err := env.svc.Create(ctx, CreateInput{UserID: user.ID, SlotID: slot.ID, Date: date, PartySize: 2})
	if !booking.IsCode(err, booking.CodeDuplicatedTime) {
		t.Fatalf("err = %v, want code %s", err, booking.CodeDuplicatedTime)
	}
	if got := env.remaining(t, slot.ID, date); got != 8 {
		t.Fatalf("duplicate attempt leaked seats: remaining = %d, want 8", got)
	}
}

func TestCreateCapacityNotEnough(t *testing.T) {
	env := newServiceEnv(t, "optimistic")
	user := env.seedUser(t)
	slot := env.seedSlot(t, 10)
	date := testutil.Date(t, "2026-10-01")
	ctx := context.Background()

	if _, err := env.svc.InitCapacity(ctx, slot.ID, date, 3); err != nil {
		t.Fatalf("init capacity: %v", err)
	}

	_, err := env.svc.Create(ctx, CreateInput{UserID: user.ID, SlotID: slot.ID, Date: date, PartySize: 4})
	if !booking.IsCode(err, booking.CodeCapacityNotEnough) {
		t.Fatalf("err = %v, want code %s", err, booking.CodeCapacityNotEnough)
	}
	var count int64
	if err := env.gdb.Model(&domain.Reservation{}).Where("user_id = ?", user.ID).Count(&count).Error; err != nil {
		t.Fatalf("count reservations: %v", err)
	}
	if count != 0 {
		t.Fatalf("refused booking persisted a reservation")
	}
}

func TestCancelRefundsSeats(t *testing.T) {
	env := newServiceEnv(t, "mutex")
	user := env.seedUser(t)
	slot := env.seedSlot(t, 10)
	date := testutil.Date(t, "2026-10-01")
	ctx := context.Background()

	if _, err := env.svc.InitCapacity(ctx, slot.ID, date, 10); err != nil {
		t.Fatalf("init capacity: %v", err)
	}
	res, err := env.svc.Create(ctx, CreateInput{UserID: user.ID, SlotID: slot.ID, Date: date, PartySize: 4})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if got := env.remaining(t, slot.ID, date); got != 6 {
		t.Fatalf("remaining = %d, want 6", got)
	}

	if err := env.svc.Cancel(ctx, res.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got := env.remaining(t, slot.ID, date); got != 10 {
		t.Fatalf("remaining after cancel = %d, want 10", got)
	}

	err = env.svc.Cancel(ctx, res.ID)
	if !booking.IsCode(err, booking.CodeReservationNotFound) {
		t.Fatalf("second cancel: err = %v, want code %s", err, booking.CodeReservationNotFound)
	}
	if got := env.remaining(t, slot.ID, date); got != 10 {
		t.Fatalf("second cancel refunded again: remaining = %d, want 10", got)
	}
}

func TestCancelThenRebookSameVisit(t *testing.T) {
	env := newServiceEnv(t, "mutex")
	user := env.seedUser(t)
	slot := env.seedSlot(t, 10)
	date := testutil.Date(t, "2026-10-01")
	ctx := context.Background()

	if _, err := env.svc.InitCapacity(ctx, slot.ID, date, 10); err != nil {
		t.Fatalf("init capacity: %v", err)
	}
	res, err := env.svc.Create(ctx, CreateInput{UserID: user.ID, SlotID: slot.ID, Date: date, PartySize: 2})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := env.svc.Cancel(ctx, res.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	// A canceled reservation no longer blocks the visit time.
	if _, err := env.svc.Create(ctx, CreateInput{UserID: user.ID, SlotID: slot.ID, Date: date, PartySize: 2}); err != nil {
		t.Fatalf("rebook after cancel: %v", err)
	}
}

func TestCancelUnknownReservation(t *testing.T) {
	env := newServiceEnv(t, "mutex")

	err := env.svc.Cancel(context.Background(), uuid.New())
	if !booking.IsCode(err, booking.CodeReservationNotFound) {
		t.Fatalf("err = %v, want code %s", err, booking.CodeReservationNotFound)
	}
}

// commitFailRunner runs the callback against a real transaction, then rolls
// back and reports a failure, as a commit lost to the backend would.
type commitFailRunner struct {
	db *gorm.DB
}

func (r commitFailRunner) InTx(ctx context.Context, fn func(dbc dbctx.Context) error) error {
	tx := r.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return tx.Error
	}
	if err := fn(dbctx.Context{Ctx: ctx, Tx: tx}); err != nil {
		tx.Rollback()
		return err
	}
	tx.Rollback()
	return booking.NewError(booking.CodeInternal, "db.tx", "commit failed", nil)
}

// A transaction that fails at commit after the callback succeeded rolls the
// durable writes back; the CAS mirror is not transactional and must get its
// seats back explicitly or it drifts below the store.
func TestCreateCASRefundsOnCommitFailure(t *testing.T) {
	gdb := testutil.DB(t)
	log := testutil.Logger(t)

	caps := bookingrepo.NewSlotCapacityRepo(gdb, log)
	cas := capacity.NewCASStrategy(log, 0)
	t.Cleanup(cas.Clear)

	deps := Deps{
		Users:        userrepo.NewRepo(gdb, log),
		Slots:        bookingrepo.NewSlotRepo(gdb, log),
		Capacities:   caps,
		Reservations: bookingrepo.NewReservationRepo(gdb, log),
		Runner:       db.NewGormTxRunner(gdb),
		Strategy:     cas,
		CAS:          cas,
		Log:          log,
	}
	opener := NewService(deps)

	deps.Runner = commitFailRunner{db: gdb}
	svc := NewService(deps)

	ctx := context.Background()
	user := testutil.SeedUser(t, ctx, gdb, fmt.Sprintf("commit-%s@example.com", uuid.New()))
	slot := testutil.SeedSlot(t, ctx, gdb, 10)
	t.Cleanup(func() {
		gdb.Delete(&domain.Reservation{}, "user_id = ?", user.ID)
		gdb.Delete(&domain.SlotCapacity{}, "slot_id = ?", slot.ID)
		gdb.Delete(&domain.Slot{}, "id = ?", slot.ID)
		gdb.Delete(&domain.User{}, "id = ?", user.ID)
	})
	date := testutil.Date(t, "2026-10-03")
	if _, err := opener.InitCapacity(ctx, slot.ID, date, 10); err != nil {
		t.Fatalf("init capacity: %v", err)
	}

	_, err := svc.Create(ctx, CreateInput{UserID: user.ID, SlotID: slot.ID, Date: date, PartySize: 3})
	if !booking.IsCode(err, booking.CodeInternal) {
		t.Fatalf("err = %v, want code %s", err, booking.CodeInternal)
	}
	if got, _ := cas.Remaining(slot.ID, date); got != 10 {
		t.Fatalf("mirror remaining = %d, want the full 10 back", got)
	}
	var count int64
	if err := gdb.Model(&domain.Reservation{}).Where("user_id = ?", user.ID).Count(&count).Error; err != nil {
		t.Fatalf("count reservations: %v", err)
	}
	if count != 0 {
		t.Fatalf("rolled-back create persisted a reservation")
	}
}

// Oversubscribed burst at the protocol level: distinct users race for fewer
// seats than there are requests. Exactly the seat count must confirm, the
// capacity row must hit zero, and no extra reservation rows may exist.
func TestCreateConcurrentSellout(t *testing.T) {
	for _, strategy := range []string{"mutex", "optimistic", "cas"} {
		t.Run(strategy, func(t *testing.T) {
			env := newServiceEnv(t, strategy)
			slot := env.seedSlot(t, 10)
			date := testutil.Date(t, "2026-10-02")
			ctx := context.Background()

			const seats = 3
			const requests = 6
			if _, err := env.svc.InitCapacity(ctx, slot.ID, date, seats); err != nil {
				t.Fatalf("init capacity: %v", err)
			}

			users := make([]*domain.User, requests)
			for i := range users {
				users[i] = env.seedUser(t)
			}

			var wg sync.WaitGroup
			errs := make(chan error, requests)
			for _, u := range users {
				wg.Add(1)
				go func(userID uuid.UUID) {
					defer wg.Done()
					_, err := env.svc.Create(ctx, CreateInput{UserID: userID, SlotID: slot.ID, Date: date, PartySize: 1})
					errs <- err
				}(u.ID)
			}
			wg.Wait()
			close(errs)

			var ok, refused int
			for err := range errs {
				switch {
				case err == nil:
					ok++
				case booking.IsCode(err, booking.CodeCapacityNotEnough),
					booking.IsCode(err, booking.CodeConcurrency),
					booking.IsCode(err, booking.CodeNotAvailable):
					refused++
				default:
					t.Fatalf("unexpected error: %v", err)
				}
			}
			if ok+refused != requests {
				t.Fatalf("accounted for %d requests, want %d", ok+refused, requests)
			}
			if ok > seats {
				t.Fatalf("confirmed %d reservations for %d seats", ok, seats)
			}

			var count int64
			if err := env.gdb.Model(&domain.Reservation{}).
				Where("slot_id = ? AND status = ?", slot.ID, domain.ReservationConfirmed).
				Count(&count).Error; err != nil {
				t.Fatalf("count reservations: %v", err)
			}
			if int(count) != ok {
				t.Fatalf("reservation rows = %d, confirmed = %d", count, ok)
			}
			if strategy == "cas" {
				if got, _ := env.cas.Remaining(slot.ID, date); got != seats-ok {
					t.Fatalf("cas remaining = %d, want %d", got, seats-ok)
				}
			} else {
				if got := env.remaining(t, slot.ID, date); got != seats-ok {
					t.Fatalf("remaining = %d, want %d", got, seats-ok)
				}
			}
		})
	}
}
