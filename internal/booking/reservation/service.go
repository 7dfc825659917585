// Package reservation implements the reservation-creation protocol: user and
// slot resolution, duplicate-time rejection, capacity decrement through the
// configured strategy, and the durable insert, all under one transaction
// boundary.
package reservation

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/seatbook/seatbook-backend/internal/booking/capacity"
	"github.com/seatbook/seatbook-backend/internal/data/db"
	bookingrepo "github.com/seatbook/seatbook-backend/internal/data/repos/booking"
	userrepo "github.com/seatbook/seatbook-backend/internal/data/repos/user"
	"github.com/seatbook/seatbook-backend/internal/domain"
	"github.com/seatbook/seatbook-backend/internal/domain/booking"
	"github.com/seatbook/seatbook-backend/internal/platform/dbctx"
	"github.com/seatbook/seatbook-backend/internal/platform/logger"
)

type CreateInput struct {
	UserID    uuid.UUID
	SlotID    uuid.UUID
	Date      time.Time
	PartySize int
	Note      string
}

type Deps struct {
	Users        userrepo.Repo
	Slots        bookingrepo.SlotRepo
	Capacities   bookingrepo.SlotCapacityRepo
	Reservations bookingrepo.ReservationRepo
	Runner       db.TxRunner
	Strategy     capacity.Strategy
	// CAS is set when Strategy is the in-memory CAS strategy so that
	// InitCapacity can prime its cell and failed inserts can refund it.
	CAS     *capacity.CASStrategy
	Retrier *Retrier
	Hooks   Hooks
	Log     *logger.Logger
}

type Service struct {
	deps Deps
	seq  *Sequencer
	log  *logger.Logger
}

func NewService(deps Deps) *Service {
	if deps.Hooks == nil {
		deps.Hooks = noopHooks{}
	}
	svc := &Service{
		deps: deps,
		seq:  NewSequencer(),
		log:  deps.Log.With("service", "ReservationService"),
	}
	if deps.Retrier != nil {
		deps.Retrier.onRetry = func(op string, _ int) {
			deps.Hooks.IncConflict(deps.Strategy.Name())
		}
	}
	return svc
}

// Create is the single entry point for reservation creation. Which strategy
// runs underneath is fixed at construction time, not per call.
func (s *Service) Create(ctx context.Context, in CreateInput) (*domain.Reservation, error) {
	const op = "reservation.create"
	start := time.Now()
	seq := s.seq.Next()

	var out *domain.Reservation
	var err error
	if s.deps.Retrier != nil {
		err = s.deps.Retrier.Do(ctx, op, seq, func(attempt int) error {
			r, cerr := s.createOnce(ctx, in, seq, attempt)
			if cerr != nil {
				return cerr
			}
			out = r
			return nil
		})
	} else {
		out, err = s.createOnce(ctx, in, seq, 1)
	}

	s.deps.Hooks.ObserveCreate(s.deps.Strategy.Name(), statusOf(err), time.Since(start))
	return out, err
}

func (s *Service) createOnce(ctx context.Context, in CreateInput, seq uint64, attempt int) (*domain.Reservation, error) {
	const op = "reservation.create"
	s.log.Debug("create attempt",
		"seq", seq,
		"attempt", attempt,
		"user_id", in.UserID,
		"slot_id", in.SlotID,
		"party_size", in.PartySize,
	)

	var created *domain.Reservation
	var casCharged bool
	err := s.inTx(ctx, func(dbc dbctx.Context) error {
		if _, err := s.deps.Users.GetByID(dbc.Ctx, dbc.Tx, in.UserID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return booking.NewError(booking.CodeUserNotFound, op, "user does not exist", err)
			}
			return booking.MapStoreError(op, err)
		}

		slot, err := s.deps.Slots.GetByID(dbc.Ctx, dbc.Tx, in.SlotID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return booking.NewError(booking.CodeSlotNotFound, op, "slot does not exist", err)
			}
			return booking.MapStoreError(op, err)
		}
		if in.PartySize <= 0 || in.PartySize > slot.MaxCapacity {
			return booking.NewError(booking.CodeInvalidPartySize, op, "party size out of range for slot", nil)
		}

		visitAt := domain.VisitAt(in.Date, slot)

		// Fast-fail only; the unique constraint on insert is the
		// authoritative duplicate check.
		exists, err := s.deps.Reservations.ExistsConfirmed(dbc.Ctx, dbc.Tx, in.UserID, visitAt)
		if err != nil {
			return booking.MapStoreError(op, err)
		}
		if exists {
			return booking.NewError(booking.CodeDuplicatedTime, op, "user already holds this visit time", nil)
		}

		if _, err := s.deps.Capacities.GetBySlotDate(dbc.Ctx, dbc.Tx, in.SlotID, in.Date); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return booking.NewError(booking.CodeSlotNotOpened, op, "slot-date not opened for booking", err)
			}
			return booking.MapStoreError(op, err)
		}

		// Strategy failures propagate verbatim.
		if err := s.deps.Strategy.Decrease(dbc, in.SlotID, in.Date, in.PartySize); err != nil {
			return err
		}
		casCharged = s.deps.CAS != nil

		res := &domain.Reservation{
			ID:        uuid.New(),
			UserID:    in.UserID,
			SlotID:    in.SlotID,
			VisitAt:   visitAt,
			PartySize: in.PartySize,
			Status:    domain.ReservationConfirmed,
			Note:      in.Note,
			Metadata:  datatypes.JSON([]byte("{}")),
		}
		if err := s.deps.Reservations.Create(dbc.Ctx, dbc.Tx, res); err != nil {
			// DB-backed strategies roll back with the transaction; the
			// CAS mirror is not transactional and needs an explicit
			// refund.
			if s.deps.CAS != nil {
				if ierr := s.deps.CAS.Increase(dbc, in.SlotID, in.Date, in.PartySize); ierr != nil {
					s.log.Warn("cas refund after failed insert", "seq", seq, "error", ierr)
				}
				casCharged = false
			}
			if booking.CodeOf(err) != "" {
				return err
			}
			return booking.MapStoreError(op, err)
		}
		created = res
		return nil
	})
	if err != nil {
		// The mirror is best-effort, but a decrement whose transaction never
		// committed (commit failure after the callback returned nil) would
		// drift it below the durable truth.
		if casCharged {
			if ierr := s.deps.CAS.Increase(dbctx.Context{Ctx: ctx}, in.SlotID, in.Date, in.PartySize); ierr != nil {
				s.log.Warn("cas refund after failed transaction", "seq", seq, "error", ierr)
			}
		}
		return nil, err
	}
	return created, nil
}

// inTx runs fn in one transaction, inside the strategy's critical section
// when it has one. For the mutex strategy the commit must land before the
// lock is released or a later reader sees the pre-decrement count.
func (s *Service) inTx(ctx context.Context, fn func(dbc dbctx.Context) error) error {
	run := func() error { return s.deps.Runner.InTx(ctx, fn) }
	if ser, ok := s.deps.Strategy.(capacity.TxSerializer); ok {
		return ser.Serialize(run)
	}
	return run()
}

// InitCapacity opens a slot-date for booking. The persistent row wins on
// repeat calls; the CAS mirror, when active, is primed from the stored value.
func (s *Service) InitCapacity(ctx context.Context, slotID uuid.UUID, date time.Time, initialRemaining int) (*domain.SlotCapacity, error) {
	const op = "reservation.init_capacity"
	if initialRemaining < 0 {
		return nil, booking.NewError(booking.CodeInvalidInput, op, "initial remaining must not be negative", nil)
	}

	var row *domain.SlotCapacity
	err := s.deps.Runner.InTx(ctx, func(dbc dbctx.Context) error {
		if _, err := s.deps.Slots.GetByID(dbc.Ctx, dbc.Tx, slotID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return booking.NewError(booking.CodeSlotNotFound, op, "slot does not exist", err)
			}
			return booking.MapStoreError(op, err)
		}

		fresh := &domain.SlotCapacity{
			ID:             uuid.New(),
			SlotID:         slotID,
			Date:           domain.DateOnly(date),
			RemainingCount: initialRemaining,
			MaxCount:       initialRemaining,
		}
		created, err := s.deps.Capacities.Open(dbc.Ctx, dbc.Tx, fresh)
		if err != nil {
			return booking.MapStoreError(op, err)
		}
		if created {
			row = fresh
			return nil
		}
		existing, err := s.deps.Capacities.GetBySlotDate(dbc.Ctx, dbc.Tx, slotID, date)
		if err != nil {
			return booking.MapStoreError(op, err)
		}
		row = existing
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.deps.CAS != nil {
		s.deps.CAS.Init(slotID, date, row.RemainingCount)
	}
	s.deps.Hooks.SetRemaining(slotDateLabel(slotID, date), float64(row.RemainingCount))
	s.log.Info("slot-date opened", "slot_id", slotID, "date", domain.DateOnly(date), "remaining", row.RemainingCount)
	return row, nil
}

// Cancel flips a confirmed reservation to canceled and returns its seats to
// the pool through the same strategy, preserving the ledger invariant.
func (s *Service) Cancel(ctx context.Context, reservationID uuid.UUID) error {
	const op = "reservation.cancel"
	seq := s.seq.Next()

	fn := func(attempt int) error { return s.cancelOnce(ctx, reservationID, seq, attempt) }
	if s.deps.Retrier != nil {
		return s.deps.Retrier.Do(ctx, op, seq, fn)
	}
	return fn(1)
}

func (s *Service) cancelOnce(ctx context.Context, reservationID uuid.UUID, seq uint64, attempt int) error {
	const op = "reservation.cancel"
	s.log.Debug("cancel attempt", "seq", seq, "attempt", attempt, "reservation_id", reservationID)

	return s.inTx(ctx, func(dbc dbctx.Context) error {
		res, err := s.deps.Reservations.GetByID(dbc.Ctx, dbc.Tx, reservationID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return booking.NewError(booking.CodeReservationNotFound, op, "reservation does not exist", err)
			}
			return booking.MapStoreError(op, err)
		}
		ok, err := s.deps.Reservations.MarkCanceled(dbc.Ctx, dbc.Tx, res.ID)
		if err != nil {
			return booking.MapStoreError(op, err)
		}
		if !ok {
			return booking.NewError(booking.CodeReservationNotFound, op, "reservation already canceled", nil)
		}
		return s.deps.Strategy.Increase(dbc, res.SlotID, domain.DateOnly(res.VisitAt), res.PartySize)
	})
}

func statusOf(err error) string {
	if err == nil {
		return "success"
	}
	if code := booking.CodeOf(err); code != "" {
		return string(code)
	}
	return "failure"
}

func slotDateLabel(slotID uuid.UUID, date time.Time) string {
	return slotID.String() + ":" + domain.DateOnly(date).Format("2006-01-02")
}
