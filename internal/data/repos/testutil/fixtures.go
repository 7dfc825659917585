package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/seatbook/seatbook-backend/internal/domain"
)

func SeedUser(tb testing.TB, ctx context.Context, tx *gorm.DB, email string) *domain.User {
	tb.Helper()
	u := &domain.User{
		ID:          uuid.New(),
		Email:       email,
		DisplayName: "guest",
	}
	if err := tx.WithContext(ctx).Create(u).Error; err != nil {
		tb.Fatalf("seed user: %v", err)
	}
	return u
}

func SeedSlot(tb testing.TB, ctx context.Context, tx *gorm.DB, maxCapacity int) *domain.Slot {
	tb.Helper()
	s := &domain.Slot{
		ID:          uuid.New(),
		Name:        "dinner 19:00",
		StartHour:   19,
		StartMinute: 0,
		MaxCapacity: maxCapacity,
	}
	if err := tx.WithContext(ctx).Create(s).Error; err != nil {
		tb.Fatalf("seed slot: %v", err)
	}
	return s
}

func SeedSlotCapacity(tb testing.TB, ctx context.Context, tx *gorm.DB, slotID uuid.UUID, date time.Time, remaining int) *domain.SlotCapacity {
	tb.Helper()
	c := &domain.SlotCapacity{
		ID:             uuid.New(),
		SlotID:         slotID,
		Date:           domain.DateOnly(date),
		RemainingCount: remaining,
		MaxCount:       remaining,
	}
	if err := tx.WithContext(ctx).Create(c).Error; err != nil {
		tb.Fatalf("seed slot capacity: %v", err)
	}
	return c
}

func SeedReservation(tb testing.TB, ctx context.Context, tx *gorm.DB, userID, slotID uuid.UUID, visitAt time.Time, partySize int) *domain.Reservation {
	tb.Helper()
	r := &domain.Reservation{
		ID:        uuid.New(),
		UserID:    userID,
		SlotID:    slotID,
		VisitAt:   visitAt,
		PartySize: partySize,
		Status:    domain.ReservationConfirmed,
		Metadata:  datatypes.JSON([]byte("{}")),
	}
	if err := tx.WithContext(ctx).Create(r).Error; err != nil {
		tb.Fatalf("seed reservation: %v", err)
	}
	return r
}

func Date(tb testing.TB, value string) time.Time {
	tb.Helper()
	d, err := time.Parse("2006-01-02", value)
	if err != nil {
		tb.Fatalf("parse date %q: %v", value, err)
	}
	return d
}
