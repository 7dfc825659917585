package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	ReservationConfirmed = "confirmed"
	ReservationCanceled  = "canceled"
)

type User struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Email       string    `gorm:"uniqueIndex;not null;column:email" json:"email"`
	DisplayName string    `gorm:"not null;column:display_name" json:"display_name"`
	CreatedAt   time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time `gorm:"not null" json:"updated_at"`
}

func (User) TableName() string { return "users" }

// Slot is a recurring time-of-day booking opportunity, independent of date.
type Slot struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name        string    `gorm:"not null;column:name" json:"name"`
	StartHour   int       `gorm:"not null;column:start_hour" json:"start_hour"`
	StartMinute int       `gorm:"not null;column:start_minute" json:"start_minute"`
	MaxCapacity int       `gorm:"not null;column:max_capacity" json:"max_capacity"`
	CreatedAt   time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time `gorm:"not null" json:"updated_at"`
}

func (Slot) TableName() string { return "slots" }

// SlotCapacity is the persisted remaining-seats counter for one (slot, date)
// pool. Version is bumped by the store on every successful mutation and is the
// compare-and-set handle for the optimistic strategy.
type SlotCapacity struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	SlotID         uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_slot_capacities_slot_date" json:"slot_id"`
	Date           time.Time `gorm:"not null;uniqueIndex:idx_slot_capacities_slot_date" json:"date"`
	RemainingCount int       `gorm:"not null;column:remaining_count" json:"remaining_count"`
	MaxCount       int       `gorm:"not null;column:max_count" json:"max_count"`
	Version        int       `gorm:"not null;default:0;column:version" json:"version"`
	CreatedAt      time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time `gorm:"not null" json:"updated_at"`
}

func (SlotCapacity) TableName() string { return "slot_capacities" }

type Reservation struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_reservations_user_visit_confirmed,where:status = 'confirmed'" json:"user_id"`
	SlotID    uuid.UUID      `gorm:"type:uuid;not null" json:"slot_id"`
	VisitAt   time.Time      `gorm:"not null;uniqueIndex:idx_reservations_user_visit_confirmed,where:status = 'confirmed'" json:"visit_at"`
	PartySize int            `gorm:"not null;column:party_size" json:"party_size"`
	Status    string         `gorm:"not null;default:'confirmed';column:status" json:"status"`
	Note      string         `gorm:"column:note" json:"note"`
	Metadata  datatypes.JSON `gorm:"column:metadata" json:"metadata"`
	CreatedAt time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null" json:"updated_at"`
}

func (Reservation) TableName() string { return "reservations" }

// DateOnly normalizes t to midnight UTC so slot-date keys compare equal
// regardless of the caller's wall clock or zone.
func DateOnly(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// VisitAt combines a booking date with a slot's time of day.
func VisitAt(date time.Time, slot *Slot) time.Time {
	d := DateOnly(date)
	return d.Add(time.Duration(slot.StartHour)*time.Hour + time.Duration(slot.StartMinute)*time.Minute)
}
