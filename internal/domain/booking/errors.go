// Package booking defines the failure taxonomy shared by the capacity
// strategies and the reservation creation protocol.
//
// Codes fall into four classes: input errors (invalid_input,
// invalid_party_size), business rejections (user_not_found, slot_not_found,
// slot_not_opened, capacity_not_enough, duplicated_time,
// reservation_not_found), liveness failures (not_available, concurrency) and
// the transient version_conflict signal that only the retry facade is allowed
// to convert into something else.
package booking

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// ErrorCode standardizes booking failure semantics across strategies.
type ErrorCode string

const (
	CodeInvalidInput        ErrorCode = "invalid_input"
	CodeInvalidPartySize    ErrorCode = "invalid_party_size"
	CodeUserNotFound        ErrorCode = "user_not_found"
	CodeSlotNotFound        ErrorCode = "slot_not_found"
	CodeSlotNotOpened       ErrorCode = "slot_not_opened"
	CodeCapacityNotEnough   ErrorCode = "capacity_not_enough"
	CodeDuplicatedTime      ErrorCode = "duplicated_time"
	CodeReservationNotFound ErrorCode = "reservation_not_found"
	CodeNotInitialized      ErrorCode = "not_initialized"
	CodeNotAvailable        ErrorCode = "not_available"
	CodeVersionConflict     ErrorCode = "version_conflict"
	CodeConcurrency         ErrorCode = "concurrency"
	CodeInternal            ErrorCode = "internal"
)

// Error is the canonical booking error wrapper.
type Error struct {
	Code    ErrorCode
	Op      string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	op := strings.TrimSpace(e.Op)
	msg := strings.TrimSpace(e.Message)
	switch {
	case op != "" && msg != "":
		return fmt.Sprintf("%s: %s (%s)", op, msg, e.Code)
	case op != "":
		return fmt.Sprintf("%s (%s)", op, e.Code)
	case msg != "":
		return fmt.Sprintf("%s (%s)", msg, e.Code)
	default:
		return string(e.Code)
	}
}

func (e *Error) Unwrap() error { return e.Cause }

// NewError builds a booking error with explicit code + operation.
func NewError(code ErrorCode, op, message string, cause error) error {
	return &Error{
		Code:    code,
		Op:      strings.TrimSpace(op),
		Message: strings.TrimSpace(message),
		Cause:   cause,
	}
}

// Wrap tags an underlying error with a code and operation.
func Wrap(code ErrorCode, op string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return &Error{Code: code, Op: strings.TrimSpace(op), Message: msg, Cause: cause}
}

// CodeOf extracts the booking error code, or "" for foreign errors.
func CodeOf(err error) ErrorCode {
	var be *Error
	if errors.As(err, &be) {
		return be.Code
	}
	return ""
}

// IsCode reports whether err carries the given booking code.
func IsCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}

// Retryable is the classification predicate used by the optimistic-retry
// facade. Only a version conflict is worth another attempt; every business
// rejection is a legitimate outcome that retrying cannot change.
func Retryable(err error) bool {
	return IsCode(err, CodeVersionConflict)
}

// IsUniqueViolation detects a store-level uniqueness rejection. Postgres
// reports SQLSTATE 23505 through pgconn; the sqlite driver used in tests only
// surfaces a message, so a string fallback is kept alongside.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return strings.TrimSpace(pgErr.Code) == "23505"
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "unique constraint")
}

// MapStoreError translates infrastructure failures into the taxonomy. It is
// called at exactly one place per write path; strategies and repos otherwise
// pass errors through unchanged.
func MapStoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	var be *Error
	if errors.As(err, &be) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch strings.TrimSpace(pgErr.Code) {
		case "23505":
			return Wrap(CodeDuplicatedTime, op, err) // unique_violation
		case "40001", "40P01", "55P03":
			return Wrap(CodeVersionConflict, op, err) // serialization/deadlock/lock_not_available
		}
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "duplicate key"), strings.Contains(msg, "unique constraint"):
		return Wrap(CodeDuplicatedTime, op, err)
	case strings.Contains(msg, "deadlock"),
		strings.Contains(msg, "serialization"),
		strings.Contains(msg, "database is locked"):
		return Wrap(CodeVersionConflict, op, err)
	default:
		return Wrap(CodeInternal, op, err)
	}
}
