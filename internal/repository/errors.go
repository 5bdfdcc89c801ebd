// Package repository holds the MySQL implementations of the event, ticket,
// user and refresh token stores.  Sentinel errors defined here let the
// service layer tell "row missing" apart from "row present but the
// conditional write was refused" without inspecting driver errors.
package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

// ErrEventNotFound is returned when no event row matches the id.
var ErrEventNotFound = errors.New("event not found")

// ErrTicketNotFound is returned when no ticket row matches the id.
var ErrTicketNotFound = errors.New("ticket not found")

// ErrSeatsUnavailable is returned by DecrementSeats when the event exists
// but has fewer available seats than requested, and by IncrementSeats when
// giving seats back would exceed the event's capacity.
var ErrSeatsUnavailable = errors.New("seats unavailable")

// ErrConflict is returned when a delete or insert cannot be performed
// because of conflicting state, such as deleting an event with sold seats
// or reusing a unique key.
var ErrConflict = errors.New("conflict")

// ErrRetryable marks failures where repeating the whole unit of work is
// expected to succeed: InnoDB deadlocks and lock wait timeouts.
var ErrRetryable = errors.New("retryable storage failure")

// MySQL server error numbers the repositories react to.
const (
	errDupEntry        = 1062
	errLockWaitTimeout = 1205
	errDeadlock        = 1213
	errRowIsReferenced = 1451
)

func mysqlCode(err error) uint16 {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number
	}
	return 0
}

// classify wraps driver errors that callers branch on.  Anything else is
// returned untouched.
func classify(err error) error {
	if err == nil {
		return nil
	}
	switch mysqlCode(err) {
	case errDeadlock, errLockWaitTimeout:
		return errors.Join(ErrRetryable, err)
	case errDupEntry, errRowIsReferenced:
		return errors.Join(ErrConflict, err)
	}
	return err
}
