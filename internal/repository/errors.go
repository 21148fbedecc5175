// Package repository defines error types that are reused across multiple
// repositories.  These sentinel values let handlers distinguish failure
// scenarios without inspecting SQL errors: ErrNotFound covers a missing
// or invisible case, ErrForbidden an actor operating on somebody else's
// resource, and ErrConflict a precondition that no longer holds (claim
// lost, transition not allowed, duplicate idempotency key).
package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when a row does not exist or the caller is not
// allowed to see it.  Handlers translate this into HTTP 404.
var ErrNotFound = errors.New("not found")

// ErrForbidden is returned when the caller attempts an operation on a
// resource they do not own.  Handlers translate this into HTTP 403.
var ErrForbidden = errors.New("forbidden")

// ErrConflict is returned when an operation cannot proceed because its
// precondition failed against current state.  Handlers translate this
// into HTTP 409 alongside the authoritative state.
var ErrConflict = errors.New("conflict")

// isDuplicateKey reports whether err is the MySQL duplicate-entry error
// (1062).  Used to map unique-constraint races onto ErrConflict.
func isDuplicateKey(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == 1062
}
