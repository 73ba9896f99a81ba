// Package repository implements MySQL persistence for connections,
// listings, bonding questions/answers and profiles.  Sentinel errors are
// shared with the connection package so services and handlers can match
// them with errors.Is regardless of which store produced them.
package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"

	"github.com/armyboard/connection-service/internal/connection"
)

var (
	// ErrNotFound is returned when a connection or listing row is missing.
	ErrNotFound = connection.ErrNotFound

	// ErrVersionConflict is returned when an update matched no row
	// because the version moved.
	ErrVersionConflict = connection.ErrConcurrentUpdate

	// ErrListingLocked is returned when a lock cannot be taken because the
	// listing is inactive or already locked by another connection.
	ErrListingLocked = connection.ErrListingUnavailable

	// ErrDuplicate is returned when a unique key rejects a second write of
	// the same party answer.
	ErrDuplicate = connection.ErrAlreadySubmitted
)

// isDuplicateKey reports whether err is MySQL error 1062.
func isDuplicateKey(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == 1062
}
