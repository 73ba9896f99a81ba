package connection

import "errors"

// Sentinel errors returned by the guard, the engine and the service.
// Handlers translate them into HTTP statuses and a single flat message.
var (
	// ErrNotAuthorized: the actor is not a participant, or their role may
	// not perform the action in the current stage.
	ErrNotAuthorized = errors.New("not authorized for this connection")

	// ErrStageClosed: the action is not valid in the current, terminal or
	// expired stage.
	ErrStageClosed = errors.New("this step is closed")

	// ErrValidation wraps payload problems (answer count, empty text,
	// rating out of range).
	ErrValidation = errors.New("invalid request")

	// ErrAlreadySubmitted: the party already recorded a value for this gate.
	ErrAlreadySubmitted = errors.New("already submitted")

	// ErrNotFound: unknown connection or listing id.
	ErrNotFound = errors.New("not found")

	// ErrConflictExpired: the deadline had lapsed when the action arrived.
	// The connection has been moved to expired.
	ErrConflictExpired = errors.New("connection expired")

	// ErrListingUnavailable: the listing is not active or another
	// connection holds its lock.
	ErrListingUnavailable = errors.New("listing is not available")

	// ErrConcurrentUpdate: the row changed between read and write.
	ErrConcurrentUpdate = errors.New("connection was modified concurrently")
)
