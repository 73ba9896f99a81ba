package service

import (
	"context"
	"time"

	"github.com/armyboard/connection-service/internal/connection"
	"github.com/armyboard/connection-service/internal/model"
)

// Tx is the set of writes one connection action may perform.  All of them
// run in the same database transaction.
type Tx interface {
	ConnectionForUpdate(ctx context.Context, id uint64) (model.Connection, error)
	InsertConnection(ctx context.Context, c *model.Connection) error
	UpdateConnection(ctx context.Context, c *model.Connection) error
	ListingForUpdate(ctx context.Context, id uint64) (model.Listing, error)
	LockListing(ctx context.Context, listingID, connectionID uint64) error
	UnlockListing(ctx context.Context, listingID, connectionID uint64) error
	InsertAnswers(ctx context.Context, answers []model.BondingAnswer) error
}

// Store is the persistence the service needs.  InTx commits when fn
// returns nil and rolls back otherwise.
type Store interface {
	InTx(ctx context.Context, fn func(Tx) error) error

	Connection(ctx context.Context, id uint64) (model.Connection, error)
	ConnectionsByUser(ctx context.Context, userID uint64, limit int) ([]model.Connection, error)
	DueForExpiry(ctx context.Context, now time.Time, limit int) ([]uint64, error)
	Listing(ctx context.Context, id uint64) (model.Listing, error)
	PickQuestions(ctx context.Context, n int) ([]uint64, error)
	Questions(ctx context.Context, ids []uint64) (map[uint64]model.BondingQuestion, error)
	Answers(ctx context.Context, connectionID uint64) ([]model.BondingAnswer, error)
	Profiles(ctx context.Context, userIDs ...uint64) (map[uint64]model.Profile, error)
}

// Publisher hands engine events to the notification dispatcher.
type Publisher interface {
	Publish(ctx context.Context, events []connection.Event) error
}
