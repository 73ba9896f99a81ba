package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/armyboard/connection-service/internal/model"
	"github.com/armyboard/connection-service/internal/service"
)

// Store bundles the repositories behind the service.Store interface.  Each
// InTx call opens one MySQL transaction and binds the Tx-suffixed
// repository methods to it.
type Store struct {
	db             *sql.DB
	ConnectionRepo *ConnectionRepo
	ListingRepo    *ListingRepo
	BondingRepo    *BondingRepo
	ProfileRepo    *ProfileRepo
}

var _ service.Store = (*Store)(nil)

// NewStore wires every repository to db.
func NewStore(db *sql.DB) *Store {
	return &Store{
		db:             db,
		ConnectionRepo: NewConnectionRepo(db),
		ListingRepo:    NewListingRepo(db),
		BondingRepo:    NewBondingRepo(db),
		ProfileRepo:    NewProfileRepo(db),
	}
}

// InTx runs fn inside a transaction.  The transaction is rolled back
// unless fn returns nil and the commit succeeds.
func (s *Store) InTx(ctx context.Context, fn func(service.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(&storeTx{s: s, tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

func (s *Store) Connection(ctx context.Context, id uint64) (model.Connection, error) {
	return s.ConnectionRepo.GetByID(ctx, id)
}

func (s *Store) ConnectionsByUser(ctx context.Context, userID uint64, limit int) ([]model.Connection, error) {
	return s.ConnectionRepo.ListByUser(ctx, userID, limit)
}

func (s *Store) DueForExpiry(ctx context.Context, now time.Time, limit int) ([]uint64, error) {
	return s.ConnectionRepo.DueForExpiry(ctx, now, limit)
}

func (s *Store) Listing(ctx context.Context, id uint64) (model.Listing, error) {
	return s.ListingRepo.GetByID(ctx, id)
}

func (s *Store) PickQuestions(ctx context.Context, n int) ([]uint64, error) {
	return s.BondingRepo.PickQuestions(ctx, n)
}

func (s *Store) Questions(ctx context.Context, ids []uint64) (map[uint64]model.BondingQuestion, error) {
	return s.BondingRepo.QuestionsByIDs(ctx, ids)
}

func (s *Store) Answers(ctx context.Context, connectionID uint64) ([]model.BondingAnswer, error) {
	return s.BondingRepo.AnswersByConnection(ctx, connectionID)
}

func (s *Store) Profiles(ctx context.Context, userIDs ...uint64) (map[uint64]model.Profile, error) {
	return s.ProfileRepo.GetByUserIDs(ctx, userIDs...)
}

type storeTx struct {
	s  *Store
	tx *sql.Tx
}

func (t *storeTx) ConnectionForUpdate(ctx context.Context, id uint64) (model.Connection, error) {
	return t.s.ConnectionRepo.GetForUpdateTx(ctx, t.tx, id)
}

func (t *storeTx) InsertConnection(ctx context.Context, c *model.Connection) error {
	return t.s.ConnectionRepo.CreateTx(ctx, t.tx, c)
}

func (t *storeTx) UpdateConnection(ctx context.Context, c *model.Connection) error {
	return t.s.ConnectionRepo.UpdateTx(ctx, t.tx, c)
}

func (t *storeTx) ListingForUpdate(ctx context.Context, id uint64) (model.Listing, error) {
	return t.s.ListingRepo.GetForUpdateTx(ctx, t.tx, id)
}

func (t *storeTx) LockListing(ctx context.Context, listingID, connectionID uint64) error {
	return t.s.ListingRepo.LockTx(ctx, t.tx, listingID, connectionID)
}

func (t *storeTx) UnlockListing(ctx context.Context, listingID, connectionID uint64) error {
	return t.s.ListingRepo.UnlockTx(ctx, t.tx, listingID, connectionID)
}

func (t *storeTx) InsertAnswers(ctx context.Context, answers []model.BondingAnswer) error {
	return t.s.BondingRepo.InsertAnswersTx(ctx, t.tx, answers)
}
