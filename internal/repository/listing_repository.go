package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/armyboard/connection-service/internal/model"
)

// ListingRepo reads listings and flips their lock column.  Listing CRUD
// belongs to the marketplace; nothing here creates or edits listings.
type ListingRepo struct {
	db *sql.DB
}

// NewListingRepo returns a ListingRepo bound to db.
func NewListingRepo(db *sql.DB) *ListingRepo { return &ListingRepo{db: db} }

const listingColumns = `id, kind, seller_id, title, status, locked_by_connection_id, created_at`

func scanListing(row rowScanner) (model.Listing, error) {
	var (
		l      model.Listing
		kind   string
		locked sql.NullInt64
	)
	err := row.Scan(&l.ID, &kind, &l.SellerID, &l.Title, &l.Status, &locked, &l.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return l, ErrNotFound
	}
	if err != nil {
		return l, err
	}
	if l.Kind, err = model.ParseKind(kind); err != nil {
		return l, err
	}
	if locked.Valid {
		id := uint64(locked.Int64)
		l.LockedByConnectionID = &id
	}
	return l, nil
}

// GetByID loads a listing without locking.
func (r *ListingRepo) GetByID(ctx context.Context, id uint64) (model.Listing, error) {
	return scanListing(r.db.QueryRowContext(ctx, `SELECT `+listingColumns+` FROM listings WHERE id = ?`, id))
}

// GetForUpdateTx loads a listing and holds its row lock until tx ends so
// two buyers cannot both pass the availability check.
func (r *ListingRepo) GetForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (model.Listing, error) {
	return scanListing(tx.QueryRowContext(ctx, `SELECT `+listingColumns+` FROM listings WHERE id = ? FOR UPDATE`, id))
}

// LockTx marks the listing as held by connectionID.  It only succeeds on
// an active, unlocked listing; otherwise ErrListingLocked is returned.
func (r *ListingRepo) LockTx(ctx context.Context, tx *sql.Tx, listingID, connectionID uint64) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE listings SET locked_by_connection_id = ?
		 WHERE id = ? AND status = ? AND locked_by_connection_id IS NULL`,
		connectionID, listingID, model.ListingActive)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrListingLocked
	}
	return nil
}

// UnlockTx clears the lock if, and only if, connectionID holds it.
// Releasing a lock held by someone else is a no-op.
func (r *ListingRepo) UnlockTx(ctx context.Context, tx *sql.Tx, listingID, connectionID uint64) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE listings SET locked_by_connection_id = NULL WHERE id = ? AND locked_by_connection_id = ?`,
		listingID, connectionID)
	return err
}
