package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/armyboard/connection-service/internal/model"
)

// ConnectionRepo provides data access to the connections table.  Every
// mutating call runs inside a caller-supplied transaction; the caller is
// responsible for committing or rolling back.  All timestamps are UTC.
type ConnectionRepo struct {
	db *sql.DB
}

// NewConnectionRepo returns a ConnectionRepo bound to db.
func NewConnectionRepo(db *sql.DB) *ConnectionRepo { return &ConnectionRepo{db: db} }

const connectionColumns = `id, kind, listing_id, buyer_id, seller_id, stage, stage_started_at, stage_expires_at,
       bonding_question_ids, buyer_bonding_submitted_at, seller_bonding_submitted_at,
       buyer_comfort, seller_comfort, buyer_social_share, seller_social_share,
       buyer_share_pref, seller_share_pref, buyer_agreed, seller_agreed, buyer_rating, seller_rating,
       ended_by, ended_at, stage_before_ended, end_reason, created_at, updated_at, version`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConnection(row rowScanner) (model.Connection, error) {
	var (
		c                                model.Connection
		kind, stage                      string
		expiresAt, buyerBond, sellerBond sql.NullTime
		questionIDs                      []byte
		buyerComfort, sellerComfort      sql.NullBool
		buyerShare, sellerShare          sql.NullBool
		buyerPref, sellerPref            sql.NullBool
		buyerRating, sellerRating        sql.NullInt32
		endedBy, beforeEnded, reason     sql.NullString
		endedAt                          sql.NullTime
	)
	err := row.Scan(&c.ID, &kind, &c.ListingID, &c.BuyerID, &c.SellerID, &stage, &c.StageStartedAt, &expiresAt,
		&questionIDs, &buyerBond, &sellerBond,
		&buyerComfort, &sellerComfort, &buyerShare, &sellerShare, &buyerPref, &sellerPref,
		&c.BuyerAgreed, &c.SellerAgreed, &buyerRating, &sellerRating,
		&endedBy, &endedAt, &beforeEnded, &reason, &c.CreatedAt, &c.UpdatedAt, &c.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return c, ErrNotFound
	}
	if err != nil {
		return c, err
	}
	if c.Kind, err = model.ParseKind(kind); err != nil {
		return c, err
	}
	if c.Stage, err = model.ParseStage(stage); err != nil {
		return c, err
	}
	if len(questionIDs) > 0 {
		if err := json.Unmarshal(questionIDs, &c.BondingQuestionIDs); err != nil {
			return c, fmt.Errorf("decode bonding_question_ids: %w", err)
		}
	}
	c.StageExpiresAt = timePtr(expiresAt)
	c.BuyerBondingSubmittedAt = timePtr(buyerBond)
	c.SellerBondingSubmittedAt = timePtr(sellerBond)
	c.BuyerComfort = boolPtr(buyerComfort)
	c.SellerComfort = boolPtr(sellerComfort)
	c.BuyerSocialShare = boolPtr(buyerShare)
	c.SellerSocialShare = boolPtr(sellerShare)
	c.BuyerSharePreference = boolPtr(buyerPref)
	c.SellerSharePreference = boolPtr(sellerPref)
	c.BuyerRating = intPtr(buyerRating)
	c.SellerRating = intPtr(sellerRating)
	c.EndedAt = timePtr(endedAt)
	c.EndedBy = model.Role(endedBy.String)
	if beforeEnded.Valid && beforeEnded.String != "" {
		if c.StageBeforeEnded, err = model.ParseStage(beforeEnded.String); err != nil {
			return c, err
		}
	}
	c.EndReason = reason.String
	return c, nil
}

// GetByID loads a connection without locking it.
func (r *ConnectionRepo) GetByID(ctx context.Context, id uint64) (model.Connection, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+connectionColumns+` FROM connections WHERE id = ?`, id)
	return scanConnection(row)
}

// GetForUpdateTx loads a connection and holds its row lock until tx ends,
// serializing concurrent actions on the same connection.
func (r *ConnectionRepo) GetForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (model.Connection, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+connectionColumns+` FROM connections WHERE id = ? FOR UPDATE`, id)
	return scanConnection(row)
}

// CreateTx inserts c and populates its generated ID and version.
func (r *ConnectionRepo) CreateTx(ctx context.Context, tx *sql.Tx, c *model.Connection) error {
	qids, err := encodeIDs(c.BondingQuestionIDs)
	if err != nil {
		return err
	}
	const q = `INSERT INTO connections (kind, listing_id, buyer_id, seller_id, stage, stage_started_at, stage_expires_at,
	           bonding_question_ids, buyer_bonding_submitted_at, buyer_share_pref, created_at, updated_at, version)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`
	res, err := tx.ExecContext(ctx, q,
		string(c.Kind), c.ListingID, c.BuyerID, c.SellerID, string(c.Stage), utc(c.StageStartedAt), nullTime(c.StageExpiresAt),
		qids, nullTime(c.BuyerBondingSubmittedAt), nullBool(c.BuyerSharePreference), utc(c.CreatedAt), utc(c.UpdatedAt))
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	c.ID = uint64(id)
	c.Version = 1
	return nil
}

// UpdateTx writes every mutable column of c, guarded by c.Version.  On
// success c.Version is incremented.  A stale version yields
// ErrVersionConflict and writes nothing.
func (r *ConnectionRepo) UpdateTx(ctx context.Context, tx *sql.Tx, c *model.Connection) error {
	qids, err := encodeIDs(c.BondingQuestionIDs)
	if err != nil {
		return err
	}
	var endedBy, beforeEnded any
	if c.EndedBy != model.RoleNone {
		endedBy = string(c.EndedBy)
	}
	if c.StageBeforeEnded != "" {
		beforeEnded = string(c.StageBeforeEnded)
	}
	const q = `UPDATE connections SET
	           stage = ?, stage_started_at = ?, stage_expires_at = ?, bonding_question_ids = ?,
	           buyer_bonding_submitted_at = ?, seller_bonding_submitted_at = ?,
	           buyer_comfort = ?, seller_comfort = ?, buyer_social_share = ?, seller_social_share = ?,
	           seller_share_pref = ?, buyer_agreed = ?, seller_agreed = ?, buyer_rating = ?, seller_rating = ?,
	           ended_by = ?, ended_at = ?, stage_before_ended = ?, end_reason = ?,
	           updated_at = ?, version = version + 1
	           WHERE id = ? AND version = ?`
	res, err := tx.ExecContext(ctx, q,
		string(c.Stage), utc(c.StageStartedAt), nullTime(c.StageExpiresAt), qids,
		nullTime(c.BuyerBondingSubmittedAt), nullTime(c.SellerBondingSubmittedAt),
		nullBool(c.BuyerComfort), nullBool(c.SellerComfort), nullBool(c.BuyerSocialShare), nullBool(c.SellerSocialShare),
		nullBool(c.SellerSharePreference), c.BuyerAgreed, c.SellerAgreed, nullInt(c.BuyerRating), nullInt(c.SellerRating),
		endedBy, nullTime(c.EndedAt), beforeEnded, nullString(c.EndReason),
		utc(c.UpdatedAt), c.ID, c.Version)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrVersionConflict
	}
	c.Version++
	return nil
}

// ListByUser returns the most recent connections where userID is buyer or
// seller, newest first.
func (r *ConnectionRepo) ListByUser(ctx context.Context, userID uint64, limit int) ([]model.Connection, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+connectionColumns+` FROM connections WHERE buyer_id = ? OR seller_id = ? ORDER BY updated_at DESC, id DESC LIMIT ?`,
		userID, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Connection
	for rows.Next() {
		c, err := scanConnection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DueForExpiry returns ids of connections whose stage deadline passed
// before now and that are not yet terminal or in chat.
func (r *ConnectionRepo) DueForExpiry(ctx context.Context, now time.Time, limit int) ([]uint64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id FROM connections
		 WHERE stage NOT IN ('chat_open', 'ended', 'expired', 'declined')
		   AND stage_expires_at IS NOT NULL AND stage_expires_at < ?
		 ORDER BY stage_expires_at LIMIT ?`,
		utc(now), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func encodeIDs(ids []uint64) (any, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(ids)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func utc(t time.Time) time.Time { return t.UTC() }

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func nullBool(b *bool) sql.NullBool {
	if b == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *b, Valid: true}
}

func nullInt(i *int) sql.NullInt32 {
	if i == nil {
		return sql.NullInt32{}
	}
	return sql.NullInt32{Int32: int32(*i), Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

func boolPtr(b sql.NullBool) *bool {
	if !b.Valid {
		return nil
	}
	v := b.Bool
	return &v
}

func intPtr(i sql.NullInt32) *int {
	if !i.Valid {
		return nil
	}
	v := int(i.Int32)
	return &v
}
