package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/armyboard/connection-service/internal/connection"
	"github.com/armyboard/connection-service/internal/model"
)

// fakeRow copies vals into Scan destinations the way database/sql does for
// the driver types used by the connections table.
type fakeRow struct {
	vals []any
	err  error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != len(r.vals) {
		return fmt.Errorf("scan: %d destinations for %d columns", len(dest), len(r.vals))
	}
	for i, d := range dest {
		if s, ok := d.(sql.Scanner); ok {
			if err := s.Scan(r.vals[i]); err != nil {
				return err
			}
			continue
		}
		switch p := d.(type) {
		case *uint64:
			*p = r.vals[i].(uint64)
		case *string:
			*p = r.vals[i].(string)
		case *bool:
			*p = r.vals[i].(bool)
		case *[]byte:
			if r.vals[i] != nil {
				*p = r.vals[i].([]byte)
			}
		case *time.Time:
			*p = r.vals[i].(time.Time)
		default:
			return fmt.Errorf("scan: unsupported destination %T", d)
		}
	}
	return nil
}

func TestScanConnection(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	exp := at.Add(24 * time.Hour)
	row := fakeRow{vals: []any{
		uint64(5), "merch", uint64(7), uint64(1), uint64(2), "ended", at, nil,
		[]byte("[21,22]"), at, nil,
		true, nil, nil, false, true, nil,
		false, false, int64(4), nil,
		"buyer", at, "buyer_bonding_v2", "found another", at, exp, uint64(3),
	}}

	c, err := scanConnection(row)
	require.NoError(t, err)
	assert.Equal(t, model.KindMerch, c.Kind)
	assert.Equal(t, model.StageEnded, c.Stage)
	assert.Nil(t, c.StageExpiresAt)
	assert.Equal(t, []uint64{21, 22}, c.BondingQuestionIDs)
	require.NotNil(t, c.BuyerBondingSubmittedAt)
	assert.Nil(t, c.SellerBondingSubmittedAt)
	require.NotNil(t, c.BuyerComfort)
	assert.True(t, *c.BuyerComfort)
	assert.Nil(t, c.SellerComfort)
	require.NotNil(t, c.SellerSocialShare)
	assert.False(t, *c.SellerSocialShare)
	require.NotNil(t, c.BuyerSharePreference)
	assert.True(t, *c.BuyerSharePreference)
	assert.Nil(t, c.SellerSharePreference)
	require.NotNil(t, c.BuyerRating)
	assert.Equal(t, 4, *c.BuyerRating)
	assert.Equal(t, model.RoleBuyer, c.EndedBy)
	assert.Equal(t, model.StageBuyerBondingV2, c.StageBeforeEnded)
	assert.Equal(t, "found another", c.EndReason)
	assert.Equal(t, uint64(3), c.Version)
}

func TestScanConnectionErrors(t *testing.T) {
	_, err := scanConnection(fakeRow{err: sql.ErrNoRows})
	assert.ErrorIs(t, err, connection.ErrNotFound)

	at := time.Now()
	row := fakeRow{vals: []any{
		uint64(5), "ticket", uint64(7), uint64(1), uint64(2), "haggling", at, nil,
		nil, nil, nil, nil, nil, nil, nil, nil, nil, false, false, nil, nil,
		nil, nil, nil, nil, at, at, uint64(1),
	}}
	_, err = scanConnection(row)
	assert.Error(t, err, "unknown stage must not load")
}

func TestEncodeIDs(t *testing.T) {
	v, err := encodeIDs(nil)
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = encodeIDs([]uint64{11, 12, 13})
	require.NoError(t, err)
	assert.Equal(t, "[11,12,13]", v)
}

func TestNullHelpers(t *testing.T) {
	yes := true
	four := 4
	at := time.Date(2026, 3, 1, 21, 0, 0, 0, time.FixedZone("KST", 9*3600))

	assert.Equal(t, sql.NullBool{}, nullBool(nil))
	assert.Equal(t, sql.NullBool{Bool: true, Valid: true}, nullBool(&yes))
	assert.Equal(t, sql.NullInt32{Int32: 4, Valid: true}, nullInt(&four))
	assert.False(t, nullString("").Valid)
	nt := nullTime(&at)
	assert.True(t, nt.Valid)
	assert.Equal(t, time.UTC, nt.Time.Location())
	assert.Equal(t, 12, nt.Time.Hour())
}

func TestIsDuplicateKey(t *testing.T) {
	dup := fmt.Errorf("insert answers: %w", &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})
	assert.True(t, isDuplicateKey(dup))
	assert.False(t, isDuplicateKey(&mysql.MySQLError{Number: 1213}))
	assert.False(t, isDuplicateKey(errors.New("1062")))
}
