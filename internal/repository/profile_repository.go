package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/armyboard/connection-service/internal/model"
)

// ProfileRepo reads public profile data for connection previews.
type ProfileRepo struct {
	db *sql.DB
}

// NewProfileRepo returns a ProfileRepo bound to db.
func NewProfileRepo(db *sql.DB) *ProfileRepo { return &ProfileRepo{db: db} }

// GetByUserIDs returns profiles keyed by user id.  Users without a
// profile row are simply absent from the map.
func (r *ProfileRepo) GetByUserIDs(ctx context.Context, ids ...uint64) (map[uint64]model.Profile, error) {
	out := make(map[uint64]model.Profile, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	args := make([]interface{}, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id, display_name, bias, army_since, instagram, twitter
		 FROM profiles WHERE user_id IN (?`+strings.Repeat(",?", len(ids)-1)+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			p                    model.Profile
			since                sql.NullInt32
			bias, insta, twitter sql.NullString
		)
		if err := rows.Scan(&p.UserID, &p.DisplayName, &bias, &since, &insta, &twitter); err != nil {
			return nil, err
		}
		p.Bias = bias.String
		p.Instagram = insta.String
		p.Twitter = twitter.String
		if since.Valid {
			y := int(since.Int32)
			p.ArmySince = &y
		}
		out[p.UserID] = p
	}
	return out, rows.Err()
}
