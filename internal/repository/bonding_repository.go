package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/armyboard/connection-service/internal/model"
)

// BondingRepo provides access to bonding_questions and
// connection_bonding_answers.  Answers are insert-only: a unique key on
// (connection_id, role, question_id) makes a second submission from the
// same party fail instead of overwriting the first.
type BondingRepo struct {
	db *sql.DB
}

// NewBondingRepo returns a BondingRepo bound to db.
func NewBondingRepo(db *sql.DB) *BondingRepo { return &BondingRepo{db: db} }

// PickQuestions returns n random active question ids.  Fewer than n
// results means the question bank is too small.
func (r *BondingRepo) PickQuestions(ctx context.Context, n int) ([]uint64, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM bonding_questions WHERE active = 1 ORDER BY RAND() LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	ids := make([]uint64, 0, n)
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// QuestionsByIDs loads the prompts for ids, keyed by id.  Inactive
// questions are included so old connections still render.
func (r *BondingRepo) QuestionsByIDs(ctx context.Context, ids []uint64) (map[uint64]model.BondingQuestion, error) {
	out := make(map[uint64]model.BondingQuestion, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	args := make([]interface{}, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
	}
	q := `SELECT id, prompt, active FROM bonding_questions WHERE id IN (?` + strings.Repeat(",?", len(ids)-1) + `)`
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var bq model.BondingQuestion
		if err := rows.Scan(&bq.ID, &bq.Prompt, &bq.Active); err != nil {
			return nil, err
		}
		out[bq.ID] = bq
	}
	return out, rows.Err()
}

// InsertAnswersTx stores one party's answers in a single statement.
// Passing an empty slice has no effect.  A duplicate row maps to
// ErrDuplicate.
func (r *BondingRepo) InsertAnswersTx(ctx context.Context, tx *sql.Tx, answers []model.BondingAnswer) error {
	if len(answers) == 0 {
		return nil
	}
	query := `INSERT INTO connection_bonding_answers (connection_id, role, question_id, answer, created_at) VALUES `
	args := make([]interface{}, 0, len(answers)*5)
	for i, a := range answers {
		if i > 0 {
			query += ","
		}
		query += "(?, ?, ?, ?, ?)"
		args = append(args, a.ConnectionID, string(a.Role), a.QuestionID, a.Answer, a.CreatedAt.UTC())
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		if isDuplicateKey(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// AnswersByConnection returns every stored answer of a connection in
// insertion order.
func (r *BondingRepo) AnswersByConnection(ctx context.Context, connectionID uint64) ([]model.BondingAnswer, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT connection_id, role, question_id, answer, created_at
		 FROM connection_bonding_answers WHERE connection_id = ? ORDER BY id`, connectionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.BondingAnswer
	for rows.Next() {
		var (
			a    model.BondingAnswer
			role string
		)
		if err := rows.Scan(&a.ConnectionID, &role, &a.QuestionID, &a.Answer, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.Role = model.Role(role)
		out = append(out, a)
	}
	return out, rows.Err()
}
