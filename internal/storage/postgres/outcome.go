package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/arena/internal/game/reward"
)

// Outcome is one participant's settled match result.
type Outcome struct {
	SessionID     string
	ParticipantID string
	Mode          reward.Mode
	Result        reward.Result
	Turns         int
	Rewards       reward.Rewards
	CreatedAt     time.Time
}

// OutcomeRepository records match results and applies reward deltas.
type OutcomeRepository struct {
	db *pgxpool.Pool
}

// NewOutcomeRepository creates an OutcomeRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewOutcomeRepository(db *pgxpool.Pool) *OutcomeRepository {
	return &OutcomeRepository{db: db}
}

// PersistOutcome inserts the match_results row and adds the reward deltas to
// the character's balance in one transaction. Persisting the same
// (session, participant) pair twice is a no-op.
//
// Precondition: o.SessionID and o.ParticipantID must be non-empty.
// Postcondition: Either both the result row and the balance update are
// stored, or neither is. Returns ErrSnapshotNotFound when the character does not exist.
func (r *OutcomeRepository) PersistOutcome(ctx context.Context, o Outcome) error {
	return InTx(ctx, r.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO match_results
				(session_id, participant_id, mode, result, turns, gold, tokens, rating, experience, flags)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (session_id, participant_id) DO NOTHING`,
			o.SessionID, o.ParticipantID, string(o.Mode), o.Result.String(), o.Turns,
			o.Rewards.Gold, o.Rewards.Tokens, o.Rewards.Rating, o.Rewards.Experience,
			o.Rewards.Flags,
		)
		if err != nil {
			if isForeignKeyError(err) {
				return ErrSnapshotNotFound
			}
			return fmt.Errorf("inserting match result: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}

		if _, err := tx.Exec(ctx, `
			UPDATE characters
			SET gold = gold + $2,
			    tokens = tokens + $3,
			    rating = rating + $4,
			    experience = experience + $5,
			    updated_at = NOW()
			WHERE id = $1`,
			o.ParticipantID, o.Rewards.Gold, o.Rewards.Tokens, o.Rewards.Rating, o.Rewards.Experience,
		); err != nil {
			return fmt.Errorf("updating balance: %w", err)
		}
		return nil
	})
}

// History returns the most recent outcomes of participantID, newest first.
//
// Precondition: limit > 0.
func (r *OutcomeRepository) History(ctx context.Context, participantID string, limit int) ([]Outcome, error) {
	rows, err := r.db.Query(ctx, `
		SELECT session_id, participant_id, mode, result, turns,
		       gold, tokens, rating, experience, flags, created_at
		FROM match_results
		WHERE participant_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`,
		participantID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing match results: %w", err)
	}
	defer rows.Close()

	var out []Outcome
	for rows.Next() {
		var (
			o            Outcome
			mode, result string
		)
		if err := rows.Scan(
			&o.SessionID, &o.ParticipantID, &mode, &result, &o.Turns,
			&o.Rewards.Gold, &o.Rewards.Tokens, &o.Rewards.Rating, &o.Rewards.Experience,
			&o.Rewards.Flags, &o.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning match result: %w", err)
		}
		o.Mode = reward.Mode(mode)
		o.Result = parseResult(result)
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating match results: %w", err)
	}
	return out, nil
}

func parseResult(s string) reward.Result {
	switch s {
	case reward.ResultWin.String():
		return reward.ResultWin
	case reward.ResultDraw.String():
		return reward.ResultDraw
	default:
		return reward.ResultLose
	}
}
