package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/prepdesk/exam-platform/internal/model"
)

// ErrChallengeNotFound is returned for unknown challenge ids.
var ErrChallengeNotFound = errors.New("challenge not found")

// ChallengeRepository persists the shared two-participant challenge rows.
type ChallengeRepository struct {
	pool *pgxpool.Pool
}

func NewChallengeRepository(pool *pgxpool.Pool) *ChallengeRepository {
	return &ChallengeRepository{pool: pool}
}

// CreateTx inserts the challenge row in the caller's transaction.
func (r *ChallengeRepository) CreateTx(ctx context.Context, tx pgx.Tx, c *model.Challenge) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO challenges (id, test_id, challenger_id, opponent_id, stake_coins, status, window_start, window_end)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		c.ID, c.TestID, c.ChallengerID, c.OpponentID, c.StakeCoins, c.Status, c.WindowStart, c.WindowEnd)
	if err != nil {
		return fmt.Errorf("insert challenge: %w", err)
	}
	return nil
}

func scanChallenge(row pgx.Row) (*model.Challenge, error) {
	c := &model.Challenge{}
	err := row.Scan(&c.ID, &c.TestID, &c.ChallengerID, &c.OpponentID, &c.StakeCoins,
		&c.Status, &c.WindowStart, &c.WindowEnd, &c.WinnerID, &c.ResolvedAt, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrChallengeNotFound
		}
		return nil, fmt.Errorf("scan challenge: %w", err)
	}
	return c, nil
}

const challengeColumns = `id, test_id, challenger_id, opponent_id, stake_coins, status, window_start, window_end, winner_id, resolved_at, created_at`

// Get loads one challenge.
func (r *ChallengeRepository) Get(ctx context.Context, id uuid.UUID) (*model.Challenge, error) {
	return scanChallenge(r.pool.QueryRow(ctx,
		`SELECT `+challengeColumns+` FROM challenges WHERE id = $1`, id))
}

// GetByTest loads the challenge attached to a test.
func (r *ChallengeRepository) GetByTest(ctx context.Context, testID uuid.UUID) (*model.Challenge, error) {
	return scanChallenge(r.pool.QueryRow(ctx,
		`SELECT `+challengeColumns+` FROM challenges WHERE test_id = $1`, testID))
}

// Accept flips pending → accepted, guarded so only the invited opponent
// can accept and only while the window is open.
func (r *ChallengeRepository) Accept(ctx context.Context, id, opponentID uuid.UUID, now time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE challenges SET status = $1
		 WHERE id = $2 AND opponent_id = $3 AND status = $4 AND window_end > $5`,
		model.ChallengeAccepted, id, opponentID, model.ChallengePending, now)
	if err != nil {
		return false, fmt.Errorf("accept challenge: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ExpireStale terminally expires unaccepted challenges whose window fully
// elapsed. Returns the rows that transitioned so callers can notify the
// participants.
func (r *ChallengeRepository) ExpireStale(ctx context.Context, now time.Time) ([]*model.Challenge, error) {
	rows, err := r.pool.Query(ctx,
		`UPDATE challenges SET status = $1
		 WHERE status = $2 AND window_end < $3
		 RETURNING `+challengeColumns,
		model.ChallengeExpired, model.ChallengePending, now)
	if err != nil {
		return nil, fmt.Errorf("expire challenges: %w", err)
	}
	defer rows.Close()

	var expired []*model.Challenge
	for rows.Next() {
		c, err := scanChallenge(rows)
		if err != nil {
			return nil, err
		}
		expired = append(expired, c)
	}
	return expired, rows.Err()
}

// CompleteTx transitions accepted → completed inside the caller's
// transaction. Returns false when another resolution already won the race;
// the caller must then skip the transfer.
func (r *ChallengeRepository) CompleteTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, winnerID *uuid.UUID, now time.Time) (bool, error) {
	tag, err := tx.Exec(ctx,
		`UPDATE challenges SET status = $1, winner_id = $2, resolved_at = $3
		 WHERE id = $4 AND status = $5`,
		model.ChallengeCompleted, winnerID, now, id, model.ChallengeAccepted)
	if err != nil {
		return false, fmt.Errorf("complete challenge: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
