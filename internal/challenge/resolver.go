package challenge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/prepdesk/exam-platform/internal/metrics"
	"github.com/prepdesk/exam-platform/internal/model"
)

// ErrNotAccepted rejects result recording against a challenge that never
// reached the accepted state.
var ErrNotAccepted = errors.New("challenge is not accepted")

const transferReason = "challenge_stake"

type challengeStore interface {
	Get(ctx context.Context, id uuid.UUID) (*model.Challenge, error)
	GetByTest(ctx context.Context, testID uuid.UUID) (*model.Challenge, error)
	CompleteTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, winnerID *uuid.UUID, now time.Time) (bool, error)
}

type resultStore interface {
	Save(ctx context.Context, res model.EvaluatedResult) error
	ListByTest(ctx context.Context, testID uuid.UUID) ([]model.EvaluatedResult, error)
}

type coinLedger interface {
	TransferTx(ctx context.Context, tx pgx.Tx, fromID, toID uuid.UUID, amount int, reason string) error
}

type txBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type notifier interface {
	ChallengeResolved(c *model.Challenge)
	OpponentSubmitted(c *model.Challenge, submitterID uuid.UUID)
}

type clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Resolver aggregates both participants' evaluated results and, once the
// second one lands, decides the winner and moves the stake exactly once.
// It is invoked from each participant's submission path and tolerates
// racing invocations: the completed-status compare-and-set inside the
// transfer transaction makes the payout at-most-once.
type Resolver struct {
	db       txBeginner
	store    challengeStore
	results  resultStore
	ledger   coinLedger
	notifier notifier
	clock    clock
	logger   zerolog.Logger
}

// ResolverOptions carries optional collaborators.
type ResolverOptions struct {
	Notifier notifier
	Clock    clock
}

func NewResolver(db txBeginner, store challengeStore, results resultStore, ledger coinLedger, opts ResolverOptions, logger zerolog.Logger) *Resolver {
	c := opts.Clock
	if c == nil {
		c = realClock{}
	}
	return &Resolver{
		db:       db,
		store:    store,
		results:  results,
		ledger:   ledger,
		notifier: opts.Notifier,
		clock:    c,
		logger:   logger,
	}
}

// RecordResult stores one side's evaluated result on the shared challenge
// and resolves it if both sides are now present. Safe to call once per
// submitter, in any order, at the same instant.
func (r *Resolver) RecordResult(ctx context.Context, challengeID uuid.UUID, res model.EvaluatedResult) error {
	c, err := r.store.Get(ctx, challengeID)
	if err != nil {
		return err
	}
	if c.Status == model.ChallengePending || c.Status == model.ChallengeExpired {
		return ErrNotAccepted
	}
	if !c.Participant(res.UserID) {
		return fmt.Errorf("user %s is not a participant of challenge %s", res.UserID, c.ID)
	}

	if err := r.results.Save(ctx, res); err != nil {
		return fmt.Errorf("store challenge result: %w", err)
	}
	if c.Status == model.ChallengeCompleted {
		// Late duplicate of an already resolved challenge.
		return nil
	}

	both, challengerRes, opponentRes, err := r.bothResults(ctx, c)
	if err != nil {
		return err
	}
	if !both {
		if r.notifier != nil {
			r.notifier.OpponentSubmitted(c, res.UserID)
		}
		return nil
	}
	return r.resolve(ctx, c, challengerRes, opponentRes)
}

func (r *Resolver) bothResults(ctx context.Context, c *model.Challenge) (bool, model.EvaluatedResult, model.EvaluatedResult, error) {
	var challengerRes, opponentRes model.EvaluatedResult
	stored, err := r.results.ListByTest(ctx, c.TestID)
	if err != nil {
		return false, challengerRes, opponentRes, fmt.Errorf("list challenge results: %w", err)
	}
	var haveChallenger, haveOpponent bool
	for _, res := range stored {
		switch res.UserID {
		case c.ChallengerID:
			challengerRes, haveChallenger = res, true
		case c.OpponentID:
			opponentRes, haveOpponent = res, true
		}
	}
	return haveChallenger && haveOpponent, challengerRes, opponentRes, nil
}

// resolve runs the status transition and stake transfer as one atomic
// unit. If the transfer fails the transaction rolls back and the
// challenge stays accepted for retry; it is never marked completed
// without payment.
func (r *Resolver) resolve(ctx context.Context, c *model.Challenge, challengerRes, opponentRes model.EvaluatedResult) error {
	winnerID := Winner(c, challengerRes, opponentRes)
	now := r.clock.Now()

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin resolution: %w", err)
	}
	defer tx.Rollback(ctx)

	transitioned, err := r.store.CompleteTx(ctx, tx, c.ID, winnerID, now)
	if err != nil {
		return err
	}
	if !transitioned {
		// The other participant's submission resolved it first.
		return nil
	}

	if winnerID != nil {
		loserID := c.OtherSide(*winnerID)
		if err := r.ledger.TransferTx(ctx, tx, loserID, *winnerID, c.StakeCoins, transferReason); err != nil {
			metrics.CoinTransferFailures.Inc()
			r.logger.Error().Err(err).
				Str("challenge_id", c.ID.String()).
				Str("winner_id", winnerID.String()).
				Msg("stake transfer failed, challenge left accepted for retry")
			return fmt.Errorf("transfer stake: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit resolution: %w", err)
	}

	c.Status = model.ChallengeCompleted
	c.WinnerID = winnerID
	c.ResolvedAt = &now

	outcome := "win"
	if winnerID == nil {
		outcome = "tie"
	}
	metrics.ChallengesResolved.WithLabelValues(outcome).Inc()
	r.logger.Info().
		Str("challenge_id", c.ID.String()).
		Str("outcome", outcome).
		Msg("challenge resolved")

	if r.notifier != nil {
		r.notifier.ChallengeResolved(c)
	}
	return nil
}

// Winner compares both TotalScore values and returns the winning
// participant, or nil for a tie. Equal scores are a tie even at zero: a
// 0-0 under the penalty scheme is a legitimate draw, not missing data.
// The outcome is the same whichever submission is evaluated first.
func Winner(c *model.Challenge, challengerRes, opponentRes model.EvaluatedResult) *uuid.UUID {
	a, b := challengerRes.TotalScore, opponentRes.TotalScore
	switch {
	case a > b:
		id := c.ChallengerID
		return &id
	case b > a:
		id := c.OpponentID
		return &id
	default:
		return nil
	}
}
