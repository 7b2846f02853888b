package challenge

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prepdesk/exam-platform/internal/model"
)

// fakeTx satisfies pgx.Tx for the few methods the resolver touches.
// Anything else panics via the embedded nil interface, which is what we
// want in a unit test.
type fakeTx struct {
	pgx.Tx
	committed  bool
	rolledBack bool
}

func (t *fakeTx) Commit(_ context.Context) error {
	t.committed = true
	return nil
}

func (t *fakeTx) Rollback(_ context.Context) error {
	if !t.committed {
		t.rolledBack = true
	}
	return nil
}

type fakeDB struct {
	txs []*fakeTx
}

func (d *fakeDB) Begin(_ context.Context) (pgx.Tx, error) {
	tx := &fakeTx{}
	d.txs = append(d.txs, tx)
	return tx, nil
}

func (d *fakeDB) lastTx() *fakeTx {
	return d.txs[len(d.txs)-1]
}

type fakeChallengeStore struct {
	challenge   *model.Challenge
	completions int
}

func (s *fakeChallengeStore) Get(_ context.Context, _ uuid.UUID) (*model.Challenge, error) {
	return s.challenge, nil
}

func (s *fakeChallengeStore) GetByTest(_ context.Context, _ uuid.UUID) (*model.Challenge, error) {
	return s.challenge, nil
}

func (s *fakeChallengeStore) CompleteTx(_ context.Context, _ pgx.Tx, _ uuid.UUID, _ *uuid.UUID, _ time.Time) (bool, error) {
	if s.challenge.Status != model.ChallengeAccepted {
		return false, nil
	}
	s.completions++
	return true, nil
}

type fakeResultStore struct {
	results map[uuid.UUID]model.EvaluatedResult // keyed by user
}

func newFakeResultStore() *fakeResultStore {
	return &fakeResultStore{results: map[uuid.UUID]model.EvaluatedResult{}}
}

func (s *fakeResultStore) Save(_ context.Context, res model.EvaluatedResult) error {
	if _, exists := s.results[res.UserID]; !exists {
		s.results[res.UserID] = res
	}
	return nil
}

func (s *fakeResultStore) ListByTest(_ context.Context, _ uuid.UUID) ([]model.EvaluatedResult, error) {
	out := make([]model.EvaluatedResult, 0, len(s.results))
	for _, res := range s.results {
		out = append(out, res)
	}
	return out, nil
}

type transfer struct {
	from, to uuid.UUID
	amount   int
	reason   string
}

type fakeLedger struct {
	transfers []transfer
	failNext  error
}

func (l *fakeLedger) TransferTx(_ context.Context, _ pgx.Tx, fromID, toID uuid.UUID, amount int, reason string) error {
	if l.failNext != nil {
		err := l.failNext
		l.failNext = nil
		return err
	}
	l.transfers = append(l.transfers, transfer{from: fromID, to: toID, amount: amount, reason: reason})
	return nil
}

type fakeNotifier struct {
	resolved          []*model.Challenge
	opponentSubmitted []uuid.UUID
}

func (n *fakeNotifier) ChallengeResolved(c *model.Challenge) {
	n.resolved = append(n.resolved, c)
}

func (n *fakeNotifier) OpponentSubmitted(_ *model.Challenge, submitterID uuid.UUID) {
	n.opponentSubmitted = append(n.opponentSubmitted, submitterID)
}

type resolverFixture struct {
	resolver *Resolver
	db       *fakeDB
	store    *fakeChallengeStore
	results  *fakeResultStore
	ledger   *fakeLedger
	notifier *fakeNotifier
	c        *model.Challenge
}

func newResolverFixture(t *testing.T) *resolverFixture {
	t.Helper()
	c := &model.Challenge{
		ID:           uuid.New(),
		TestID:       uuid.New(),
		ChallengerID: uuid.New(),
		OpponentID:   uuid.New(),
		StakeCoins:   50,
		Status:       model.ChallengeAccepted,
	}
	db := &fakeDB{}
	store := &fakeChallengeStore{challenge: c}
	results := newFakeResultStore()
	ledger := &fakeLedger{}
	notifier := &fakeNotifier{}
	resolver := NewResolver(db, store, results, ledger, ResolverOptions{Notifier: notifier}, zerolog.Nop())
	return &resolverFixture{
		resolver: resolver,
		db:       db,
		store:    store,
		results:  results,
		ledger:   ledger,
		notifier: notifier,
		c:        c,
	}
}

func resultFor(userID uuid.UUID, score, correct int) model.EvaluatedResult {
	return model.EvaluatedResult{
		AttemptID:    uuid.New(),
		UserID:       userID,
		TotalScore:   score,
		TotalCorrect: correct,
		SubmittedAt:  time.Now(),
	}
}

func TestRecordResultWaitsForBothSides(t *testing.T) {
	f := newResolverFixture(t)
	ctx := context.Background()

	require.NoError(t, f.resolver.RecordResult(ctx, f.c.ID, resultFor(f.c.ChallengerID, 12, 3)))

	assert.Equal(t, model.ChallengeAccepted, f.c.Status)
	assert.Empty(t, f.ledger.transfers)
	assert.Empty(t, f.db.txs)
}

func TestRecordResultFirstSubmissionNotifiesOpponent(t *testing.T) {
	f := newResolverFixture(t)
	ctx := context.Background()

	require.NoError(t, f.resolver.RecordResult(ctx, f.c.ID, resultFor(f.c.ChallengerID, 12, 3)))
	assert.Equal(t, []uuid.UUID{f.c.ChallengerID}, f.notifier.opponentSubmitted)

	// The second submission resolves instead of re-announcing.
	require.NoError(t, f.resolver.RecordResult(ctx, f.c.ID, resultFor(f.c.OpponentID, 20, 5)))
	assert.Len(t, f.notifier.opponentSubmitted, 1)
	assert.Len(t, f.notifier.resolved, 1)
}

func TestRecordResultResolvesOnSecondSubmission(t *testing.T) {
	f := newResolverFixture(t)
	ctx := context.Background()

	require.NoError(t, f.resolver.RecordResult(ctx, f.c.ID, resultFor(f.c.ChallengerID, 12, 3)))
	require.NoError(t, f.resolver.RecordResult(ctx, f.c.ID, resultFor(f.c.OpponentID, 20, 5)))

	assert.Equal(t, model.ChallengeCompleted, f.c.Status)
	require.NotNil(t, f.c.WinnerID)
	assert.Equal(t, f.c.OpponentID, *f.c.WinnerID)
	assert.True(t, f.db.lastTx().committed)

	require.Len(t, f.ledger.transfers, 1)
	tr := f.ledger.transfers[0]
	assert.Equal(t, f.c.ChallengerID, tr.from)
	assert.Equal(t, f.c.OpponentID, tr.to)
	assert.Equal(t, 50, tr.amount)
	assert.Equal(t, "challenge_stake", tr.reason)

	require.Len(t, f.notifier.resolved, 1)
	assert.Equal(t, f.c.ID, f.notifier.resolved[0].ID)
}

func TestRecordResultOrderIndependentWinner(t *testing.T) {
	for name, reversed := range map[string]bool{"challenger first": false, "opponent first": true} {
		t.Run(name, func(t *testing.T) {
			f := newResolverFixture(t)
			ctx := context.Background()

			first := resultFor(f.c.ChallengerID, 30, 8)
			second := resultFor(f.c.OpponentID, 10, 4)
			if reversed {
				first, second = second, first
			}
			require.NoError(t, f.resolver.RecordResult(ctx, f.c.ID, first))
			require.NoError(t, f.resolver.RecordResult(ctx, f.c.ID, second))

			require.NotNil(t, f.c.WinnerID)
			assert.Equal(t, f.c.ChallengerID, *f.c.WinnerID)
		})
	}
}

func TestRecordResultTieMovesNoCoins(t *testing.T) {
	f := newResolverFixture(t)
	ctx := context.Background()

	require.NoError(t, f.resolver.RecordResult(ctx, f.c.ID, resultFor(f.c.ChallengerID, 16, 4)))
	require.NoError(t, f.resolver.RecordResult(ctx, f.c.ID, resultFor(f.c.OpponentID, 16, 4)))

	assert.Equal(t, model.ChallengeCompleted, f.c.Status)
	assert.Nil(t, f.c.WinnerID)
	assert.Empty(t, f.ledger.transfers)
	assert.True(t, f.db.lastTx().committed)
}

func TestWinnerZeroScoreTieStaysATie(t *testing.T) {
	c := &model.Challenge{ChallengerID: uuid.New(), OpponentID: uuid.New()}

	// A 0-0 is a draw even when one side has more correct answers
	// (1 correct + 4 wrong clamps to zero, same as all-wrong).
	assert.Nil(t, Winner(c, model.EvaluatedResult{TotalScore: 0, TotalCorrect: 2},
		model.EvaluatedResult{TotalScore: 0, TotalCorrect: 1}))

	// The correct count never overrides the score.
	winner := Winner(c, model.EvaluatedResult{TotalScore: 4, TotalCorrect: 1},
		model.EvaluatedResult{TotalScore: 8, TotalCorrect: 9})
	require.NotNil(t, winner)
	assert.Equal(t, c.OpponentID, *winner)

	assert.Nil(t, Winner(c, model.EvaluatedResult{}, model.EvaluatedResult{}))
}

func TestRecordResultFailedTransferLeavesChallengeAccepted(t *testing.T) {
	f := newResolverFixture(t)
	f.ledger.failNext = assert.AnError
	ctx := context.Background()

	require.NoError(t, f.resolver.RecordResult(ctx, f.c.ID, resultFor(f.c.ChallengerID, 12, 3)))
	err := f.resolver.RecordResult(ctx, f.c.ID, resultFor(f.c.OpponentID, 20, 5))
	assert.Error(t, err)

	// Rolled back: retryable, never completed without payment.
	assert.Equal(t, model.ChallengeAccepted, f.c.Status)
	assert.True(t, f.db.lastTx().rolledBack)
	assert.Empty(t, f.notifier.resolved)

	// The retry succeeds and pays exactly once.
	require.NoError(t, f.resolver.RecordResult(ctx, f.c.ID, resultFor(f.c.OpponentID, 20, 5)))
	assert.Equal(t, model.ChallengeCompleted, f.c.Status)
	require.Len(t, f.ledger.transfers, 1)
}

func TestRecordResultRejectsPendingChallenge(t *testing.T) {
	f := newResolverFixture(t)
	f.c.Status = model.ChallengePending

	err := f.resolver.RecordResult(context.Background(), f.c.ID, resultFor(f.c.ChallengerID, 4, 1))
	assert.ErrorIs(t, err, ErrNotAccepted)
}

func TestRecordResultRejectsNonParticipant(t *testing.T) {
	f := newResolverFixture(t)

	err := f.resolver.RecordResult(context.Background(), f.c.ID, resultFor(uuid.New(), 4, 1))
	assert.Error(t, err)
	assert.Empty(t, f.results.results)
}

func TestRecordResultDuplicateAfterCompletionIsNoOp(t *testing.T) {
	f := newResolverFixture(t)
	ctx := context.Background()

	require.NoError(t, f.resolver.RecordResult(ctx, f.c.ID, resultFor(f.c.ChallengerID, 12, 3)))
	require.NoError(t, f.resolver.RecordResult(ctx, f.c.ID, resultFor(f.c.OpponentID, 20, 5)))
	require.Equal(t, model.ChallengeCompleted, f.c.Status)

	require.NoError(t, f.resolver.RecordResult(ctx, f.c.ID, resultFor(f.c.OpponentID, 20, 5)))
	assert.Len(t, f.ledger.transfers, 1)
	assert.Equal(t, 1, f.store.completions)
}
