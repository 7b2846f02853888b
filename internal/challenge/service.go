package challenge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/prepdesk/exam-platform/internal/db/repository"
	"github.com/prepdesk/exam-platform/internal/model"
	"github.com/prepdesk/exam-platform/internal/selector"
)

var (
	// ErrCannotAccept is returned when the accept guard matched no row:
	// wrong user, wrong state, or a closed window.
	ErrCannotAccept = errors.New("challenge cannot be accepted")
	// ErrSelfChallenge rejects a challenge against oneself.
	ErrSelfChallenge = errors.New("cannot challenge yourself")
)

// CreateRequest describes a new challenge: who is invited and what the
// question mix looks like.
type CreateRequest struct {
	OpponentID uuid.UUID
	Title      string
	Selections []selector.Request
	BudgetSec  int
}

// Config carries the wager-mode defaults.
type Config struct {
	StakeCoins    int
	Window        time.Duration
	DefaultBudget time.Duration
}

// Service creates and accepts challenges. Question sets come from the
// selector; other test kinds carry pre-authored sets and never pass
// through here.
type Service struct {
	pool     *pgxpool.Pool
	selector *selector.Service
	tests    *repository.TestRepository
	store    *repository.ChallengeRepository
	notifier *HubNotifier
	cfg      Config
	clock    clock
	logger   zerolog.Logger
}

func NewService(
	pool *pgxpool.Pool,
	sel *selector.Service,
	tests *repository.TestRepository,
	store *repository.ChallengeRepository,
	notifier *HubNotifier,
	cfg Config,
	clk clock,
	logger zerolog.Logger,
) *Service {
	if cfg.StakeCoins <= 0 {
		cfg.StakeCoins = 50
	}
	if cfg.Window <= 0 {
		cfg.Window = 24 * time.Hour
	}
	if cfg.DefaultBudget <= 0 {
		cfg.DefaultBudget = 10 * time.Minute
	}
	if clk == nil {
		clk = realClock{}
	}
	return &Service{
		pool:     pool,
		selector: sel,
		tests:    tests,
		store:    store,
		notifier: notifier,
		cfg:      cfg,
		clock:    clk,
		logger:   logger,
	}
}

// Create selects the question set and commits test + challenge as one
// transaction: a failed selection creates nothing.
func (s *Service) Create(ctx context.Context, challengerID uuid.UUID, req CreateRequest) (*model.Challenge, *model.Test, error) {
	if challengerID == req.OpponentID {
		return nil, nil, ErrSelfChallenge
	}

	refs, err := s.selector.Select(ctx, req.Selections)
	if err != nil {
		return nil, nil, err
	}

	now := s.clock.Now()
	windowEnd := now.Add(s.cfg.Window)
	budget := req.BudgetSec
	if budget <= 0 {
		budget = int(s.cfg.DefaultBudget.Seconds())
	}
	title := req.Title
	if title == "" {
		title = "Challenge"
	}

	test := &model.Test{
		ID:            uuid.New(),
		Title:         title,
		Kind:          model.KindChallenge,
		Refs:          refs,
		TimeBudgetSec: budget,
		Category:      primaryCategory(req.Selections),
		StartAt:       &now,
		EndAt:         &windowEnd,
		ChallengerID:  &challengerID,
		OpponentID:    &req.OpponentID,
	}
	ch := &model.Challenge{
		ID:           uuid.New(),
		TestID:       test.ID,
		ChallengerID: challengerID,
		OpponentID:   req.OpponentID,
		StakeCoins:   s.cfg.StakeCoins,
		Status:       model.ChallengePending,
		WindowStart:  now,
		WindowEnd:    windowEnd,
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("begin challenge create: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := s.tests.CreateTx(ctx, tx, test); err != nil {
		return nil, nil, err
	}
	if err := s.store.CreateTx(ctx, tx, ch); err != nil {
		return nil, nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("commit challenge create: %w", err)
	}

	s.logger.Info().
		Str("challenge_id", ch.ID.String()).
		Str("test_id", test.ID.String()).
		Int("questions", len(refs)).
		Msg("challenge created")
	if s.notifier != nil {
		s.notifier.ChallengeInvited(ch)
	}
	return ch, test, nil
}

// Accept lets the invited participant move the challenge to accepted.
func (s *Service) Accept(ctx context.Context, challengeID, userID uuid.UUID) (*model.Challenge, error) {
	ok, err := s.store.Accept(ctx, challengeID, userID, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if !ok {
		// Distinguish a vanished challenge from a bad accept for the
		// boundary's error mapping.
		if _, getErr := s.store.Get(ctx, challengeID); getErr != nil {
			return nil, getErr
		}
		return nil, ErrCannotAccept
	}
	c, err := s.store.Get(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	if s.notifier != nil {
		s.notifier.ChallengeAccepted(c)
	}
	return c, nil
}

// Get loads one challenge.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.Challenge, error) {
	return s.store.Get(ctx, id)
}

// GetByTest loads the challenge attached to a test id.
func (s *Service) GetByTest(ctx context.Context, testID uuid.UUID) (*model.Challenge, error) {
	return s.store.GetByTest(ctx, testID)
}

func primaryCategory(reqs []selector.Request) string {
	if len(reqs) == 1 {
		return reqs[0].Category
	}
	return ""
}
