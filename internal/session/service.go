package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/prepdesk/exam-platform/internal/catalog"
	"github.com/prepdesk/exam-platform/internal/db/repository"
	"github.com/prepdesk/exam-platform/internal/evaluate"
	"github.com/prepdesk/exam-platform/internal/metrics"
	"github.com/prepdesk/exam-platform/internal/model"
)

type testStore interface {
	Get(ctx context.Context, id uuid.UUID) (*model.Test, error)
}

type catalogResolver interface {
	ResolveAll(ctx context.Context, refs []catalog.Ref) (map[uuid.UUID]catalog.Resolved, error)
}

type resultStore interface {
	Save(ctx context.Context, res model.EvaluatedResult) error
	Get(ctx context.Context, testID, userID uuid.UUID) (*model.EvaluatedResult, error)
}

type challengeRecorder interface {
	GetByTest(ctx context.Context, testID uuid.UUID) (*model.Challenge, error)
	RecordResult(ctx context.Context, challengeID uuid.UUID, res model.EvaluatedResult) error
}

// StartResponse is the hydrated view a client needs to render a running
// session: the owned record plus server-computed remaining time.
type StartResponse struct {
	Record    model.SessionRecord `json:"record"`
	Remaining int                 `json:"remaining_seconds"`
	Restored  bool                `json:"restored"`
	Test      *model.Test         `json:"test"`
}

// SubmitRequest is the final payload from the client session loop.
type SubmitRequest struct {
	Answers        []model.AttemptAnswer `json:"answers"`
	TabSwitchCount int                   `json:"tab_switch_count"`
}

// Service is the server side of the session lifecycle: it loads and
// restores attempts through the Machine, persists partial progress, and
// turns submissions into locked, evaluated, archived results.
type Service struct {
	tests      testStore
	resolver   catalogResolver
	syncer     *Syncer
	evaluator  *evaluate.Evaluator
	results    resultStore
	challenges challengeRecorder
	clock      Clock
	logger     zerolog.Logger
}

func NewService(
	tests testStore,
	resolver catalogResolver,
	syncer *Syncer,
	evaluator *evaluate.Evaluator,
	results resultStore,
	challenges challengeRecorder,
	clock Clock,
	logger zerolog.Logger,
) *Service {
	if clock == nil {
		clock = RealClock{}
	}
	return &Service{
		tests:      tests,
		resolver:   resolver,
		syncer:     syncer,
		evaluator:  evaluator,
		results:    results,
		challenges: challenges,
		clock:      clock,
		logger:     logger,
	}
}

// Start loads or restores the session for (test, user). A locked prior
// attempt surfaces ErrAlreadyLocked so the boundary can redirect to the
// result page instead of restarting.
func (s *Service) Start(ctx context.Context, testID, userID uuid.UUID) (*StartResponse, error) {
	test, err := s.tests.Get(ctx, testID)
	if err != nil {
		return nil, err
	}
	resolved, err := s.resolver.ResolveAll(ctx, test.Refs)
	if err != nil {
		return nil, fmt.Errorf("resolve questions: %w", err)
	}

	restored := false
	if prior, err := s.syncer.Restore(ctx, testID, userID, test.Kind); err == nil && prior != nil {
		restored = !prior.Locked
	}

	machine, err := Load(ctx, test, resolved, userID, s.syncer, s.clock, s.postLockHook(test, resolved), s.logger)
	if err != nil {
		return nil, err
	}

	rec := machine.Record()
	return &StartResponse{
		Record:    rec,
		Remaining: int(machine.Remaining().Seconds()),
		Restored:  restored,
		Test:      test,
	}, nil
}

// SaveAnswers persists partial progress from the client loop. Per-question
// time never decreases within one attempt; a stale write cannot roll a
// timer backwards.
func (s *Service) SaveAnswers(ctx context.Context, testID, userID uuid.UUID, kind model.Kind, incoming []model.AttemptAnswer, tabSwitches int) error {
	rec, err := s.syncer.Restore(ctx, testID, userID, kind)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("no session for test %s", testID)
	}
	if rec.Locked {
		return ErrAlreadyLocked
	}

	rec.Answers = mergeAnswers(rec.Answers, incoming)
	if tabSwitches > rec.TabSwitchCount {
		rec.TabSwitchCount = tabSwitches
	}
	return s.syncer.Persist(ctx, *rec)
}

// Submit locks the attempt, evaluates it, archives the result, and for
// challenges hands it to the resolver. Calling it twice with the same
// payload yields the same result; a different late payload is rejected as
// stale.
func (s *Service) Submit(ctx context.Context, testID, userID uuid.UUID, req SubmitRequest) (*model.EvaluatedResult, error) {
	test, err := s.tests.Get(ctx, testID)
	if err != nil {
		return nil, err
	}

	rec, err := s.syncer.Restore(ctx, testID, userID, test.Kind)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("no session for test %s", testID)
	}

	now := s.clock.Now()
	trigger := TriggerManual
	if !rec.Locked {
		if now.Sub(rec.StartedAt) >= test.TimeBudget() {
			trigger = TriggerExpiry
		}
		rec.Answers = mergeAnswers(rec.Answers, req.Answers)
		if req.TabSwitchCount > rec.TabSwitchCount {
			rec.TabSwitchCount = req.TabSwitchCount
		}
		rec.Locked = true
		if err := s.syncer.Lock(ctx, *rec); err != nil {
			return nil, err
		}
		metrics.Submissions.WithLabelValues(string(test.Kind), trigger).Inc()
	} else {
		// Attempt already locked: only an identical payload passes the
		// store's compare-and-set; anything else is a stale duplicate.
		repeat := *rec
		repeat.Answers = mergeAnswers(rec.Answers, req.Answers)
		if err := s.syncer.Lock(ctx, repeat); err != nil {
			return nil, err
		}
	}

	return s.finishLocked(ctx, test, *rec, now)
}

// finishLocked evaluates and archives a locked record. Re-running it for
// an idempotent duplicate produces the identical result; the archive
// upsert keeps the side effect single and the submission counter moves
// only where the lock actually transitions.
func (s *Service) finishLocked(ctx context.Context, test *model.Test, rec model.SessionRecord, submittedAt time.Time) (*model.EvaluatedResult, error) {
	resolved, err := s.resolver.ResolveAll(ctx, test.Refs)
	if err != nil {
		return nil, fmt.Errorf("resolve for evaluation: %w", err)
	}

	result := s.evaluator.Evaluate(rec, test.Refs, resolved, submittedAt)
	if err := s.results.Save(ctx, result); err != nil {
		return nil, fmt.Errorf("archive result: %w", err)
	}

	if test.Kind == model.KindChallenge && s.challenges != nil {
		ch, err := s.challenges.GetByTest(ctx, test.ID)
		if err != nil {
			if errors.Is(err, repository.ErrChallengeNotFound) {
				s.logger.Error().Str("test_id", test.ID.String()).Msg("challenge test without challenge row")
				return &result, nil
			}
			return nil, err
		}
		if err := s.challenges.RecordResult(ctx, ch.ID, result); err != nil {
			// The participant's own result is already archived; resolver
			// failures (for example a failed stake transfer) stay
			// retryable on the next invocation.
			s.logger.Error().Err(err).
				Str("challenge_id", ch.ID.String()).
				Msg("challenge resolution failed")
		}
	}
	return &result, nil
}

// Result returns the archived evaluated result for (test, user).
func (s *Service) Result(ctx context.Context, testID, userID uuid.UUID) (*model.EvaluatedResult, error) {
	return s.results.Get(ctx, testID, userID)
}

// postLockHook wires machine-driven expiry submits (Runner ticking a
// session to zero) into the same evaluate-and-archive path as a manual
// submit.
func (s *Service) postLockHook(test *model.Test, resolved map[uuid.UUID]catalog.Resolved) SubmitHook {
	return func(ctx context.Context, rec model.SessionRecord, trigger string) {
		metrics.Submissions.WithLabelValues(string(test.Kind), trigger).Inc()
		if _, err := s.finishLocked(ctx, test, rec, s.clock.Now()); err != nil {
			s.logger.Error().Err(err).
				Str("attempt_id", rec.AttemptID.String()).
				Msg("post-lock processing failed")
		}
	}
}

// mergeAnswers applies incoming slot updates onto the stored arena. The
// stored ordering is authoritative; unknown incoming ids are dropped and
// per-question time only moves forward.
func mergeAnswers(stored, incoming []model.AttemptAnswer) []model.AttemptAnswer {
	byID := make(map[string]model.AttemptAnswer, len(incoming))
	for _, a := range incoming {
		byID[a.QuestionID] = a
	}
	merged := make([]model.AttemptAnswer, len(stored))
	copy(merged, stored)
	for i := range merged {
		update, ok := byID[merged[i].QuestionID]
		if !ok {
			continue
		}
		merged[i].Selected = update.Selected
		if update.TimeTakenSeconds > merged[i].TimeTakenSeconds {
			merged[i].TimeTakenSeconds = update.TimeTakenSeconds
		}
	}
	return merged
}
