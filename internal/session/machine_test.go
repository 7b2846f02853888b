package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/prepdesk/exam-platform/internal/catalog"
	"github.com/prepdesk/exam-platform/internal/model"
)

// manualClock lets tests move server time explicitly.
type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock(start time.Time) *manualClock {
	return &manualClock{now: start}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// memoryStore is an in-process AttemptStore with the same lock semantics
// as the Redis implementation.
type memoryStore struct {
	mu       sync.Mutex
	records  map[string]model.SessionRecord
	locks    map[string]string
	persists int
	failures int // consume this many Persist calls with an error first
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		records: map[string]model.SessionRecord{},
		locks:   map[string]string{},
	}
}

func storeKey(testID, userID uuid.UUID, kind model.Kind) string {
	return testID.String() + ":" + userID.String() + ":" + string(kind)
}

func (s *memoryStore) Persist(_ context.Context, rec model.SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := storeKey(rec.TestID, rec.UserID, rec.Kind)
	if _, locked := s.locks[key]; locked {
		return ErrAlreadyLocked
	}
	if s.failures > 0 {
		s.failures--
		return assert.AnError
	}
	s.persists++
	s.records[key] = rec
	return nil
}

func (s *memoryStore) Restore(_ context.Context, testID, userID uuid.UUID, kind model.Kind) (*model.SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[storeKey(testID, userID, kind)]
	if !ok {
		return nil, nil
	}
	out := rec
	return &out, nil
}

func (s *memoryStore) Lock(_ context.Context, rec model.SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := storeKey(rec.TestID, rec.UserID, rec.Kind)
	fp := Fingerprint(rec)
	if prior, locked := s.locks[key]; locked {
		if prior == fp {
			return nil
		}
		return ErrStaleSubmission
	}
	s.locks[key] = fp
	rec.Locked = true
	s.records[key] = rec
	return nil
}

func (s *memoryStore) lockedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.locks)
}

type hookRecorder struct {
	mu       sync.Mutex
	calls    int
	triggers []string
}

func (h *hookRecorder) hook(_ context.Context, _ model.SessionRecord, trigger string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls++
	h.triggers = append(h.triggers, trigger)
}

func fixtureTest(nQuestions, budgetSec int) (*model.Test, map[uuid.UUID]catalog.Resolved) {
	test := &model.Test{
		ID:            uuid.New(),
		Title:         "fixture",
		Kind:          model.KindPractice,
		TimeBudgetSec: budgetSec,
	}
	resolved := map[uuid.UUID]catalog.Resolved{}
	for i := 0; i < nQuestions; i++ {
		id := uuid.New()
		test.Refs = append(test.Refs, catalog.Ref{ID: id, Kind: catalog.RefQuestion})
		resolved[id] = catalog.Resolved{
			Ref:      catalog.Ref{ID: id, Kind: catalog.RefQuestion},
			Question: &catalog.Question{ID: id, AnswerIndex: 0, Category: "math"},
		}
	}
	return test, resolved
}

func newTestSyncer(store AttemptStore) *Syncer {
	return NewSyncer(store, 3, time.Millisecond, zerolog.Nop())
}

func TestLoadFreshSession(t *testing.T) {
	start := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	clock := newManualClock(start)
	store := newMemoryStore()
	test, resolved := fixtureTest(3, 600)
	userID := uuid.New()

	m, err := Load(context.Background(), test, resolved, userID, newTestSyncer(store), clock, nil, zerolog.Nop())
	assert.NoError(t, err)
	assert.Equal(t, StateRunning, m.State())
	assert.Equal(t, 10*time.Minute, m.Remaining())

	rec := m.Record()
	assert.Equal(t, userID, rec.UserID)
	assert.Len(t, rec.Answers, 3)
	assert.Equal(t, start, rec.StartedAt)

	// The fresh record is durable before any interaction happens.
	restored, err := store.Restore(context.Background(), test.ID, userID, test.Kind)
	assert.NoError(t, err)
	assert.NotNil(t, restored)
	assert.Equal(t, rec.AttemptID, restored.AttemptID)
}

func TestLoadRestoresWithServerClock(t *testing.T) {
	start := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	clock := newManualClock(start)
	store := newMemoryStore()
	test, resolved := fixtureTest(2, 600)
	userID := uuid.New()
	syncer := newTestSyncer(store)

	first, err := Load(context.Background(), test, resolved, userID, syncer, clock, nil, zerolog.Nop())
	assert.NoError(t, err)
	sel := 1
	assert.NoError(t, first.SelectAnswer(context.Background(), &sel))

	// Simulate a disconnect; four minutes pass before the user returns.
	clock.Advance(4 * time.Minute)

	// The async persist from SelectAnswer may still be in flight; write
	// the snapshot explicitly to make the restore deterministic.
	assert.NoError(t, syncer.Persist(context.Background(), first.Record()))

	second, err := Load(context.Background(), test, resolved, userID, syncer, clock, nil, zerolog.Nop())
	assert.NoError(t, err)
	assert.Equal(t, StateRunning, second.State())
	assert.Equal(t, 6*time.Minute, second.Remaining())

	rec := second.Record()
	assert.Equal(t, first.Record().AttemptID, rec.AttemptID)
	assert.NotNil(t, rec.Answers[0].Selected)
	assert.Equal(t, 1, *rec.Answers[0].Selected)
}

func TestLoadExpiredOnRestoreAutoSubmits(t *testing.T) {
	start := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	clock := newManualClock(start)
	store := newMemoryStore()
	test, resolved := fixtureTest(2, 300)
	userID := uuid.New()
	syncer := newTestSyncer(store)
	rec := &hookRecorder{}

	_, err := Load(context.Background(), test, resolved, userID, syncer, clock, rec.hook, zerolog.Nop())
	assert.NoError(t, err)

	clock.Advance(20 * time.Minute)

	_, err = Load(context.Background(), test, resolved, userID, syncer, clock, rec.hook, zerolog.Nop())
	assert.ErrorIs(t, err, ErrAlreadyLocked)
	assert.Equal(t, 1, store.lockedCount())
	assert.Equal(t, []string{TriggerExpiry}, rec.triggers)
}

func TestLoadLockedPriorRejected(t *testing.T) {
	clock := newManualClock(time.Now())
	store := newMemoryStore()
	test, resolved := fixtureTest(1, 300)
	userID := uuid.New()
	syncer := newTestSyncer(store)

	m, err := Load(context.Background(), test, resolved, userID, syncer, clock, nil, zerolog.Nop())
	assert.NoError(t, err)
	assert.NoError(t, m.Submit(context.Background()))

	_, err = Load(context.Background(), test, resolved, userID, syncer, clock, nil, zerolog.Nop())
	assert.ErrorIs(t, err, ErrAlreadyLocked)
}

func TestLoadScheduledWindow(t *testing.T) {
	now := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	clock := newManualClock(now)
	store := newMemoryStore()
	test, resolved := fixtureTest(1, 300)
	userID := uuid.New()

	opens := now.Add(time.Hour)
	closes := now.Add(2 * time.Hour)
	test.StartAt = &opens
	test.EndAt = &closes

	_, err := Load(context.Background(), test, resolved, userID, newTestSyncer(store), clock, nil, zerolog.Nop())
	assert.ErrorIs(t, err, ErrWindowNotOpen)

	clock.Advance(3 * time.Hour)
	_, err = Load(context.Background(), test, resolved, userID, newTestSyncer(store), clock, nil, zerolog.Nop())
	assert.ErrorIs(t, err, ErrWindowClosed)
}

func TestTickAccruesOnlyCurrentQuestion(t *testing.T) {
	clock := newManualClock(time.Now())
	store := newMemoryStore()
	test, resolved := fixtureTest(3, 600)

	m, err := Load(context.Background(), test, resolved, uuid.New(), newTestSyncer(store), clock, nil, zerolog.Nop())
	assert.NoError(t, err)

	ctx := context.Background()
	assert.NoError(t, m.Tick(ctx))
	assert.NoError(t, m.Tick(ctx))
	assert.NoError(t, m.Next())
	assert.NoError(t, m.Tick(ctx))

	rec := m.Record()
	assert.Equal(t, 2, rec.Answers[0].TimeTakenSeconds)
	assert.Equal(t, 1, rec.Answers[1].TimeTakenSeconds)
	assert.Equal(t, 0, rec.Answers[2].TimeTakenSeconds)
	assert.Equal(t, 10*time.Minute-3*time.Second, m.Remaining())
}

func TestTickExpirySubmitsOnce(t *testing.T) {
	clock := newManualClock(time.Now())
	store := newMemoryStore()
	test, resolved := fixtureTest(1, 2)
	rec := &hookRecorder{}

	m, err := Load(context.Background(), test, resolved, uuid.New(), newTestSyncer(store), clock, rec.hook, zerolog.Nop())
	assert.NoError(t, err)

	ctx := context.Background()
	assert.NoError(t, m.Tick(ctx))
	assert.NoError(t, m.Tick(ctx)) // countdown hits zero here
	assert.Equal(t, StateLocked, m.State())
	assert.Equal(t, time.Duration(0), m.Remaining())
	assert.Equal(t, 1, rec.calls)
	assert.Equal(t, []string{TriggerExpiry}, rec.triggers)

	// Further ticks are rejected, and the lock never doubles.
	assert.ErrorIs(t, m.Tick(ctx), ErrNotRunning)
	assert.Equal(t, 1, store.lockedCount())
	assert.Equal(t, 1, rec.calls)
}

func TestSubmitIdempotent(t *testing.T) {
	clock := newManualClock(time.Now())
	store := newMemoryStore()
	test, resolved := fixtureTest(1, 600)
	rec := &hookRecorder{}

	m, err := Load(context.Background(), test, resolved, uuid.New(), newTestSyncer(store), clock, rec.hook, zerolog.Nop())
	assert.NoError(t, err)

	ctx := context.Background()
	assert.NoError(t, m.Submit(ctx))
	assert.NoError(t, m.Submit(ctx))
	assert.Equal(t, 1, rec.calls)
	assert.Equal(t, []string{TriggerManual}, rec.triggers)
	assert.Equal(t, StateLocked, m.State())
}

func TestNavigationBounds(t *testing.T) {
	clock := newManualClock(time.Now())
	store := newMemoryStore()
	test, resolved := fixtureTest(3, 600)

	m, err := Load(context.Background(), test, resolved, uuid.New(), newTestSyncer(store), clock, nil, zerolog.Nop())
	assert.NoError(t, err)

	// Previous at the first question stays put.
	assert.NoError(t, m.Previous())
	assert.Equal(t, 0, m.CurrentIndex())

	assert.NoError(t, m.JumpTo(2))
	assert.Equal(t, 2, m.CurrentIndex())

	// Next at the last question stays put.
	assert.NoError(t, m.Next())
	assert.Equal(t, 2, m.CurrentIndex())

	assert.Error(t, m.JumpTo(3))
	assert.Error(t, m.JumpTo(-1))
}

func TestClearAnswerResetsSlot(t *testing.T) {
	clock := newManualClock(time.Now())
	store := newMemoryStore()
	test, resolved := fixtureTest(1, 600)

	m, err := Load(context.Background(), test, resolved, uuid.New(), newTestSyncer(store), clock, nil, zerolog.Nop())
	assert.NoError(t, err)

	sel := 2
	assert.NoError(t, m.SelectAnswer(context.Background(), &sel))
	assert.NotNil(t, m.Record().Answers[0].Selected)

	assert.NoError(t, m.ClearAnswer(context.Background()))
	assert.Nil(t, m.Record().Answers[0].Selected)
}

func TestMutationsRejectedAfterLock(t *testing.T) {
	clock := newManualClock(time.Now())
	store := newMemoryStore()
	test, resolved := fixtureTest(2, 600)

	m, err := Load(context.Background(), test, resolved, uuid.New(), newTestSyncer(store), clock, nil, zerolog.Nop())
	assert.NoError(t, err)
	assert.NoError(t, m.Submit(context.Background()))

	sel := 0
	assert.ErrorIs(t, m.SelectAnswer(context.Background(), &sel), ErrNotRunning)
	assert.ErrorIs(t, m.Next(), ErrNotRunning)
	assert.ErrorIs(t, m.JumpTo(1), ErrNotRunning)

	before := m.Record().TabSwitchCount
	m.RecordTabSwitch()
	assert.Equal(t, before, m.Record().TabSwitchCount)
}

func TestSyncerRetriesTransientFailures(t *testing.T) {
	store := newMemoryStore()
	store.failures = 2
	syncer := NewSyncer(store, 3, time.Millisecond, zerolog.Nop())

	rec := model.SessionRecord{AttemptID: uuid.New(), TestID: uuid.New(), UserID: uuid.New(), Kind: model.KindPractice}
	assert.NoError(t, syncer.Persist(context.Background(), rec))
	assert.Equal(t, 1, store.persists)
}

func TestSyncerExhaustionSurfacesSyncFailure(t *testing.T) {
	store := newMemoryStore()
	store.failures = 10
	syncer := NewSyncer(store, 3, time.Millisecond, zerolog.Nop())

	rec := model.SessionRecord{AttemptID: uuid.New(), TestID: uuid.New(), UserID: uuid.New(), Kind: model.KindPractice}
	err := syncer.Persist(context.Background(), rec)
	assert.ErrorIs(t, err, ErrSyncFailure)
}

func TestSyncerDoesNotRetryLockedStore(t *testing.T) {
	store := newMemoryStore()
	rec := model.SessionRecord{AttemptID: uuid.New(), TestID: uuid.New(), UserID: uuid.New(), Kind: model.KindPractice}
	assert.NoError(t, store.Lock(context.Background(), rec))

	syncer := NewSyncer(store, 3, time.Millisecond, zerolog.Nop())
	err := syncer.Persist(context.Background(), rec)
	assert.ErrorIs(t, err, ErrAlreadyLocked)
}
