package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prepdesk/exam-platform/internal/model"
)

func newTestRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, time.Hour, zerolog.Nop())
}

func sampleRecord() model.SessionRecord {
	sel := 2
	return model.SessionRecord{
		AttemptID: uuid.New(),
		TestID:    uuid.New(),
		UserID:    uuid.New(),
		Kind:      model.KindPractice,
		Answers: []model.AttemptAnswer{
			{QuestionID: uuid.NewString(), Selected: &sel, TimeTakenSeconds: 12},
			{QuestionID: uuid.NewString()},
		},
		StartedAt:      time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC),
		TabSwitchCount: 1,
	}
}

func TestRedisStorePersistRestoreRoundTrip(t *testing.T) {
	store := newTestRedisStore(t)
	ctx := context.Background()
	rec := sampleRecord()

	require.NoError(t, store.Persist(ctx, rec))

	got, err := store.Restore(ctx, rec.TestID, rec.UserID, rec.Kind)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, rec.AttemptID, got.AttemptID)
	assert.Equal(t, rec.Answers, got.Answers)
	assert.Equal(t, 1, got.TabSwitchCount)
	assert.False(t, got.Locked)
}

func TestRedisStoreRestoreMissing(t *testing.T) {
	store := newTestRedisStore(t)

	got, err := store.Restore(context.Background(), uuid.New(), uuid.New(), model.KindPractice)
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisStoreKeysIsolatedByKind(t *testing.T) {
	store := newTestRedisStore(t)
	ctx := context.Background()
	rec := sampleRecord()

	require.NoError(t, store.Persist(ctx, rec))

	got, err := store.Restore(ctx, rec.TestID, rec.UserID, model.KindLive)
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisStoreLockRejectsLaterPersists(t *testing.T) {
	store := newTestRedisStore(t)
	ctx := context.Background()
	rec := sampleRecord()

	require.NoError(t, store.Persist(ctx, rec))
	require.NoError(t, store.Lock(ctx, rec))

	// Any write after the lock, even an identical one, must bounce.
	err := store.Persist(ctx, rec)
	assert.ErrorIs(t, err, ErrAlreadyLocked)

	got, err := store.Restore(ctx, rec.TestID, rec.UserID, rec.Kind)
	require.NoError(t, err)
	assert.True(t, got.Locked)
}

func TestRedisStoreLockIdempotentForSamePayload(t *testing.T) {
	store := newTestRedisStore(t)
	ctx := context.Background()
	rec := sampleRecord()

	require.NoError(t, store.Lock(ctx, rec))
	assert.NoError(t, store.Lock(ctx, rec))
}

func TestRedisStoreLockRejectsDifferentPayload(t *testing.T) {
	store := newTestRedisStore(t)
	ctx := context.Background()
	rec := sampleRecord()

	require.NoError(t, store.Lock(ctx, rec))

	// Same attempt, drifted answers: a late client flush after submit.
	altered := rec
	altered.Answers = make([]model.AttemptAnswer, len(rec.Answers))
	copy(altered.Answers, rec.Answers)
	sel := 3
	altered.Answers[1].Selected = &sel

	err := store.Lock(ctx, altered)
	assert.ErrorIs(t, err, ErrStaleSubmission)

	// The committed payload is untouched.
	got, restoreErr := store.Restore(ctx, rec.TestID, rec.UserID, rec.Kind)
	require.NoError(t, restoreErr)
	assert.Nil(t, got.Answers[1].Selected)
}

func TestRedisStoreLockFingerprintIgnoresVolatileFields(t *testing.T) {
	store := newTestRedisStore(t)
	ctx := context.Background()
	rec := sampleRecord()

	require.NoError(t, store.Lock(ctx, rec))

	// StartedAt is not part of the committed payload identity.
	repeat := rec
	repeat.StartedAt = rec.StartedAt.Add(time.Second)
	assert.NoError(t, store.Lock(ctx, repeat))
}
