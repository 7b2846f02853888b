package catalog

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
)

type stubCatalogStore struct {
	questions     map[uuid.UUID]*Question
	comprehensive map[uuid.UUID]*ComprehensiveQuestion
	questionReads int
}

func newStubCatalogStore() *stubCatalogStore {
	return &stubCatalogStore{
		questions:     map[uuid.UUID]*Question{},
		comprehensive: map[uuid.UUID]*ComprehensiveQuestion{},
	}
}

func (s *stubCatalogStore) GetQuestion(_ context.Context, id uuid.UUID) (*Question, error) {
	s.questionReads++
	q, ok := s.questions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return q, nil
}

func (s *stubCatalogStore) GetComprehensive(_ context.Context, id uuid.UUID) (*ComprehensiveQuestion, error) {
	cq, ok := s.comprehensive[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cq, nil
}

func newCacheForTest(t *testing.T) *Cache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client, time.Minute)
}

func TestServiceGetReadsThroughCache(t *testing.T) {
	store := newStubCatalogStore()
	id := uuid.New()
	store.questions[id] = &Question{ID: id, Prompt: "p", Options: []string{"a", "b"}, AnswerIndex: 1, Category: "math"}

	svc := NewService(store, newCacheForTest(t), zerolog.Nop())
	ref := Ref{ID: id, Kind: RefQuestion}
	ctx := context.Background()

	first, err := svc.Get(ctx, ref)
	require.NoError(t, err)
	require.NotNil(t, first.Question)
	assert.Equal(t, 1, store.questionReads)

	// Second resolve is served from the cache.
	second, err := svc.Get(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, first.Question.Prompt, second.Question.Prompt)
	assert.Equal(t, 1, store.questionReads)
}

func TestServiceGetComprehensive(t *testing.T) {
	store := newStubCatalogStore()
	id := uuid.New()
	store.comprehensive[id] = &ComprehensiveQuestion{
		ID:    id,
		Title: "passage",
		SubQuestions: []Question{
			{Prompt: "sub1", Options: []string{"a", "b"}},
			{Prompt: "sub2", Options: []string{"a", "b"}},
		},
	}

	svc := NewService(store, nil, zerolog.Nop())
	resolved, err := svc.Get(context.Background(), Ref{ID: id, Kind: RefComprehensive})
	require.NoError(t, err)
	require.NotNil(t, resolved.Comprehensive)
	assert.Len(t, resolved.Comprehensive.SubQuestions, 2)
}

func TestResolveAllSkipsUnresolvableRefs(t *testing.T) {
	store := newStubCatalogStore()
	knownID := uuid.New()
	store.questions[knownID] = &Question{ID: knownID, Options: []string{"a", "b"}}
	goneID := uuid.New()

	svc := NewService(store, nil, zerolog.Nop())
	resolved, err := svc.ResolveAll(context.Background(), []Ref{
		{ID: knownID, Kind: RefQuestion},
		{ID: goneID, Kind: RefQuestion},
	})
	require.NoError(t, err)
	assert.Len(t, resolved, 1)
	_, ok := resolved[goneID]
	assert.False(t, ok)
}

func TestResolveAllFailsWhenNothingResolves(t *testing.T) {
	svc := NewService(newStubCatalogStore(), nil, zerolog.Nop())
	_, err := svc.ResolveAll(context.Background(), []Ref{{ID: uuid.New(), Kind: RefQuestion}})
	assert.Error(t, err)
}
