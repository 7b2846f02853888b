package selector

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/prepdesk/exam-platform/internal/catalog"
)

// Request asks for a number of atomic and comprehensive questions from one
// category.
type Request struct {
	Category           string `json:"category"`
	CountAtomic        int    `json:"count_atomic"`
	CountComprehensive int    `json:"count_comprehensive"`
}

type store interface {
	CountByCategory(ctx context.Context, category string, kind catalog.RefKind) (int, error)
	PickForCategory(ctx context.Context, category string, kind catalog.RefKind, limit int) ([]uuid.UUID, error)
	MarkChosen(ctx context.Context, kind catalog.RefKind, ids []uuid.UUID, at time.Time) error
}

type recencyStore interface {
	Recent(ctx context.Context, category string, kind catalog.RefKind) (map[uuid.UUID]struct{}, error)
	Remember(ctx context.Context, category string, kind catalog.RefKind, ids []uuid.UUID) error
}

type clock interface {
	Now() time.Time
}

// Service builds the ordered question set for a new challenge test. Other
// test kinds carry a pre-authored fixed set and never go through here.
type Service struct {
	store   store
	recency recencyStore
	clock   clock
	logger  zerolog.Logger

	// rng is not safe for concurrent use; every shuffle goes through rngMu.
	rngMu sync.Mutex
	rng   *rand.Rand
}

// Options configures the selector.
type Options struct {
	Clock clock
	Seed  int64
}

func NewService(store store, recency recencyStore, opts Options, logger zerolog.Logger) *Service {
	c := opts.Clock
	if c == nil {
		c = realClock{}
	}
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Service{
		store:   store,
		recency: recency,
		clock:   c,
		rng:     rand.New(rand.NewSource(seed)),
		logger:  logger,
	}
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Select returns an ordered, deduplicated ref list whose length equals the
// sum of all requested counts. Availability is verified per category before
// any selection is committed; selected rows get their last-chosen marker
// bumped so concurrent or near-future calls drift toward a different set.
func (s *Service) Select(ctx context.Context, reqs []Request) ([]catalog.Ref, error) {
	total := 0
	for _, req := range reqs {
		if req.CountAtomic < 0 || req.CountComprehensive < 0 {
			return nil, fmt.Errorf("negative count for category %q", req.Category)
		}
		total += req.CountAtomic + req.CountComprehensive
	}
	if total == 0 {
		return nil, ErrEmptySelection
	}

	// Availability pass first: nothing partial if any category falls short.
	for _, req := range reqs {
		if err := s.checkAvailability(ctx, req.Category, catalog.RefQuestion, req.CountAtomic); err != nil {
			return nil, err
		}
		if err := s.checkAvailability(ctx, req.Category, catalog.RefComprehensive, req.CountComprehensive); err != nil {
			return nil, err
		}
	}

	var (
		all    []catalog.Ref
		chosen = map[catalog.RefKind][]uuid.UUID{}
	)
	for _, req := range reqs {
		atomicIDs, err := s.draw(ctx, req.Category, catalog.RefQuestion, req.CountAtomic)
		if err != nil {
			return nil, err
		}
		compIDs, err := s.draw(ctx, req.Category, catalog.RefComprehensive, req.CountComprehensive)
		if err != nil {
			return nil, err
		}
		chosen[catalog.RefQuestion] = append(chosen[catalog.RefQuestion], atomicIDs...)
		chosen[catalog.RefComprehensive] = append(chosen[catalog.RefComprehensive], compIDs...)

		// Mix atomic and comprehensive within the category.
		categoryRefs := make([]catalog.Ref, 0, len(atomicIDs)+len(compIDs))
		for _, id := range atomicIDs {
			categoryRefs = append(categoryRefs, catalog.Ref{ID: id, Kind: catalog.RefQuestion})
		}
		for _, id := range compIDs {
			categoryRefs = append(categoryRefs, catalog.Ref{ID: id, Kind: catalog.RefComprehensive})
		}
		s.shuffle(categoryRefs)

		if s.recency != nil {
			if err := s.recency.Remember(ctx, req.Category, catalog.RefQuestion, atomicIDs); err != nil {
				s.logger.Warn().Err(err).Str("category", req.Category).Msg("recency remember failed")
			}
			if err := s.recency.Remember(ctx, req.Category, catalog.RefComprehensive, compIDs); err != nil {
				s.logger.Warn().Err(err).Str("category", req.Category).Msg("recency remember failed")
			}
		}

		all = append(all, categoryRefs...)
	}

	// Final order is fully randomized, not grouped by category.
	s.shuffle(all)

	now := s.clock.Now()
	for kind, ids := range chosen {
		if err := s.store.MarkChosen(ctx, kind, ids, now); err != nil {
			s.logger.Warn().Err(err).Str("kind", string(kind)).Msg("mark chosen failed")
		}
	}

	return all, nil
}

func (s *Service) checkAvailability(ctx context.Context, category string, kind catalog.RefKind, want int) error {
	if want == 0 {
		return nil
	}
	have, err := s.store.CountByCategory(ctx, category, kind)
	if err != nil {
		return fmt.Errorf("count %s for %q: %w", kind, category, err)
	}
	if have < want {
		return &InsufficientError{Category: category, Kind: kind, Requested: want, Available: have}
	}
	return nil
}

// draw samples count distinct ids, preferring candidates that no other
// in-flight selection has claimed recently. Availability was verified
// upstream so falling back to recently chosen ids is always allowed.
func (s *Service) draw(ctx context.Context, category string, kind catalog.RefKind, count int) ([]uuid.UUID, error) {
	if count == 0 {
		return nil, nil
	}

	// Over-fetch so the recency filter has room to work.
	candidates, err := s.store.PickForCategory(ctx, category, kind, count*3)
	if err != nil {
		return nil, fmt.Errorf("pick %s for %q: %w", kind, category, err)
	}
	if len(candidates) < count {
		return nil, &InsufficientError{Category: category, Kind: kind, Requested: count, Available: len(candidates)}
	}

	var recent map[uuid.UUID]struct{}
	if s.recency != nil {
		recent, err = s.recency.Recent(ctx, category, kind)
		if err != nil {
			s.logger.Warn().Err(err).Str("category", category).Msg("recency read failed")
			recent = nil
		}
	}

	fresh := make([]uuid.UUID, 0, len(candidates))
	stale := make([]uuid.UUID, 0, len(candidates))
	for _, id := range candidates {
		if _, seen := recent[id]; seen {
			stale = append(stale, id)
		} else {
			fresh = append(fresh, id)
		}
	}

	s.shuffleIDs(fresh)
	s.shuffleIDs(stale)

	picked := append(fresh, stale...)[:count]
	return picked, nil
}

func (s *Service) shuffleIDs(ids []uuid.UUID) {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	s.rng.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
}

func (s *Service) shuffle(refs []catalog.Ref) {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	s.rng.Shuffle(len(refs), func(i, j int) { refs[i], refs[j] = refs[j], refs[i] })
}
