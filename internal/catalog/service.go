package catalog

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type store interface {
	GetQuestion(ctx context.Context, id uuid.UUID) (*Question, error)
	GetComprehensive(ctx context.Context, id uuid.UUID) (*ComprehensiveQuestion, error)
}

type bodyCache interface {
	GetResolved(ctx context.Context, ref Ref) (*Resolved, error)
	SetResolved(ctx context.Context, resolved Resolved) error
}

// Service is the read-only catalog lookup consumed by sessions, the
// selector, and the evaluator. Cache failures degrade to direct reads.
type Service struct {
	store  store
	cache  bodyCache
	logger zerolog.Logger
}

func NewService(store store, cache bodyCache, logger zerolog.Logger) *Service {
	return &Service{store: store, cache: cache, logger: logger}
}

// Get resolves a single ref to its full body.
func (s *Service) Get(ctx context.Context, ref Ref) (Resolved, error) {
	if s.cache != nil {
		if cached, err := s.cache.GetResolved(ctx, ref); err == nil && cached != nil {
			return *cached, nil
		} else if err != nil {
			s.logger.Warn().Err(err).Str("id", ref.ID.String()).Msg("catalog cache read failed")
		}
	}

	resolved := Resolved{Ref: ref}
	switch ref.Kind {
	case RefComprehensive:
		cq, err := s.store.GetComprehensive(ctx, ref.ID)
		if err != nil {
			return Resolved{}, fmt.Errorf("resolve comprehensive %s: %w", ref.ID, err)
		}
		resolved.Comprehensive = cq
	case RefQuestion:
		q, err := s.store.GetQuestion(ctx, ref.ID)
		if err != nil {
			return Resolved{}, fmt.Errorf("resolve question %s: %w", ref.ID, err)
		}
		resolved.Question = q
	default:
		return Resolved{}, fmt.Errorf("resolve %s: unknown ref kind %q", ref.ID, ref.Kind)
	}

	if s.cache != nil {
		if err := s.cache.SetResolved(ctx, resolved); err != nil {
			s.logger.Warn().Err(err).Str("id", ref.ID.String()).Msg("catalog cache write failed")
		}
	}
	return resolved, nil
}

// ResolveAll resolves every ref in order. A ref that cannot be resolved is
// omitted from the map; callers that must not fail wholesale (evaluation)
// treat the gap as not-attempted.
func (s *Service) ResolveAll(ctx context.Context, refs []Ref) (map[uuid.UUID]Resolved, error) {
	out := make(map[uuid.UUID]Resolved, len(refs))
	for _, ref := range refs {
		resolved, err := s.Get(ctx, ref)
		if err != nil {
			s.logger.Warn().Err(err).Str("id", ref.ID.String()).Msg("unresolvable question ref")
			continue
		}
		out[ref.ID] = resolved
	}
	if len(out) == 0 && len(refs) > 0 {
		return nil, fmt.Errorf("none of %d refs resolved", len(refs))
	}
	return out, nil
}
