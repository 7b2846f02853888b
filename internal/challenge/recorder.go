package challenge

import (
	"context"

	"github.com/google/uuid"

	"github.com/prepdesk/exam-platform/internal/model"
)

// Recorder is the submission pipeline's view of the challenge side:
// look up the challenge behind a test and feed it a finished result.
type Recorder struct {
	svc      *Service
	resolver *Resolver
}

func NewRecorder(svc *Service, resolver *Resolver) *Recorder {
	return &Recorder{svc: svc, resolver: resolver}
}

func (r *Recorder) GetByTest(ctx context.Context, testID uuid.UUID) (*model.Challenge, error) {
	return r.svc.GetByTest(ctx, testID)
}

func (r *Recorder) RecordResult(ctx context.Context, challengeID uuid.UUID, res model.EvaluatedResult) error {
	return r.resolver.RecordResult(ctx, challengeID, res)
}
