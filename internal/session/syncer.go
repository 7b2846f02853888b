package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/prepdesk/exam-platform/internal/metrics"
	"github.com/prepdesk/exam-platform/internal/model"
)

// Syncer is the AnswerSync bridge between a running session and the
// attempt store. Transient persist failures are retried with a bounded
// backoff; only exhaustion surfaces to the caller, since in-memory state
// must never be lost to a flaky connection.
type Syncer struct {
	store   AttemptStore
	retries int
	backoff time.Duration
	logger  zerolog.Logger
}

func NewSyncer(store AttemptStore, retries int, backoff time.Duration, logger zerolog.Logger) *Syncer {
	if retries <= 0 {
		retries = 3
	}
	if backoff <= 0 {
		backoff = 250 * time.Millisecond
	}
	return &Syncer{store: store, retries: retries, backoff: backoff, logger: logger}
}

// Persist writes the record, retrying transient failures. ErrAlreadyLocked
// is terminal and never retried.
func (s *Syncer) Persist(ctx context.Context, rec model.SessionRecord) error {
	var lastErr error
	for attempt := 0; attempt < s.retries; attempt++ {
		if attempt > 0 {
			metrics.SyncRetries.Inc()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.backoff * time.Duration(attempt)):
			}
		}
		err := s.store.Persist(ctx, rec)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrAlreadyLocked) {
			return err
		}
		lastErr = err
		s.logger.Warn().Err(err).
			Str("attempt_id", rec.AttemptID.String()).
			Int("try", attempt+1).
			Msg("persist failed")
	}
	metrics.SyncFailures.Inc()
	return fmt.Errorf("%w: %v", ErrSyncFailure, lastErr)
}

// Restore proxies the store lookup.
func (s *Syncer) Restore(ctx context.Context, testID, userID uuid.UUID, kind model.Kind) (*model.SessionRecord, error) {
	return s.store.Restore(ctx, testID, userID, kind)
}

// Lock commits the final payload. Stale duplicates are counted and passed
// through for the boundary to reject.
func (s *Syncer) Lock(ctx context.Context, rec model.SessionRecord) error {
	err := s.store.Lock(ctx, rec)
	if errors.Is(err, ErrStaleSubmission) {
		metrics.StaleSubmissions.Inc()
	}
	return err
}
