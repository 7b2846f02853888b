package session

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/prepdesk/exam-platform/internal/model"
)

var (
	// ErrAlreadyLocked rejects writes into a finished attempt.
	ErrAlreadyLocked = errors.New("attempt is already locked")
	// ErrStaleSubmission rejects a second lock whose payload disagrees
	// with the first committed one.
	ErrStaleSubmission = errors.New("stale submission: payload differs from committed lock")
	// ErrSyncFailure is returned once persist retries are exhausted.
	ErrSyncFailure = errors.New("session sync failed")
	// ErrNotRunning rejects answer mutations outside the Running state.
	ErrNotRunning = errors.New("session is not running")
	// ErrWindowNotOpen refuses entry before a scheduled start.
	ErrWindowNotOpen = errors.New("scheduled window has not opened")
	// ErrWindowClosed marks a scheduled test whose window elapsed with no
	// session ever started.
	ErrWindowClosed = errors.New("scheduled window has closed")
)

// AttemptStore is the durable-storage capability behind AnswerSync: high
// frequency Persist, Restore on load, and a compare-and-set Lock that can
// never be undone.
type AttemptStore interface {
	// Persist writes the current record. It must fail with
	// ErrAlreadyLocked once Lock has committed.
	Persist(ctx context.Context, rec model.SessionRecord) error
	// Restore returns the latest persisted record, or nil if none exists.
	Restore(ctx context.Context, testID, userID uuid.UUID, kind model.Kind) (*model.SessionRecord, error)
	// Lock commits the final payload exactly once. A repeat call with an
	// identical payload is a no-op; a different payload fails with
	// ErrStaleSubmission.
	Lock(ctx context.Context, rec model.SessionRecord) error
}
