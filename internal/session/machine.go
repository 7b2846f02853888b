package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/prepdesk/exam-platform/internal/catalog"
	"github.com/prepdesk/exam-platform/internal/model"
)

// State of one attempt machine. Locked and Expired are terminal.
type State string

const (
	StateLoading   State = "loading"
	StateRestoring State = "restoring"
	StateFresh     State = "fresh"
	StateRunning   State = "running"
	StateLocked    State = "locked"
	StateExpired   State = "expired"
)

// Clock is the trusted time source. Remaining time is always computed
// against it, never against a client-supplied timestamp.
type Clock interface {
	Now() time.Time
}

// RealClock wraps time.Now.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// SubmitTrigger distinguishes how an attempt got locked.
const (
	TriggerManual = "manual"
	TriggerExpiry = "expiry"
)

// SubmitHook runs after a lock commits, outside the machine's lock. Used
// by the service to evaluate and archive the attempt.
type SubmitHook func(ctx context.Context, rec model.SessionRecord, trigger string)

// Machine owns the lifecycle of one attempt: Loading → Restoring|Fresh →
// Running → Locked. It is the single owner of the mutable session state;
// ticks, answer changes and navigation all go through it.
type Machine struct {
	mu sync.Mutex

	test     *model.Test
	resolved map[uuid.UUID]catalog.Resolved
	rec      model.SessionRecord
	current  int
	remaining time.Duration

	state     State
	submitted bool

	syncer *Syncer
	clock  Clock
	hook   SubmitHook
	logger zerolog.Logger
}

// Load resolves prior state for (test, user) and produces a machine in
// Running state, or fails terminally:
//   - a locked prior session is a hard ErrAlreadyLocked (caller redirects
//     to results, never restarts)
//   - a scheduled window not yet open is ErrWindowNotOpen
//   - a fully elapsed window with no session ever started is
//     ErrWindowClosed (machine parked in Expired)
func Load(
	ctx context.Context,
	test *model.Test,
	resolved map[uuid.UUID]catalog.Resolved,
	userID uuid.UUID,
	syncer *Syncer,
	clock Clock,
	hook SubmitHook,
	logger zerolog.Logger,
) (*Machine, error) {
	if clock == nil {
		clock = RealClock{}
	}
	m := &Machine{
		test:     test,
		resolved: resolved,
		state:    StateLoading,
		syncer:   syncer,
		clock:    clock,
		hook:     hook,
		logger:   logger,
	}

	now := clock.Now()
	prior, err := syncer.Restore(ctx, test.ID, userID, test.Kind)
	if err != nil {
		return nil, fmt.Errorf("restore session: %w", err)
	}

	if prior != nil && prior.Locked {
		m.state = StateLocked
		m.rec = *prior
		return m, ErrAlreadyLocked
	}

	if test.StartAt != nil && now.Before(*test.StartAt) {
		return nil, ErrWindowNotOpen
	}
	if prior == nil && test.EndAt != nil && now.After(*test.EndAt) {
		m.state = StateExpired
		return m, ErrWindowClosed
	}

	if prior != nil {
		m.state = StateRestoring
		m.rec = *prior
		elapsed := now.Sub(prior.StartedAt)
		m.remaining = test.TimeBudget() - elapsed
		if m.remaining <= 0 {
			// Deadline passed while the session was abandoned: lock it
			// now instead of re-entering Running.
			m.remaining = 0
			m.state = StateRunning
			if err := m.submit(ctx, TriggerExpiry); err != nil && !errors.Is(err, ErrAlreadyLocked) {
				return nil, err
			}
			return m, ErrAlreadyLocked
		}
	} else {
		m.state = StateFresh
		answers, err := model.Flatten(test.Refs, resolved)
		if err != nil {
			return nil, err
		}
		m.rec = model.SessionRecord{
			AttemptID: uuid.New(),
			TestID:    test.ID,
			UserID:    userID,
			Kind:      test.Kind,
			Answers:   answers,
			StartedAt: now,
		}
		m.remaining = test.TimeBudget()
		// Persist immediately so a crash before the first answer still
		// leaves a resumable record.
		if err := m.syncer.Persist(ctx, m.rec); err != nil {
			return nil, fmt.Errorf("persist fresh session: %w", err)
		}
	}

	m.state = StateRunning
	return m, nil
}

// State returns the current lifecycle state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Record returns a copy of the owned session record.
func (m *Machine) Record() model.SessionRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Remaining returns the countdown still on the clock.
func (m *Machine) Remaining() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.remaining
}

// CurrentIndex returns the displayed question slot.
func (m *Machine) CurrentIndex() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

func (m *Machine) snapshotLocked() model.SessionRecord {
	rec := m.rec
	rec.Answers = make([]model.AttemptAnswer, len(m.rec.Answers))
	copy(rec.Answers, m.rec.Answers)
	return rec
}

// SelectAnswer records the user's choice for the current question. A nil
// index clears the slot back to not-attempted.
func (m *Machine) SelectAnswer(ctx context.Context, selected *int) error {
	m.mu.Lock()
	if m.state != StateRunning {
		m.mu.Unlock()
		return ErrNotRunning
	}
	m.rec.Answers[m.current].Selected = selected
	snapshot := m.snapshotLocked()
	m.mu.Unlock()

	m.persistAsync(ctx, snapshot)
	return nil
}

// ClearAnswer resets the current slot to not-attempted.
func (m *Machine) ClearAnswer(ctx context.Context) error {
	return m.SelectAnswer(ctx, nil)
}

// Next advances to the following question. Per-question timers are not
// shared or reset by navigation.
func (m *Machine) Next() error { return m.jump(+1, false) }

// Previous steps back one question.
func (m *Machine) Previous() error { return m.jump(-1, false) }

// JumpTo displays an arbitrary question slot.
func (m *Machine) JumpTo(index int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateRunning {
		return ErrNotRunning
	}
	if index < 0 || index >= len(m.rec.Answers) {
		return fmt.Errorf("jump index %d out of range [0,%d)", index, len(m.rec.Answers))
	}
	m.current = index
	return nil
}

func (m *Machine) jump(delta int, wrap bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateRunning {
		return ErrNotRunning
	}
	next := m.current + delta
	if next < 0 || next >= len(m.rec.Answers) {
		if !wrap {
			return nil // stay on the boundary question
		}
		next = (next + len(m.rec.Answers)) % len(m.rec.Answers)
	}
	m.current = next
	return nil
}

// RecordTabSwitch bumps the visibility-change counter. Advisory telemetry
// only; it never blocks submission.
func (m *Machine) RecordTabSwitch() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateRunning {
		return
	}
	m.rec.TabSwitchCount++
}

// Tick advances the session by one second: only the currently displayed
// question accrues time, and the countdown drops. Hitting zero submits
// exactly once with the expiry trigger.
func (m *Machine) Tick(ctx context.Context) error {
	m.mu.Lock()
	if m.state != StateRunning {
		m.mu.Unlock()
		return ErrNotRunning
	}
	m.rec.Answers[m.current].TimeTakenSeconds++
	m.remaining -= time.Second
	expired := m.remaining <= 0
	if expired {
		m.remaining = 0
	}
	m.mu.Unlock()

	if expired {
		if err := m.submit(ctx, TriggerExpiry); err != nil && !errors.Is(err, ErrAlreadyLocked) {
			return err
		}
	}
	return nil
}

// Submit locks the attempt on user action. Calling it again (or racing
// with expiry) is a silent no-op.
func (m *Machine) Submit(ctx context.Context) error {
	return m.submit(ctx, TriggerManual)
}

func (m *Machine) submit(ctx context.Context, trigger string) error {
	m.mu.Lock()
	if m.submitted || m.state == StateLocked {
		m.mu.Unlock()
		return nil
	}
	if m.state != StateRunning {
		m.mu.Unlock()
		return ErrNotRunning
	}
	m.submitted = true
	m.rec.Locked = true
	m.state = StateLocked
	snapshot := m.snapshotLocked()
	m.mu.Unlock()

	if err := m.syncer.Lock(ctx, snapshot); err != nil {
		if errors.Is(err, ErrStaleSubmission) {
			return err
		}
		return fmt.Errorf("lock attempt: %w", err)
	}

	if m.hook != nil {
		m.hook(ctx, snapshot, trigger)
	}
	return nil
}

func (m *Machine) persistAsync(ctx context.Context, snapshot model.SessionRecord) {
	go func() {
		// Persistence must not block the interaction path; the syncer
		// already retries with backoff before giving up.
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := m.syncer.Persist(pctx, snapshot); err != nil {
			m.logger.Error().Err(err).
				Str("attempt_id", snapshot.AttemptID.String()).
				Msg("background persist failed")
		}
	}()
}
