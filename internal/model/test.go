package model

import (
	"time"

	"github.com/google/uuid"

	"github.com/prepdesk/exam-platform/internal/catalog"
)

// Kind tags the test variant. A challenge is still a test; the variant is
// a tag, not an inheritance hierarchy.
type Kind string

const (
	KindPractice   Kind = "practice"
	KindLive       Kind = "live"
	KindAssessment Kind = "assessment"
	KindChallenge  Kind = "challenge"
)

// Test is the authored (or selector-built) definition of one attemptable
// exam. The ordered refs are fixed at creation time and never reshuffled
// during an attempt.
type Test struct {
	ID            uuid.UUID     `json:"id"`
	Title         string        `json:"title"`
	Kind          Kind          `json:"kind"`
	Refs          []catalog.Ref `json:"refs"`
	TimeBudgetSec int           `json:"time_budget_seconds"`
	Category      string        `json:"category,omitempty"`
	SubCategory   string        `json:"sub_category,omitempty"`
	StartAt       *time.Time    `json:"start_at,omitempty"`
	EndAt         *time.Time    `json:"end_at,omitempty"`
	ChallengerID  *uuid.UUID    `json:"challenger_id,omitempty"`
	OpponentID    *uuid.UUID    `json:"opponent_id,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
}

// Scheduled reports whether the test has a start/end window (live and
// challenge tests do).
func (t *Test) Scheduled() bool {
	return t.StartAt != nil || t.EndAt != nil
}

// TimeBudget returns the budget as a duration.
func (t *Test) TimeBudget() time.Duration {
	return time.Duration(t.TimeBudgetSec) * time.Second
}
