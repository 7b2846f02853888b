package model

import (
	"time"

	"github.com/google/uuid"
)

// AttemptAnswer is one flattened answer slot. QuestionID is either an
// atomic question id or a synthetic sub-question id (parentID_index);
// ParentID is set only for flattened comprehensive sub-answers.
// Selected == nil means not attempted, which is distinct from answered
// incorrectly.
type AttemptAnswer struct {
	QuestionID       string `json:"question_id"`
	Selected         *int   `json:"selected"`
	TimeTakenSeconds int    `json:"time_taken_seconds"`
	ParentID         string `json:"parent_id,omitempty"`
}

// Attempted reports whether the user committed a choice for this slot.
func (a AttemptAnswer) Attempted() bool { return a.Selected != nil }

// SessionRecord is the durable shape of one attempt, keyed by
// (testID, userID, kind). Locked flips to true exactly once and never
// back.
type SessionRecord struct {
	AttemptID      uuid.UUID       `json:"attempt_id"`
	TestID         uuid.UUID       `json:"test_id"`
	UserID         uuid.UUID       `json:"user_id"`
	Kind           Kind            `json:"kind"`
	Answers        []AttemptAnswer `json:"answers"`
	StartedAt      time.Time       `json:"started_at"`
	TabSwitchCount int             `json:"tab_switch_count"`
	Locked         bool            `json:"locked"`
}
