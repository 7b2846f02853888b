package model

import (
	"time"

	"github.com/google/uuid"
)

// QuestionOutcome is the evaluated verdict for one question or
// comprehensive sub-question.
type QuestionOutcome struct {
	QuestionID string `json:"question_id"`
	ParentID   string `json:"parent_id,omitempty"`
	Category   string `json:"category"`
	Attempted  bool   `json:"attempted"`
	Correct    bool   `json:"correct"`
	TimeSpent  int    `json:"time_spent_seconds"`
}

// CategoryScore accumulates per-category aggregates.
type CategoryScore struct {
	Score          int `json:"score"`
	TotalQuestions int `json:"total_questions"`
	Attempted      int `json:"attempted"`
	TimeSpentSec   int `json:"time_spent_seconds"`
}

// EvaluatedResult is the scored outcome of one locked attempt.
type EvaluatedResult struct {
	AttemptID      uuid.UUID                `json:"attempt_id"`
	TestID         uuid.UUID                `json:"test_id"`
	UserID         uuid.UUID                `json:"user_id"`
	Outcomes       []QuestionOutcome        `json:"outcomes"`
	Categories     map[string]CategoryScore `json:"categories"`
	TotalCorrect   int                      `json:"total_correct"`
	TotalScore     int                      `json:"total_score"`
	TabSwitchCount int                      `json:"tab_switch_count"`
	SubmittedAt    time.Time                `json:"submitted_at"`
}
