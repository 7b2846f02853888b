package model

import (
	"time"

	"github.com/google/uuid"
)

// ChallengeStatus lifecycle states. Running is implicit between accepted
// and completed.
const (
	ChallengePending   = "pending"
	ChallengeAccepted  = "accepted"
	ChallengeCompleted = "completed"
	ChallengeExpired   = "expired"
)

// Challenge is the shared record of one two-participant wagered test.
// WinnerID stays nil for ties; the stake moves exactly once, in the same
// transaction that marks the challenge completed.
type Challenge struct {
	ID           uuid.UUID  `json:"id"`
	TestID       uuid.UUID  `json:"test_id"`
	ChallengerID uuid.UUID  `json:"challenger_id"`
	OpponentID   uuid.UUID  `json:"opponent_id"`
	StakeCoins   int        `json:"stake_coins"`
	Status       string     `json:"status"`
	WindowStart  time.Time  `json:"window_start"`
	WindowEnd    time.Time  `json:"window_end"`
	WinnerID     *uuid.UUID `json:"winner_id,omitempty"`
	ResolvedAt   *time.Time `json:"resolved_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Participant reports whether userID is one of the two sides.
func (c *Challenge) Participant(userID uuid.UUID) bool {
	return c.ChallengerID == userID || c.OpponentID == userID
}

// OtherSide returns the opposing participant id.
func (c *Challenge) OtherSide(userID uuid.UUID) uuid.UUID {
	if c.ChallengerID == userID {
		return c.OpponentID
	}
	return c.ChallengerID
}
