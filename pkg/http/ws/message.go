package ws

import "encoding/json"

// MessageType constants for the challenge event protocol.
const (
	// Client -> Server
	TypePing = "ping"

	// Server -> Client
	TypePong                = "pong"
	TypeChallengeInvited    = "challenge_invited"
	TypeChallengeAccepted   = "challenge_accepted"
	TypeOpponentSubmitted   = "opponent_submitted"
	TypeChallengeResolved   = "challenge_resolved"
	TypeChallengeExpired    = "challenge_expired"
	TypeError               = "error"
)

// Message wraps all WebSocket payloads with type and optional request ID.
type Message struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	RequestID string          `json:"request_id,omitempty"`
}

// ChallengeEventPayload is the server push for challenge lifecycle
// changes.
type ChallengeEventPayload struct {
	ChallengeID string `json:"challenge_id"`
	TestID      string `json:"test_id"`
	Status      string `json:"status"`
	WinnerID    string `json:"winner_id,omitempty"`
	StakeCoins  int    `json:"stake_coins,omitempty"`
}

// ErrorPayload carries a structured failure to the client.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewMessage marshals a payload into a typed message.
func NewMessage(msgType string, payload any) (Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Message{}, err
	}
	return Message{Type: msgType, Payload: data}, nil
}
