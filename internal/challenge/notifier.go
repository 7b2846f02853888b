package challenge

import (
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/prepdesk/exam-platform/internal/model"
	"github.com/prepdesk/exam-platform/pkg/http/ws"
)

// HubNotifier pushes challenge lifecycle events to both participants
// over their WebSocket connections. Delivery is best effort; the
// authoritative state is in the database.
type HubNotifier struct {
	hub    *ws.Hub
	logger zerolog.Logger
}

func NewHubNotifier(hub *ws.Hub, logger zerolog.Logger) *HubNotifier {
	return &HubNotifier{hub: hub, logger: logger}
}

// ChallengeResolved notifies both sides of the final outcome.
func (n *HubNotifier) ChallengeResolved(c *model.Challenge) {
	n.push(ws.TypeChallengeResolved, c)
}

// ChallengeExpired notifies both sides that the window closed unaccepted.
func (n *HubNotifier) ChallengeExpired(c *model.Challenge) {
	n.push(ws.TypeChallengeExpired, c)
}

// OpponentSubmitted tells the participant still working that the other
// side's attempt is locked in.
func (n *HubNotifier) OpponentSubmitted(c *model.Challenge, submitterID uuid.UUID) {
	msg, err := ws.NewMessage(ws.TypeOpponentSubmitted, eventPayload(c))
	if err != nil {
		n.logger.Error().Err(err).Msg("encode challenge event")
		return
	}
	if err := n.hub.SendToUser(c.OtherSide(submitterID), msg); err != nil {
		n.logger.Debug().Err(err).Str("challenge_id", c.ID.String()).Msg("opponent submit not delivered")
	}
}

// ChallengeInvited notifies the opponent of a new pending challenge.
func (n *HubNotifier) ChallengeInvited(c *model.Challenge) {
	payload := eventPayload(c)
	msg, err := ws.NewMessage(ws.TypeChallengeInvited, payload)
	if err != nil {
		n.logger.Error().Err(err).Msg("encode challenge event")
		return
	}
	if err := n.hub.SendToUser(c.OpponentID, msg); err != nil {
		n.logger.Debug().Err(err).Str("challenge_id", c.ID.String()).Msg("invite not delivered")
	}
}

// ChallengeAccepted notifies the challenger that the window is live.
func (n *HubNotifier) ChallengeAccepted(c *model.Challenge) {
	payload := eventPayload(c)
	msg, err := ws.NewMessage(ws.TypeChallengeAccepted, payload)
	if err != nil {
		n.logger.Error().Err(err).Msg("encode challenge event")
		return
	}
	if err := n.hub.SendToUser(c.ChallengerID, msg); err != nil {
		n.logger.Debug().Err(err).Str("challenge_id", c.ID.String()).Msg("accept not delivered")
	}
}

func (n *HubNotifier) push(msgType string, c *model.Challenge) {
	msg, err := ws.NewMessage(msgType, eventPayload(c))
	if err != nil {
		n.logger.Error().Err(err).Msg("encode challenge event")
		return
	}
	if err := n.hub.SendToUsers(msg, c.ChallengerID, c.OpponentID); err != nil {
		n.logger.Warn().Err(err).Str("challenge_id", c.ID.String()).Msg("event not delivered")
	}
}

func eventPayload(c *model.Challenge) ws.ChallengeEventPayload {
	p := ws.ChallengeEventPayload{
		ChallengeID: c.ID.String(),
		TestID:      c.TestID.String(),
		Status:      c.Status,
		StakeCoins:  c.StakeCoins,
	}
	if c.WinnerID != nil {
		p.WinnerID = c.WinnerID.String()
	}
	return p
}
