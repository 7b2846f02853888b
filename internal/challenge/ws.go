package challenge

import (
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/prepdesk/exam-platform/internal/identity"
	httperrors "github.com/prepdesk/exam-platform/pkg/http/errors"
	"github.com/prepdesk/exam-platform/pkg/http/ws"
)

// WSHandler upgrades the challenge event stream. The socket is
// push-only apart from keepalive pings; all mutations go through the
// REST surface.
type WSHandler struct {
	hub       *ws.Hub
	validator *identity.Validator
	upgrader  websocket.Upgrader
	logger    zerolog.Logger
}

func NewWSHandler(hub *ws.Hub, validator *identity.Validator, allowedOrigins []string, logger zerolog.Logger) *WSHandler {
	h := &WSHandler{hub: hub, validator: validator, logger: logger}
	h.upgrader = websocket.Upgrader{
		CheckOrigin:     originChecker(allowedOrigins),
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	return h
}

// originChecker admits non-browser clients (no Origin header) and the
// configured web origins. An empty allowlist admits everything.
func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(allowed) == 0 {
			return true
		}
		for _, a := range allowed {
			if strings.EqualFold(a, origin) {
				return true
			}
		}
		return false
	}
}

// HandleEventStream handles GET /ws/challenges. Browsers cannot set
// headers on WebSocket upgrades, so the token rides a query parameter.
func (h *WSHandler) HandleEventStream(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		httperrors.RespondUnauthorized(w, httperrors.ErrCodeInvalidToken, "Missing token")
		return
	}

	claims, err := h.validator.Validate(token)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket token validation failed")
		httperrors.RespondUnauthorized(w, httperrors.ErrCodeInvalidToken, "Invalid token")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	wsConn := ws.NewConnection(conn, h.logger)
	h.hub.RegisterConnection(claims.UserID, wsConn)

	go wsConn.WritePump()

	wsConn.ReadPump(func(msg ws.Message) error {
		switch msg.Type {
		case ws.TypePing:
			pong, err := ws.NewMessage(ws.TypePong, struct{}{})
			if err != nil {
				return err
			}
			pong.RequestID = msg.RequestID
			return wsConn.Send(pong)
		default:
			errMsg, err := ws.NewMessage(ws.TypeError, ws.ErrorPayload{
				Code:    httperrors.ErrCodeUnknownMessageType,
				Message: "Unknown message type: " + msg.Type,
			})
			if err != nil {
				return err
			}
			return wsConn.Send(errMsg)
		}
	})

	h.hub.UnregisterConnection(claims.UserID)
}
