package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"livequiz/internal/app"
	"livequiz/internal/domain"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Gateway-only event types; room events live in domain.
const (
	eventJoined = "joined"
	eventError  = "error"
)

// Inbound message types.
const (
	msgStartQuestion  = "startQuestion"
	msgEndQuestion    = "endQuestion"
	msgSubmitAnswer   = "submitAnswer"
	msgGetLeaderboard = "getLeaderboard"
)

// CapabilityVerifier checks moderator tokens presented at join time.
type CapabilityVerifier interface {
	Verify(token, roomID string) error
}

type WSHandler struct {
	service  *app.LiveService
	hub      *Hub
	caps     CapabilityVerifier
	opts     GatewayOptions
	upgrader websocket.Upgrader
	log      *zap.Logger
}

func NewWSHandler(service *app.LiveService, hub *Hub, caps CapabilityVerifier, opts GatewayOptions, logger *zap.Logger) *WSHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts = opts.withDefaults()
	return &WSHandler{
		service: service,
		hub:     hub,
		caps:    caps,
		opts:    opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(opts.AllowedOrigins),
		},
		log: logger.Named("ws"),
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type startQuestionPayload struct {
	QuestionID string `json:"questionId"`
}

type submitAnswerPayload struct {
	QuestionID  string `json:"questionId"`
	OptionIndex *int   `json:"optionIndex"`
	// ClientStartTime is unix millis as observed by the client.
	ClientStartTime int64 `json:"clientStartTime"`
}

type leaderboardRequest struct {
	Limit int `json:"limit"`
}

type joinedPayload struct {
	RoomID      string             `json:"roomId"`
	Moderator   bool               `json:"moderator"`
	Participant domain.Participant `json:"participant"`
	Room        domain.RoomView    `json:"room"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades HTTP requests to websockets and joins the connection to a room.
// Query: roomId, participantId, name, and moderatorToken for the moderator connection.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	roomID := q.Get("roomId")
	participantID := q.Get("participantId")
	nickname := q.Get("name")
	token := q.Get("moderatorToken")

	moderator := false
	switch {
	case roomID == "":
		http.Error(w, "missing roomId", http.StatusBadRequest)
		return
	case token != "":
		if h.caps == nil || h.caps.Verify(token, roomID) != nil {
			http.Error(w, domain.ErrInvalidCapability.Error(), http.StatusForbidden)
			return
		}
		moderator = true
	case participantID == "":
		http.Error(w, "missing participantId", http.StatusBadRequest)
		return
	}
	if nickname == "" {
		nickname = participantID
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", zap.Error(err))
		return
	}

	joined := joinedPayload{RoomID: roomID, Moderator: moderator}
	if moderator {
		h.service.AttachModerator(roomID)
		// a moderator only receives what is sent to the whole room
		participantID = ""
	} else {
		p, err := h.service.Join(r.Context(), roomID, participantID, nickname)
		if err != nil {
			h.log.Error("join failed", zap.String("room", roomID), zap.String("participant", participantID), zap.Error(err))
			_ = conn.WriteJSON(domain.Event{Type: eventError, Payload: errorPayload{Message: "join failed"}})
			_ = conn.Close()
			return
		}
		joined.Participant = p
	}
	if view, err := h.service.RoomView(r.Context(), roomID, participantID); err == nil {
		joined.Room = view
	}

	logger := h.log.With(zap.String("room", roomID), zap.String("participant", participantID), zap.Bool("moderator", moderator))
	client := newClient(conn, h.hub, roomID, participantID, moderator, h.opts, logger)
	h.reply(client, domain.Event{Type: eventJoined, Payload: joined})
	h.hub.Register(client)

	go client.writePump()
	client.readPump(h.dispatch)
}

func (h *WSHandler) dispatch(c *Client, raw []byte) {
	var inbound inboundMessage
	if err := json.Unmarshal(raw, &inbound); err != nil {
		h.reply(c, domain.Event{Type: eventError, Payload: errorPayload{Message: "invalid message"}})
		return
	}

	switch inbound.Type {
	case msgStartQuestion:
		if !h.authorize(c, inbound.Type) {
			return
		}
		var payload startQuestionPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil || payload.QuestionID == "" {
			h.reply(c, domain.Event{Type: eventError, Payload: errorPayload{Message: "invalid startQuestion payload"}})
			return
		}
		if _, err := h.service.StartQuestion(c.ctx, c.roomID, payload.QuestionID); err != nil {
			c.log.Warn("start question failed", zap.String("question", payload.QuestionID), zap.Error(err))
			msg := "start question failed"
			if errors.Is(err, domain.ErrQuestionNotFound) {
				msg = domain.ErrQuestionNotFound.Error()
			}
			h.reply(c, domain.Event{Type: eventError, Payload: errorPayload{Message: msg}})
		}

	case msgEndQuestion:
		if !h.authorize(c, inbound.Type) {
			return
		}
		if changed, err := h.service.EndQuestion(c.ctx, c.roomID); err != nil || !changed {
			c.log.Debug("end question ignored", zap.Error(err))
		}

	case msgSubmitAnswer:
		if c.moderator {
			c.log.Debug("moderator submissions are ignored")
			return
		}
		var payload submitAnswerPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil || payload.OptionIndex == nil {
			c.log.Debug("invalid submitAnswer payload", zap.Error(err))
			return
		}
		sub := domain.AnswerSubmission{QuestionID: payload.QuestionID, OptionIndex: *payload.OptionIndex}
		if payload.ClientStartTime > 0 {
			sub.ClientStartTime = time.UnixMilli(payload.ClientStartTime)
		}
		if _, err := h.service.SubmitAnswer(c.ctx, c.roomID, c.participantID, sub); err != nil {
			c.log.Error("submit answer failed", zap.Error(err))
		}

	case msgGetLeaderboard:
		var req leaderboardRequest
		if len(inbound.Payload) > 0 {
			_ = json.Unmarshal(inbound.Payload, &req)
		}
		lb, err := h.service.Leaderboard(c.ctx, c.roomID, req.Limit)
		if err != nil {
			c.log.Error("leaderboard read failed", zap.Error(err))
			h.reply(c, domain.Event{Type: eventError, Payload: errorPayload{Message: "leaderboard unavailable"}})
			return
		}
		h.reply(c, domain.Event{Type: domain.EventLeaderboardUpdate, Payload: lb})

	default:
		h.reply(c, domain.Event{Type: eventError, Payload: errorPayload{Message: "unsupported message type"}})
	}
}

// authorize reports whether c may issue a moderator command. Rejections are dropped without
// notifying anyone.
func (h *WSHandler) authorize(c *Client, msgType string) bool {
	if c.moderator {
		return true
	}
	c.log.Debug("moderator command from participant dropped", zap.String("type", msgType), zap.Error(domain.ErrNotModerator))
	return false
}

func (h *WSHandler) reply(c *Client, ev domain.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		c.log.Error("marshal reply", zap.Error(err))
		return
	}
	c.enqueue(data)
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		_, ok := set[u.Scheme+"://"+u.Host]
		return ok
	}
}
