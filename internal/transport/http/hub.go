package http

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"livequiz/internal/domain"
	"livequiz/internal/telemetry"

	"go.uber.org/zap"
)

const subscribeTimeout = 5 * time.Second

// Relay carries room events to gateway instances that share the same rooms.
type Relay interface {
	Publish(ctx context.Context, roomID, to string, ev domain.Event) error
	Subscribe(ctx context.Context, roomID string, handler func(to string, event []byte)) (cancel func(), err error)
}

// relaySub is a room's relay subscription. cancel stays nil while the subscription is
// being set up.
type relaySub struct {
	cancel func()
}

// Hub tracks which connections are joined to which room and fans events out to them.
// It implements app.Broadcaster.
type Hub struct {
	relay   Relay
	metrics *telemetry.Metrics
	log     *zap.Logger

	mu     sync.RWMutex
	rooms  map[string]map[*Client]struct{}
	relays map[string]*relaySub
}

// NewHub creates a hub. relay may be nil for single-instance deployments.
func NewHub(relay Relay, metrics *telemetry.Metrics, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		relay:   relay,
		metrics: metrics,
		log:     logger.Named("hub"),
		rooms:   make(map[string]map[*Client]struct{}),
		relays:  make(map[string]*relaySub),
	}
}

// Register joins a client to its room. The first local connection of a room starts the relay
// subscription for it; the subscription is set up without holding the hub lock.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	members, ok := h.rooms[c.roomID]
	var sub *relaySub
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[c.roomID] = members
		if h.relay != nil {
			sub = &relaySub{}
			h.relays[c.roomID] = sub
		}
	}
	members[c] = struct{}{}
	size := len(members)
	h.mu.Unlock()

	h.metrics.ConnectionOpened()
	h.log.Debug("connection registered",
		zap.String("room", c.roomID),
		zap.String("participant", c.participantID),
		zap.Bool("moderator", c.moderator),
		zap.Int("members", size))
	if sub != nil {
		h.subscribe(c.roomID, sub)
	}
}

// Unregister removes a client. It is safe to call more than once.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.rooms[c.roomID]
	if !ok {
		return
	}
	if _, ok := members[c]; !ok {
		return
	}
	delete(members, c)
	h.metrics.ConnectionClosed()
	if len(members) == 0 {
		delete(h.rooms, c.roomID)
		if sub, ok := h.relays[c.roomID]; ok {
			if sub.cancel != nil {
				sub.cancel()
			}
			delete(h.relays, c.roomID)
		}
	}
}

// subscribe attaches sub to the relay. If the room emptied or was recreated meanwhile the
// fresh subscription is dropped.
func (h *Hub) subscribe(roomID string, sub *relaySub) {
	ctx, cancel := context.WithTimeout(context.Background(), subscribeTimeout)
	defer cancel()
	stop, err := h.relay.Subscribe(ctx, roomID, func(to string, event []byte) {
		h.deliver(roomID, to, event)
	})

	h.mu.Lock()
	defer h.mu.Unlock()
	current := h.relays[roomID] == sub
	if err != nil {
		h.log.Error("relay subscribe failed", zap.String("room", roomID), zap.Error(err))
		if current {
			delete(h.relays, roomID)
		}
		return
	}
	if !current {
		stop()
		return
	}
	sub.cancel = stop
}

// Broadcast sends an event to every connection joined to the room.
func (h *Hub) Broadcast(ctx context.Context, roomID string, ev domain.Event) {
	h.emit(ctx, roomID, "", ev)
}

// SendTo sends an event only to the connections of one participant.
func (h *Hub) SendTo(ctx context.Context, roomID, participantID string, ev domain.Event) {
	if participantID == "" {
		return
	}
	h.emit(ctx, roomID, participantID, ev)
}

func (h *Hub) emit(ctx context.Context, roomID, to string, ev domain.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.log.Error("marshal event", zap.String("type", ev.Type), zap.Error(err))
		return
	}
	h.deliver(roomID, to, data)

	if h.relay != nil {
		if err := h.relay.Publish(ctx, roomID, to, ev); err != nil {
			h.log.Warn("relay publish failed", zap.String("room", roomID), zap.String("type", ev.Type), zap.Error(err))
		}
	}
}

func (h *Hub) deliver(roomID, to string, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[roomID] {
		if to != "" && c.participantID != to {
			continue
		}
		c.enqueue(data)
	}
}

// RoomSize returns the number of local connections joined to a room.
func (h *Hub) RoomSize(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}
