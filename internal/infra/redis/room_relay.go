package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"livequiz/internal/domain"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	channelPrefix        = "livequiz:room-events:"
	commandChannelPrefix = "livequiz:instance-commands:"
	publishTimeout       = 5 * time.Second
)

// relayPayload is the message published to Redis for cross-instance fan-out.
type relayPayload struct {
	Origin string          `json:"origin"`
	To     string          `json:"to,omitempty"`
	Event  json.RawMessage `json:"event"`
	At     int64           `json:"at"`
}

// RoomRelay forwards room events between gateway instances over Redis pub/sub.
// Each instance only subscribes to rooms that have local connections. It also carries room
// commands to the instance that owns a room, on one command channel per instance.
type RoomRelay struct {
	client     *redis.Client
	instanceID string
	logger     *zap.Logger
}

func NewRoomRelay(client *redis.Client, instanceID string, logger *zap.Logger) *RoomRelay {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RoomRelay{client: client, instanceID: instanceID, logger: logger}
}

// Publish sends an event to every other instance serving the room. An empty to means the
// whole room; otherwise only the named participant's connections receive it.
func (r *RoomRelay) Publish(ctx context.Context, roomID, to string, ev domain.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	body, err := json.Marshal(relayPayload{Origin: r.instanceID, To: to, Event: data, At: time.Now().UnixMilli()})
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	return r.client.Publish(ctx, channelPrefix+roomID, body).Err()
}

// Subscribe delivers events published by other instances for the room. The handler receives
// the encoded event envelope. ctx bounds the subscription handshake only; call cancel to stop
// the subscription.
func (r *RoomRelay) Subscribe(ctx context.Context, roomID string, handler func(to string, event []byte)) (cancel func(), err error) {
	return r.listen(ctx, channelPrefix+roomID, func(_ context.Context, payload string) {
		var p relayPayload
		if err := json.Unmarshal([]byte(payload), &p); err != nil {
			r.logger.Warn("dropping malformed relay message", zap.String("room", roomID), zap.Error(err))
			return
		}
		if p.Origin == r.instanceID {
			return
		}
		handler(p.To, p.Event)
	})
}

// Forward publishes a room command on the owner's command channel. It fails with
// domain.ErrOwnerUnavailable when no instance listens there.
func (r *RoomRelay) Forward(ctx context.Context, owner string, cmd domain.RoomCommand) error {
	body, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	receivers, err := r.client.Publish(ctx, commandChannelPrefix+owner, body).Result()
	if err != nil {
		return err
	}
	if receivers == 0 {
		return domain.ErrOwnerUnavailable
	}
	return nil
}

// ListenCommands applies commands forwarded to this instance, one at a time in arrival order.
// ctx bounds the subscription handshake only; call cancel to stop listening.
func (r *RoomRelay) ListenCommands(ctx context.Context, apply func(context.Context, domain.RoomCommand) error) (cancel func(), err error) {
	return r.listen(ctx, commandChannelPrefix+r.instanceID, func(ctx context.Context, payload string) {
		var cmd domain.RoomCommand
		if err := json.Unmarshal([]byte(payload), &cmd); err != nil {
			r.logger.Warn("dropping malformed room command", zap.Error(err))
			return
		}
		if err := apply(ctx, cmd); err != nil {
			r.logger.Warn("room command failed",
				zap.String("room", cmd.RoomID), zap.String("kind", string(cmd.Kind)), zap.Error(err))
		}
	})
}

func (r *RoomRelay) listen(ctx context.Context, channel string, handle func(context.Context, string)) (func(), error) {
	runCtx, stop := context.WithCancel(context.Background())
	pubsub := r.client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		stop()
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}
	ch := pubsub.Channel()
	go func() {
		defer pubsub.Close()
		for {
			select {
			case <-runCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				handle(runCtx, msg.Payload)
			}
		}
	}()
	return stop, nil
}
