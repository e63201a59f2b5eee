package redis

import (
	"context"
	"sync"
	"time"

	"livequiz/internal/app"

	"github.com/redis/go-redis/v9"
)

const ownershipTimeout = 2 * time.Second

// claimScript sets the owner marker when it is missing and refreshes its TTL when this
// instance already holds it. It returns the current owner.
var claimScript = redis.NewScript(`
local owner = redis.call('GET', KEYS[1])
if not owner then
	redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
	return ARGV[1]
end
if owner == ARGV[1] then
	redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return owner
`)

// RoomRegistry is a Redis-aware implementation of app.RoomRegistry and app.RoomOwnership.
// Rooms live in the local map of every instance that serves them, but only the instance
// holding the owner marker applies state changes. The marker expires when its owner stops
// touching the room, after which the next instance to issue a command takes over.
type RoomRegistry struct {
	client     *redis.Client
	ttl        time.Duration
	instanceID string

	mu    sync.RWMutex
	rooms map[string]*app.Room
}

func NewRoomRegistry(client *redis.Client, ttl time.Duration, instanceID string) *RoomRegistry {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RoomRegistry{
		client:     client,
		ttl:        ttl,
		instanceID: instanceID,
		rooms:      make(map[string]*app.Room),
	}
}

func (r *RoomRegistry) GetOrCreate(roomID string) *app.Room {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[roomID]
	if !ok {
		room = app.NewRoom(roomID)
		r.rooms[roomID] = room
	}
	return room
}

func (r *RoomRegistry) Get(roomID string) (*app.Room, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[roomID]
	return room, ok
}

func (r *RoomRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// Claim takes the room when nobody owns it and refreshes the marker when this instance does.
// It is called for every state change, so an owner keeps its marker alive while the room
// receives commands.
func (r *RoomRegistry) Claim(ctx context.Context, roomID string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, ownershipTimeout)
	defer cancel()

	owner, err := claimScript.Run(ctx, r.client, []string{RoomKey(roomID)}, r.instanceID, r.ttl.Milliseconds()).Text()
	if err != nil {
		return "", false, err
	}
	return owner, owner == r.instanceID, nil
}

// Owner returns the instance holding the room, or "" when the marker expired.
func (r *RoomRegistry) Owner(ctx context.Context, roomID string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, ownershipTimeout)
	defer cancel()

	owner, err := r.client.Get(ctx, RoomKey(roomID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	return owner, err
}

// RoomKey is the owner marker key for a room.
func RoomKey(roomID string) string {
	return "livequiz:room:" + roomID
}
