package memory

import (
	"sync"
	"time"

	"livequiz/internal/app"
)

// RoomRegistry is an in-memory implementation of app.RoomRegistry. Rooms live for the
// lifetime of the process.
type RoomRegistry struct {
	now   func() time.Time
	mu    sync.RWMutex
	rooms map[string]*app.Room
}

func NewRoomRegistry() *RoomRegistry {
	return NewRoomRegistryWithClock(time.Now)
}

// NewRoomRegistryWithClock creates rooms sharing the given clock.
func NewRoomRegistryWithClock(now func() time.Time) *RoomRegistry {
	return &RoomRegistry{
		now:   now,
		rooms: make(map[string]*app.Room),
	}
}

func (r *RoomRegistry) GetOrCreate(roomID string) *app.Room {
	r.mu.RLock()
	room, ok := r.rooms[roomID]
	r.mu.RUnlock()
	if ok {
		return room
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if room, ok := r.rooms[roomID]; ok {
		return room
	}
	room = app.NewRoomWithClock(roomID, r.now)
	r.rooms[roomID] = room
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
