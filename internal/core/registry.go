package core

import (
	"sync"

	"github.com/quangtran/chatchit-server/internal/store"
)

// Registry maps live connections to the rooms they watch and drives both
// message fan-out and presence. Presence is ephemeral, process-local state:
// it is rebuilt from scratch on restart and a connection leaves every room
// synchronously when it disconnects.
//
// Lock scope is per room: the registry mutex guards only the two maps, each
// room serializes its own membership changes and fan-out, so one busy room
// does not stall the others. Lock order is registry then room, never the
// reverse.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*liveRoom
	conns map[*Conn]map[string]struct{}
}

type liveRoom struct {
	mu     sync.Mutex
	reaped bool
	conns  map[*Conn]struct{}
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[string]*liveRoom),
		conns: make(map[*Conn]map[string]struct{}),
	}
}

// Register makes a connection known to the registry. Idempotent.
func (r *Registry) Register(conn *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[conn]; !ok {
		r.conns[conn] = make(map[string]struct{})
	}
}

// Join subscribes a connection to a room and publishes the room's new
// presence count to every watcher. Idempotent: re-joining neither double
// counts nor republishes.
func (r *Registry) Join(conn *Conn, roomID string) {
	r.mu.Lock()
	joined := r.conns[conn]
	if joined == nil {
		joined = make(map[string]struct{})
		r.conns[conn] = joined
	}
	if _, ok := joined[roomID]; ok {
		r.mu.Unlock()
		return
	}
	joined[roomID] = struct{}{}
	r.mu.Unlock()

	// The room pointer is taken under the registry lock but joined under its
	// own lock. A concurrent Leave can reap the room in between, so a reaped
	// room is retried against a fresh map entry.
	for {
		r.mu.Lock()
		room := r.rooms[roomID]
		if room == nil {
			room = &liveRoom{conns: make(map[*Conn]struct{})}
			r.rooms[roomID] = room
		}
		r.mu.Unlock()

		room.mu.Lock()
		if room.reaped {
			room.mu.Unlock()
			continue
		}
		room.conns[conn] = struct{}{}
		room.publishPresence(roomID)
		room.mu.Unlock()
		return
	}
}

// Leave unsubscribes a connection from one room and publishes the updated
// presence count. Leaving a room the connection never joined is a no-op.
func (r *Registry) Leave(conn *Conn, roomID string) {
	r.mu.Lock()
	joined := r.conns[conn]
	if _, ok := joined[roomID]; !ok {
		r.mu.Unlock()
		return
	}
	delete(joined, roomID)

	room := r.rooms[roomID]
	if room == nil {
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()

	room.mu.Lock()
	delete(room.conns, conn)
	room.publishPresence(roomID)
	room.mu.Unlock()

	r.reapIfEmpty(roomID)
}

// LeaveAll removes a connection from every room it watches, publishing
// presence per affected room. It runs synchronously during teardown: once it
// returns, no later fan-out can reach the connection.
func (r *Registry) LeaveAll(conn *Conn) {
	r.mu.Lock()
	joined := r.conns[conn]
	delete(r.conns, conn)

	affected := make([]string, 0, len(joined))
	for roomID := range joined {
		affected = append(affected, roomID)
	}
	rooms := make([]*liveRoom, len(affected))
	for i, roomID := range affected {
		rooms[i] = r.rooms[roomID]
	}
	r.mu.Unlock()

	for i, room := range rooms {
		if room == nil {
			continue
		}
		room.mu.Lock()
		delete(room.conns, conn)
		room.publishPresence(affected[i])
		room.mu.Unlock()
		r.reapIfEmpty(affected[i])
	}
}

// Presence returns the current online count of a room without mutating
// anything.
func (r *Registry) Presence(roomID string) int {
	r.mu.RLock()
	room := r.rooms[roomID]
	r.mu.RUnlock()

	if room == nil {
		return 0
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	return len(room.conns)
}

// FanOut pushes an appended message to every connection watching its room.
// Connections not joined to the room never observe the event.
func (r *Registry) FanOut(msg store.Message) {
	r.mu.RLock()
	room := r.rooms[msg.RoomID]
	r.mu.RUnlock()

	if room == nil {
		return
	}

	ev := &Event{Kind: EventMessage, Room: msg.RoomID, Message: &msg}
	room.mu.Lock()
	for conn := range room.conns {
		conn.send(ev)
	}
	room.mu.Unlock()
}

// NotifyRead pushes a read-receipt update to every connection watching the
// room.
func (r *Registry) NotifyRead(roomID, userID string, lastReadAt store.Timestamp) {
	r.mu.RLock()
	room := r.rooms[roomID]
	r.mu.RUnlock()

	if room == nil {
		return
	}

	ev := &Event{Kind: EventRead, Room: roomID, User: userID, LastReadAt: lastReadAt}
	room.mu.Lock()
	for conn := range room.conns {
		conn.send(ev)
	}
	room.mu.Unlock()
}

// publishPresence pushes the room's current count to its remaining watchers.
// Caller holds the room lock.
func (lr *liveRoom) publishPresence(roomID string) {
	ev := &Event{Kind: EventPresence, Room: roomID, Online: len(lr.conns)}
	for conn := range lr.conns {
		conn.send(ev)
	}
}

// reapIfEmpty drops a room whose live set emptied so the map does not grow
// with every room ever visited.
func (r *Registry) reapIfEmpty(roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room := r.rooms[roomID]
	if room == nil {
		return
	}
	room.mu.Lock()
	empty := len(room.conns) == 0
	if empty {
		room.reaped = true
	}
	room.mu.Unlock()
	if empty {
		delete(r.rooms, roomID)
	}
}
