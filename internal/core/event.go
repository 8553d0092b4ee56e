package core

import "github.com/quangtran/chatchit-server/internal/store"

// EventKind is a notification the core emits to connections.
type EventKind int

const (
	// EventMessage notifies connections about a message appended to a room
	// they watch.
	EventMessage EventKind = iota
	// EventPresence delivers the current online count of a room.
	EventPresence
	// EventRead notifies that a user advanced their read position in a room.
	EventRead
	// EventError notifies a connection about a domain error.
	EventError
)

// Event is sent to connections to describe what happened in the system.
type Event struct {
	Kind       EventKind
	Room       string
	Message    *store.Message // EventMessage
	Online     int            // EventPresence
	User       string         // EventRead
	LastReadAt store.Timestamp
	Error      *CoreError
}
