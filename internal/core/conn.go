package core

// Conn is one live persistent connection as seen by the core layer. The
// transport drains Events; the registry never blocks on a slow connection.
type Conn struct {
	ID     string
	UserID string
	Events chan *Event
}

// NewConn constructs a connection with an initialized event channel.
func NewConn(id, userID string) *Conn {
	return &Conn{
		ID:     id,
		UserID: userID,
		Events: make(chan *Event, 32),
	}
}

// send delivers an event without blocking. Events to a consumer that has
// fallen behind are dropped; the client recovers through history paging.
func (c *Conn) send(ev *Event) {
	select {
	case c.Events <- ev:
	default:
	}
}
