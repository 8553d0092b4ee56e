package proto

import (
	"encoding/json"

	"github.com/quangtran/chatchit-server/internal/store"
)

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	InboundTypeJoin     = "join"
	InboundTypeLeave    = "leave"
	InboundTypePresence = "presence"

	OutboundTypeMessage  = "message"
	OutboundTypePresence = "presence"
	OutboundTypeRead     = "read"
	OutboundTypeError    = "error"
)

// JoinData requests to join a specific room.
type JoinData struct {
	Room string `json:"room"`
}

// LeaveData requests to leave a room.
type LeaveData struct {
	Room string `json:"room"`
}

// PresenceData asks for the current online count of a room.
type PresenceData struct {
	Room string `json:"room"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// EventMessage is a chat message delivered to subscribed clients.
type EventMessage struct {
	ID            string             `json:"id"`
	Room          string             `json:"room"`
	Author        string             `json:"author"`
	Text          string             `json:"text,omitempty"`
	Attachment    *store.Attachment  `json:"attachment,omitempty"`
	Attachments   []store.Attachment `json:"attachments,omitempty"`
	CorrelationID string             `json:"correlation_id,omitempty"`
	CreatedAt     store.Timestamp    `json:"created_at"`
}

// EventPresence reports how many connections are in a room.
type EventPresence struct {
	Room   string `json:"room"`
	Online int    `json:"online"`
}

// EventRead reports that a user advanced their read marker in a room.
type EventRead struct {
	Room       string          `json:"room"`
	User       string          `json:"user"`
	LastReadAt store.Timestamp `json:"last_read_at"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}
