package store

import (
	"context"
)

// Message is a persisted chat message. Messages are append-only: once written
// they are never mutated or deleted.
type Message struct {
	ID            string
	RoomID        string
	AuthorID      string
	CreatedAt     Timestamp
	Text          string
	Attachment    *Attachment
	Attachments   []Attachment
	CorrelationID string
}

// Attachment describes a file referenced by a message. The binary itself
// lives in external storage; only the reference is persisted here.
type Attachment struct {
	Kind     string `json:"kind,omitempty"`
	URL      string `json:"url"`
	FileName string `json:"file_name,omitempty"`
	Size     int64  `json:"size,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
}

// HasContent reports whether the message carries text or at least one
// attachment.
func (m *Message) HasContent() bool {
	if m.Text != "" {
		return true
	}
	if m.Attachment != nil && m.Attachment.URL != "" {
		return true
	}
	return len(m.Attachments) > 0
}

// Room is reference data owned by the room-administration service. This core
// only reads it.
type Room struct {
	ID        string
	Name      string
	IsPrivate bool
	CreatedAt Timestamp
}

// MemberRole is a room membership role. Role limits (one owner, three vices)
// are enforced by the administration service, not here.
type MemberRole string

const (
	RoleOwner  MemberRole = "owner"
	RoleAdmin  MemberRole = "admin"
	RoleVice   MemberRole = "vice"
	RoleMember MemberRole = "member"
)

// ReadState is the last-read position of one user in one room.
type ReadState struct {
	UserID     string
	RoomID     string
	LastReadAt Timestamp
}

// MessageStore persists the room-partitioned message log. The implementation
// must support efficient range scans over the (roomID, createdAt) prefix.
type MessageStore interface {
	// InsertMessage appends a message. ID and CreatedAt must already be
	// assigned by the caller (the message log, never the client).
	InsertMessage(ctx context.Context, msg *Message) error

	// PageMessages returns up to limit messages of a room with
	// createdAt < before (all when before is nil), ascending by createdAt
	// with insertion order breaking ties.
	PageMessages(ctx context.Context, roomID string, before *Timestamp, limit int) ([]Message, error)

	// CountUnread counts messages in a room authored by someone other than
	// userID with createdAt strictly after the given bound. A nil bound
	// counts every foreign message in the room.
	CountUnread(ctx context.Context, roomID, userID string, after *Timestamp) (int, error)
}

// ReadStateStore persists per-(user, room) last-read timestamps.
type ReadStateStore interface {
	// UpsertReadState raises the stored last-read position to at, never
	// lowering it, and returns the effective stored value.
	UpsertReadState(ctx context.Context, userID, roomID string, at Timestamp) (Timestamp, error)

	// GetReadState returns the stored position, or nil when the user has
	// never read the room.
	GetReadState(ctx context.Context, userID, roomID string) (*Timestamp, error)

	// ListRoomReadStates returns every recorded read state in a room.
	ListRoomReadStates(ctx context.Context, roomID string) ([]ReadState, error)

	// ListUserReadStates returns roomID -> lastReadAt for one user.
	ListUserReadStates(ctx context.Context, userID string) (map[string]Timestamp, error)
}

// RoomStore reads room reference data and seeds it in development setups.
type RoomStore interface {
	// GetRoom returns ErrRoomNotFound when the room does not exist.
	GetRoom(ctx context.Context, id string) (*Room, error)

	ListRooms(ctx context.Context) ([]Room, error)

	// CountMembers returns the membership size of a room.
	CountMembers(ctx context.Context, roomID string) (int, error)

	// CreateRoom and AddMember exist for the seed command and tests; the
	// administration service owns this data in production.
	CreateRoom(ctx context.Context, name string, isPrivate bool) (*Room, error)
	AddMember(ctx context.Context, roomID, userID string, role MemberRole) error
}

// Store aggregates all storage interfaces.
type Store interface {
	MessageStore
	ReadStateStore
	RoomStore

	// Close closes the underlying database connection.
	Close() error
}
