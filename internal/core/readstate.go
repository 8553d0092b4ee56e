package core

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/quangtran/chatchit-server/internal/store"
)

// RoomUnread is one room's entry in a user's unread summary. LastReadAt is
// nil for a never-read room, whose every foreign message counts as unread.
type RoomUnread struct {
	LastReadAt *store.Timestamp
	Unread     int
}

// ReadTracker owns per-(user, room) read positions and derives unread
// counts. Marking is monotonic; the tracker also pushes read-receipt events
// to the room's live watchers.
type ReadTracker struct {
	store    store.Store
	registry *Registry
	log      *zerolog.Logger
}

// NewReadTracker constructs a read tracker.
func NewReadTracker(st store.Store, registry *Registry, logger *zerolog.Logger) *ReadTracker {
	return &ReadTracker{store: st, registry: registry, log: logger}
}

// MarkRead raises the user's read position in a room to at, never lowering
// it, and announces the effective position to the room's watchers.
func (t *ReadTracker) MarkRead(ctx context.Context, userID, roomID string, at store.Timestamp) (store.Timestamp, error) {
	if roomID == "" {
		return 0, ErrMissingRoom
	}
	if userID == "" {
		return 0, ErrMissingAuthor
	}

	if _, err := t.store.GetRoom(ctx, roomID); err != nil {
		return 0, err
	}

	effective, err := t.store.UpsertReadState(ctx, userID, roomID, at)
	if err != nil {
		return 0, &StorageError{Err: err}
	}

	t.registry.NotifyRead(roomID, userID, effective)
	return effective, nil
}

// UnreadCount counts messages in a room authored by others after the user's
// read position (all of them when the user never read the room).
func (t *ReadTracker) UnreadCount(ctx context.Context, userID, roomID string) (int, error) {
	lastRead, err := t.store.GetReadState(ctx, userID, roomID)
	if err != nil {
		return 0, &StorageError{Err: err}
	}

	count, err := t.store.CountUnread(ctx, roomID, userID, lastRead)
	if err != nil {
		return 0, &StorageError{Err: err}
	}

	return count, nil
}

// UnreadSummary derives the user's read position and unread count for every
// known room.
func (t *ReadTracker) UnreadSummary(ctx context.Context, userID string) (map[string]RoomUnread, error) {
	rooms, err := t.store.ListRooms(ctx)
	if err != nil {
		return nil, &StorageError{Err: err}
	}

	states, err := t.store.ListUserReadStates(ctx, userID)
	if err != nil {
		return nil, &StorageError{Err: err}
	}

	summary := make(map[string]RoomUnread, len(rooms))
	for _, room := range rooms {
		var lastRead *store.Timestamp
		if at, ok := states[room.ID]; ok {
			lastRead = &at
		}

		count, err := t.store.CountUnread(ctx, room.ID, userID, lastRead)
		if err != nil {
			return nil, &StorageError{Err: err}
		}

		summary[room.ID] = RoomUnread{LastReadAt: lastRead, Unread: count}
	}

	return summary, nil
}

// RoomReadStates returns every recorded read position in a room, newest
// first. A message is seen by user U when their position is at or after the
// message's CreatedAt.
func (t *ReadTracker) RoomReadStates(ctx context.Context, roomID string) ([]store.ReadState, error) {
	if _, err := t.store.GetRoom(ctx, roomID); err != nil {
		return nil, err
	}

	states, err := t.store.ListRoomReadStates(ctx, roomID)
	if err != nil {
		return nil, &StorageError{Err: err}
	}

	return states, nil
}
