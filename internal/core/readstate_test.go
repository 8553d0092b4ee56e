package core

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/quangtran/chatchit-server/internal/store"
	"github.com/quangtran/chatchit-server/internal/store/sqlite"
)

func newTracker(t *testing.T) (*ReadTracker, *sqlite.SQLiteStore, *Registry) {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	registry := NewRegistry()
	logger := zerolog.Nop()
	return NewReadTracker(st, registry, &logger), st, registry
}

func seedRoom(t *testing.T, st *sqlite.SQLiteStore, name string) string {
	t.Helper()

	room, err := st.CreateRoom(context.Background(), name, false)
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	return room.ID
}

func seedMessage(t *testing.T, st *sqlite.SQLiteStore, room, author string, at store.Timestamp) {
	t.Helper()

	msg := store.Message{
		ID:        uuid.NewString(),
		RoomID:    room,
		AuthorID:  author,
		CreatedAt: at,
		Text:      "x",
	}
	if err := st.InsertMessage(context.Background(), &msg); err != nil {
		t.Fatalf("insert message: %v", err)
	}
}

func TestMarkReadMonotonic(t *testing.T) {
	tracker, st, _ := newTracker(t)
	ctx := context.Background()
	room := seedRoom(t, st, "General")

	effective, err := tracker.MarkRead(ctx, "alice", room, 2000)
	if err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if effective != 2000 {
		t.Fatalf("expected 2000, got %d", effective)
	}

	// Stale marks keep the newer position.
	effective, err = tracker.MarkRead(ctx, "alice", room, 500)
	if err != nil {
		t.Fatalf("stale mark read: %v", err)
	}
	if effective != 2000 {
		t.Fatalf("stale mark moved position to %d", effective)
	}
}

func TestMarkReadUnknownRoom(t *testing.T) {
	tracker, _, _ := newTracker(t)

	_, err := tracker.MarkRead(context.Background(), "alice", "missing", 1000)
	if !errors.Is(err, store.ErrRoomNotFound) {
		t.Fatalf("expected ErrRoomNotFound, got %v", err)
	}
}

func TestMarkReadNotifiesWatchers(t *testing.T) {
	tracker, st, registry := newTracker(t)
	ctx := context.Background()
	room := seedRoom(t, st, "General")

	watcher := NewConn("w", "bob")
	registry.Register(watcher)
	registry.Join(watcher, room)
	mustEventOfKind(t, watcher, EventPresence)

	if _, err := tracker.MarkRead(ctx, "alice", room, 7000); err != nil {
		t.Fatalf("mark read: %v", err)
	}

	ev := mustEventOfKind(t, watcher, EventRead)
	if ev.Room != room || ev.User != "alice" || ev.LastReadAt != 7000 {
		t.Fatalf("unexpected read event: %+v", ev)
	}
}

func TestUnreadCount(t *testing.T) {
	tracker, st, _ := newTracker(t)
	ctx := context.Background()
	room := seedRoom(t, st, "General")

	base := store.Timestamp(1700000000000)
	seedMessage(t, st, room, "bob", base+1000)
	seedMessage(t, st, room, "bob", base+2000)
	seedMessage(t, st, room, "alice", base+3000)

	// Never-read room: every foreign message is unread.
	count, err := tracker.UnreadCount(ctx, "alice", room)
	if err != nil {
		t.Fatalf("unread: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2, got %d", count)
	}

	if _, err := tracker.MarkRead(ctx, "alice", room, base+1000); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	count, err = tracker.UnreadCount(ctx, "alice", room)
	if err != nil {
		t.Fatalf("unread: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 after partial read, got %d", count)
	}

	if _, err := tracker.MarkRead(ctx, "alice", room, base+3000); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	count, err = tracker.UnreadCount(ctx, "alice", room)
	if err != nil {
		t.Fatalf("unread: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 after full read, got %d", count)
	}
}

func TestUnreadSummary(t *testing.T) {
	tracker, st, _ := newTracker(t)
	ctx := context.Background()

	general := seedRoom(t, st, "General")
	random := seedRoom(t, st, "Random")

	base := store.Timestamp(1700000000000)
	seedMessage(t, st, general, "bob", base+1000)
	seedMessage(t, st, general, "bob", base+2000)
	seedMessage(t, st, random, "carol", base+1000)

	if _, err := tracker.MarkRead(ctx, "alice", general, base+1000); err != nil {
		t.Fatalf("mark read: %v", err)
	}

	summary, err := tracker.UnreadSummary(ctx, "alice")
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if len(summary) != 2 {
		t.Fatalf("expected 2 rooms, got %d", len(summary))
	}

	g := summary[general]
	if g.Unread != 1 || g.LastReadAt == nil || *g.LastReadAt != base+1000 {
		t.Fatalf("unexpected general entry: %+v", g)
	}

	r := summary[random]
	if r.Unread != 1 || r.LastReadAt != nil {
		t.Fatalf("unexpected random entry: %+v", r)
	}
}

func TestRoomReadStates(t *testing.T) {
	tracker, st, _ := newTracker(t)
	ctx := context.Background()
	room := seedRoom(t, st, "General")

	if _, err := tracker.MarkRead(ctx, "alice", room, 1000); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if _, err := tracker.MarkRead(ctx, "bob", room, 2000); err != nil {
		t.Fatalf("mark read: %v", err)
	}

	states, err := tracker.RoomReadStates(ctx, room)
	if err != nil {
		t.Fatalf("read states: %v", err)
	}
	if len(states) != 2 {
		t.Fatalf("expected 2 states, got %d", len(states))
	}
	if states[0].UserID != "bob" {
		t.Fatalf("expected newest first, got %+v", states)
	}

	if _, err := tracker.RoomReadStates(ctx, "missing"); !errors.Is(err, store.ErrRoomNotFound) {
		t.Fatalf("expected ErrRoomNotFound, got %v", err)
	}
}
