package sqlite

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"

	"github.com/quangtran/chatchit-server/internal/store"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func insertMsg(t *testing.T, s *SQLiteStore, room, author string, at store.Timestamp, text string) store.Message {
	t.Helper()

	msg := store.Message{
		ID:        uuid.NewString(),
		RoomID:    room,
		AuthorID:  author,
		CreatedAt: at,
		Text:      text,
	}
	if err := s.InsertMessage(context.Background(), &msg); err != nil {
		t.Fatalf("insert message: %v", err)
	}
	return msg
}

func TestPageMessages(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := store.Timestamp(1700000000000)
	for i := 0; i < 10; i++ {
		insertMsg(t, s, "general", "alice", base+store.Timestamp(i*1000), fmt.Sprintf("msg-%d", i))
	}
	// Another room should never leak into the page.
	insertMsg(t, s, "random", "bob", base+5000, "other room")

	t.Run("latest page ascending", func(t *testing.T) {
		msgs, err := s.PageMessages(ctx, "general", nil, 5)
		if err != nil {
			t.Fatalf("page: %v", err)
		}
		if len(msgs) != 5 {
			t.Fatalf("expected 5 messages, got %d", len(msgs))
		}
		for i, msg := range msgs {
			if want := fmt.Sprintf("msg-%d", 5+i); msg.Text != want {
				t.Errorf("index %d: got %q, want %q", i, msg.Text, want)
			}
		}
	})

	t.Run("cursor excludes the bound", func(t *testing.T) {
		before := base + 5000
		msgs, err := s.PageMessages(ctx, "general", &before, 10)
		if err != nil {
			t.Fatalf("page: %v", err)
		}
		if len(msgs) != 5 {
			t.Fatalf("expected 5 messages, got %d", len(msgs))
		}
		if msgs[len(msgs)-1].Text != "msg-4" {
			t.Errorf("last message should be msg-4, got %q", msgs[len(msgs)-1].Text)
		}
	})

	t.Run("empty room", func(t *testing.T) {
		msgs, err := s.PageMessages(ctx, "nope", nil, 10)
		if err != nil {
			t.Fatalf("page: %v", err)
		}
		if len(msgs) != 0 {
			t.Fatalf("expected no messages, got %d", len(msgs))
		}
	})
}

func TestPageMessagesTieBreak(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Same created_at; insertion order must be preserved.
	at := store.Timestamp(1700000000000)
	first := insertMsg(t, s, "general", "alice", at, "first")
	second := insertMsg(t, s, "general", "bob", at, "second")

	msgs, err := s.PageMessages(ctx, "general", nil, 10)
	if err != nil {
		t.Fatalf("page: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].ID != first.ID || msgs[1].ID != second.ID {
		t.Fatalf("tie-break lost insertion order: %q then %q", msgs[0].Text, msgs[1].Text)
	}
}

func TestInsertMessageAttachments(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	msg := store.Message{
		ID:        uuid.NewString(),
		RoomID:    "general",
		AuthorID:  "alice",
		CreatedAt: store.Now(),
		Attachment: &store.Attachment{
			Kind: "image",
			URL:  "https://files/pic.png",
		},
		Attachments: []store.Attachment{
			{URL: "https://files/a.pdf", FileName: "a.pdf", Size: 1024},
			{URL: "https://files/b.pdf", FileName: "b.pdf"},
		},
		CorrelationID: "corr-1",
	}
	if err := s.InsertMessage(ctx, &msg); err != nil {
		t.Fatalf("insert: %v", err)
	}

	msgs, err := s.PageMessages(ctx, "general", nil, 1)
	if err != nil {
		t.Fatalf("page: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	got := msgs[0]
	if got.Attachment == nil || got.Attachment.URL != "https://files/pic.png" {
		t.Errorf("attachment not round-tripped: %+v", got.Attachment)
	}
	if len(got.Attachments) != 2 || got.Attachments[0].FileName != "a.pdf" {
		t.Errorf("attachments not round-tripped: %+v", got.Attachments)
	}
	if got.CorrelationID != "corr-1" {
		t.Errorf("correlation id lost: %q", got.CorrelationID)
	}
}

func TestUpsertReadStateMonotonic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	effective, err := s.UpsertReadState(ctx, "alice", "general", 2000)
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if effective != 2000 {
		t.Fatalf("expected 2000, got %d", effective)
	}

	// A stale marker must not move the position backwards.
	effective, err = s.UpsertReadState(ctx, "alice", "general", 1000)
	if err != nil {
		t.Fatalf("stale upsert: %v", err)
	}
	if effective != 2000 {
		t.Fatalf("stale upsert moved position: %d", effective)
	}

	effective, err = s.UpsertReadState(ctx, "alice", "general", 3000)
	if err != nil {
		t.Fatalf("advance upsert: %v", err)
	}
	if effective != 3000 {
		t.Fatalf("expected 3000, got %d", effective)
	}
}

func TestGetReadState(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	got, err := s.GetReadState(ctx, "alice", "general")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for unread room, got %d", *got)
	}

	if _, err := s.UpsertReadState(ctx, "alice", "general", 5000); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	got, err = s.GetReadState(ctx, "alice", "general")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || *got != 5000 {
		t.Fatalf("expected 5000, got %v", got)
	}
}

func TestCountUnread(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := store.Timestamp(1700000000000)
	insertMsg(t, s, "general", "bob", base+1000, "one")
	insertMsg(t, s, "general", "bob", base+2000, "two")
	insertMsg(t, s, "general", "alice", base+3000, "mine")
	insertMsg(t, s, "general", "bob", base+4000, "three")

	t.Run("no read state counts everything foreign", func(t *testing.T) {
		count, err := s.CountUnread(ctx, "general", "alice", nil)
		if err != nil {
			t.Fatalf("count: %v", err)
		}
		if count != 3 {
			t.Fatalf("expected 3, got %d", count)
		}
	})

	t.Run("bound is exclusive", func(t *testing.T) {
		after := base + 2000
		count, err := s.CountUnread(ctx, "general", "alice", &after)
		if err != nil {
			t.Fatalf("count: %v", err)
		}
		if count != 1 {
			t.Fatalf("expected 1, got %d", count)
		}
	})

	t.Run("own messages never count", func(t *testing.T) {
		count, err := s.CountUnread(ctx, "general", "bob", nil)
		if err != nil {
			t.Fatalf("count: %v", err)
		}
		if count != 1 {
			t.Fatalf("expected 1, got %d", count)
		}
	})
}

func TestRooms(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	room, err := s.CreateRoom(ctx, "General", false)
	if err != nil {
		t.Fatalf("create room: %v", err)
	}

	got, err := s.GetRoom(ctx, room.ID)
	if err != nil {
		t.Fatalf("get room: %v", err)
	}
	if got.Name != "General" || got.IsPrivate {
		t.Fatalf("unexpected room: %+v", got)
	}

	if _, err := s.GetRoom(ctx, "missing"); err == nil {
		t.Fatal("expected error for missing room")
	}

	if err := s.AddMember(ctx, room.ID, "alice", store.RoleOwner); err != nil {
		t.Fatalf("add member: %v", err)
	}
	if err := s.AddMember(ctx, room.ID, "bob", store.RoleMember); err != nil {
		t.Fatalf("add member: %v", err)
	}
	// Re-adding is a no-op.
	if err := s.AddMember(ctx, room.ID, "bob", store.RoleMember); err != nil {
		t.Fatalf("re-add member: %v", err)
	}

	count, err := s.CountMembers(ctx, room.ID)
	if err != nil {
		t.Fatalf("count members: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 members, got %d", count)
	}
}

func TestListRoomReadStates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.UpsertReadState(ctx, "alice", "general", 1000); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if _, err := s.UpsertReadState(ctx, "bob", "general", 3000); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if _, err := s.UpsertReadState(ctx, "alice", "random", 9000); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	states, err := s.ListRoomReadStates(ctx, "general")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(states) != 2 {
		t.Fatalf("expected 2 states, got %d", len(states))
	}
	if states[0].UserID != "bob" || states[0].LastReadAt != 3000 {
		t.Fatalf("expected bob first (newest), got %+v", states[0])
	}

	byRoom, err := s.ListUserReadStates(ctx, "alice")
	if err != nil {
		t.Fatalf("list user: %v", err)
	}
	if byRoom["general"] != 1000 || byRoom["random"] != 9000 {
		t.Fatalf("unexpected user read states: %+v", byRoom)
	}
}
