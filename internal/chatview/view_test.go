package chatview

import (
	"testing"

	"github.com/quangtran/chatchit-server/internal/store"
)

func confirmed(id, room, author, text, correlationID string, at store.Timestamp) store.Message {
	return store.Message{
		ID:            id,
		RoomID:        room,
		AuthorID:      author,
		Text:          text,
		CorrelationID: correlationID,
		CreatedAt:     at,
	}
}

func TestSendThenEchoCollapses(t *testing.T) {
	v := NewView("general", "alice")

	correlationID := v.Send("hello", nil)
	items := v.Messages()
	if len(items) != 1 || items[0].State != StatePending {
		t.Fatalf("expected one pending item, got %+v", items)
	}

	// The append response confirms the pending item in place.
	if !v.ApplyConfirmed(confirmed("m1", "general", "alice", "hello", correlationID, 1000)) {
		t.Fatal("confirmation should be new to the view")
	}
	items = v.Messages()
	if len(items) != 1 {
		t.Fatalf("echo duplicated the message: %d items", len(items))
	}
	if items[0].State != StateConfirmed || items[0].Message.ID != "m1" {
		t.Fatalf("unexpected item: %+v", items[0])
	}

	// The feed echo of the same message is a no-op.
	if v.ApplyConfirmed(confirmed("m1", "general", "alice", "hello", correlationID, 1000)) {
		t.Fatal("feed echo should be deduplicated by id")
	}
	if len(v.Messages()) != 1 {
		t.Fatalf("feed echo duplicated the message")
	}
}

func TestEchoBeforeResponse(t *testing.T) {
	v := NewView("general", "alice")

	correlationID := v.Send("hello", nil)

	// Feed echo can race ahead of the REST response; correlation id wins.
	v.ApplyConfirmed(confirmed("m1", "general", "alice", "hello", correlationID, 1000))
	v.ApplyConfirmed(confirmed("m1", "general", "alice", "hello", correlationID, 1000))

	if len(v.Messages()) != 1 {
		t.Fatalf("race produced duplicates: %d items", len(v.Messages()))
	}
}

func TestForeignMessagesCountUnreadWhenClosed(t *testing.T) {
	v := NewView("general", "alice")

	v.ApplyConfirmed(confirmed("m1", "general", "bob", "hi", "", 1000))
	v.ApplyConfirmed(confirmed("m2", "general", "bob", "there", "", 2000))
	v.ApplyConfirmed(confirmed("m3", "general", "alice", "mine", "", 3000))

	if got := v.Unread(); got != 2 {
		t.Fatalf("expected 2 unread, got %d", got)
	}

	at, due := v.Open()
	if !due || at != 3000 {
		t.Fatalf("open should report the newest confirmed timestamp, got %d due=%v", at, due)
	}
	if v.Unread() != 0 {
		t.Fatalf("open should clear unread, got %d", v.Unread())
	}

	// While open, incoming messages do not count as unread.
	v.ApplyConfirmed(confirmed("m4", "general", "bob", "more", "", 4000))
	if v.Unread() != 0 {
		t.Fatalf("open room accumulated unread: %d", v.Unread())
	}

	v.Close()
	v.ApplyConfirmed(confirmed("m5", "general", "bob", "later", "", 5000))
	if v.Unread() != 1 {
		t.Fatalf("closed room should count unread, got %d", v.Unread())
	}
}

func TestOtherRoomIgnored(t *testing.T) {
	v := NewView("general", "alice")

	if v.ApplyConfirmed(confirmed("m1", "random", "bob", "hi", "", 1000)) {
		t.Fatal("message for another room should be ignored")
	}
	if len(v.Messages()) != 0 || v.Unread() != 0 {
		t.Fatal("other-room message leaked into the view")
	}
}

func TestMarkFailedAndRetry(t *testing.T) {
	v := NewView("general", "alice")

	correlationID := v.Send("hello", nil)
	v.MarkFailed(correlationID)

	items := v.Messages()
	if len(items) != 1 || items[0].State != StateFailed {
		t.Fatalf("expected one failed item, got %+v", items)
	}

	// A late echo after failure must not resurrect via the pending map.
	v.ApplyConfirmed(confirmed("m1", "general", "alice", "hello", correlationID, 1000))
	items = v.Messages()
	if len(items) != 2 {
		t.Fatalf("expected failed item plus confirmed echo, got %d", len(items))
	}

	if !v.Retry(correlationID) {
		t.Fatal("retry should find the failed item")
	}
	items = v.Messages()
	if items[0].State != StatePending {
		t.Fatalf("retry should re-pend the item, got %+v", items[0])
	}
	if v.Retry("unknown") {
		t.Fatal("retry of unknown correlation id should fail")
	}
}

func TestApplyHistoryMergesOlderPage(t *testing.T) {
	v := NewView("general", "alice")

	v.ApplyConfirmed(confirmed("m3", "general", "bob", "three", "", 3000))
	correlationID := v.Send("four", nil)

	v.ApplyHistory([]store.Message{
		confirmed("m1", "general", "bob", "one", "", 1000),
		confirmed("m2", "general", "bob", "two", "", 2000),
		confirmed("m3", "general", "bob", "three", "", 3000), // already known
	})

	items := v.Messages()
	if len(items) != 4 {
		t.Fatalf("expected 4 items, got %d", len(items))
	}
	if items[0].Message.ID != "m1" || items[1].Message.ID != "m2" || items[2].Message.ID != "m3" {
		t.Fatalf("history not in front: %+v", items)
	}
	if items[3].State != StatePending {
		t.Fatalf("pending item lost its place: %+v", items[3])
	}

	// Pending reconciliation still works after the reindex.
	v.ApplyConfirmed(confirmed("m4", "general", "alice", "four", correlationID, 4000))
	items = v.Messages()
	if len(items) != 4 || items[3].State != StateConfirmed || items[3].Message.ID != "m4" {
		t.Fatalf("pending item not confirmed after history merge: %+v", items[3])
	}

	// History unread does not touch the counter.
	if v.Unread() != 1 {
		t.Fatalf("expected 1 unread (m3 live), got %d", v.Unread())
	}
}

func TestApplyHistoryConfirmsPendingSend(t *testing.T) {
	v := NewView("general", "alice")

	correlationID := v.Send("hello", nil)

	// A reconnect can load a page that already contains the stored copy of
	// the in-flight send; it must confirm the pending item, not duplicate it.
	v.ApplyHistory([]store.Message{
		confirmed("m1", "general", "bob", "earlier", "", 500),
		confirmed("m2", "general", "alice", "hello", correlationID, 1000),
	})

	items := v.Messages()
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d: %+v", len(items), items)
	}
	if items[0].Message.ID != "m1" {
		t.Fatalf("history should sort ahead of local items: %+v", items[0])
	}
	if items[1].State != StateConfirmed || items[1].Message.ID != "m2" {
		t.Fatalf("pending send was not confirmed in place: %+v", items[1])
	}

	// The late append response and feed echo are both no-ops now.
	if v.ApplyConfirmed(confirmed("m2", "general", "alice", "hello", correlationID, 1000)) {
		t.Fatal("late confirmation should be deduplicated by id")
	}
	if len(v.Messages()) != 2 {
		t.Fatalf("late confirmation duplicated the message: %d items", len(v.Messages()))
	}
}
