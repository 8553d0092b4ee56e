package core

import (
	"testing"
	"time"
)

// mustEvent waits for the next event on a connection.
func mustEvent(t *testing.T, conn *Conn) *Event {
	t.Helper()

	select {
	case ev := <-conn.Events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

// mustEventOfKind drains events until one of the wanted kind arrives.
func mustEventOfKind(t *testing.T, conn *Conn, kind EventKind) *Event {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-conn.Events:
			if ev.Kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for event kind %d", kind)
			return nil
		}
	}
}

// noEvent asserts that nothing arrives within a short window.
func noEvent(t *testing.T, conn *Conn) {
	t.Helper()

	select {
	case ev := <-conn.Events:
		t.Fatalf("unexpected event: %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}
