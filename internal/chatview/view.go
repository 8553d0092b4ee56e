// Package chatview keeps a client-side mirror of one room: optimistic sends,
// confirmed history, and the unread counter. It reconciles feed echoes with
// locally appended messages so a sender never sees its own message twice.
package chatview

import (
	"sync"

	"github.com/quangtran/chatchit-server/internal/store"
	"github.com/quangtran/chatchit-server/internal/utils"
)

// ItemState tracks the delivery state of one rendered message.
type ItemState int

const (
	// StatePending means the message was sent but not yet confirmed.
	StatePending ItemState = iota
	// StateConfirmed means the server acknowledged or echoed the message.
	StateConfirmed
	// StateFailed means the append was rejected; the user may retry.
	StateFailed
)

// Item is one message as rendered by the client.
type Item struct {
	State         ItemState
	CorrelationID string
	Message       store.Message
}

// View mirrors one room for one user.
type View struct {
	mu     sync.Mutex
	room   string
	userID string

	items   []Item
	byID    map[string]int // message id -> items index
	pending map[string]int // correlation id -> items index

	open   bool
	unread int
}

// NewView creates an empty view of a room.
func NewView(roomID, userID string) *View {
	return &View{
		room:    roomID,
		userID:  userID,
		byID:    make(map[string]int),
		pending: make(map[string]int),
	}
}

// Send records an optimistic message and returns the correlation id to attach
// to the append request.
func (v *View) Send(text string, attachments []store.Attachment) string {
	v.mu.Lock()
	defer v.mu.Unlock()

	correlationID := utils.NewID()
	v.pending[correlationID] = len(v.items)
	v.items = append(v.items, Item{
		State:         StatePending,
		CorrelationID: correlationID,
		Message: store.Message{
			RoomID:        v.room,
			AuthorID:      v.userID,
			Text:          text,
			Attachments:   attachments,
			CorrelationID: correlationID,
			CreatedAt:     store.Now(),
		},
	})
	return correlationID
}

// ApplyConfirmed reconciles a stored message, either an append response or a
// feed echo, into the view. A message matching a pending correlation id
// confirms that item in place; a known message id is ignored; everything else
// is appended. It returns true when the message was new to the view.
func (v *View) ApplyConfirmed(msg store.Message) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if msg.RoomID != v.room {
		return false
	}
	if _, seen := v.byID[msg.ID]; seen {
		return false
	}

	if msg.CorrelationID != "" {
		if idx, ok := v.pending[msg.CorrelationID]; ok {
			delete(v.pending, msg.CorrelationID)
			v.items[idx].State = StateConfirmed
			v.items[idx].Message = msg
			v.byID[msg.ID] = idx
			return true
		}
	}

	v.byID[msg.ID] = len(v.items)
	v.items = append(v.items, Item{
		State:         StateConfirmed,
		CorrelationID: msg.CorrelationID,
		Message:       msg,
	})
	if !v.open && msg.AuthorID != v.userID {
		v.unread++
	}
	return true
}

// MarkFailed transitions a pending send to failed. The item stays visible so
// the user can retry with the same correlation id.
func (v *View) MarkFailed(correlationID string) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if idx, ok := v.pending[correlationID]; ok {
		delete(v.pending, correlationID)
		v.items[idx].State = StateFailed
	}
}

// Retry moves a failed item back to pending and returns its correlation id.
func (v *View) Retry(correlationID string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	for idx := range v.items {
		if v.items[idx].CorrelationID == correlationID && v.items[idx].State == StateFailed {
			v.items[idx].State = StatePending
			v.pending[correlationID] = idx
			return true
		}
	}
	return false
}

// ApplyHistory merges a page of stored messages, oldest first, ahead of what
// the view already holds. Messages already known by id are skipped, and a
// message matching a pending correlation id confirms that item in place,
// the same reconciliation ApplyConfirmed does for feed echoes.
func (v *View) ApplyHistory(msgs []store.Message) {
	v.mu.Lock()
	defer v.mu.Unlock()

	fresh := make([]Item, 0, len(msgs))
	for _, msg := range msgs {
		if msg.RoomID != v.room {
			continue
		}
		if _, seen := v.byID[msg.ID]; seen {
			continue
		}
		if msg.CorrelationID != "" {
			if idx, ok := v.pending[msg.CorrelationID]; ok {
				delete(v.pending, msg.CorrelationID)
				v.items[idx].State = StateConfirmed
				v.items[idx].Message = msg
				v.byID[msg.ID] = idx
				continue
			}
		}
		fresh = append(fresh, Item{
			State:         StateConfirmed,
			CorrelationID: msg.CorrelationID,
			Message:       msg,
		})
	}
	if len(fresh) == 0 {
		return
	}

	v.items = append(fresh, v.items...)
	v.reindex()
}

// Open marks the room as being viewed. It clears the unread counter and
// returns the timestamp to advance the read marker to, when one is due.
func (v *View) Open() (store.Timestamp, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.open = true
	v.unread = 0

	var latest store.Timestamp
	for i := len(v.items) - 1; i >= 0; i-- {
		if v.items[i].State == StateConfirmed {
			latest = v.items[i].Message.CreatedAt
			break
		}
	}
	if latest == 0 {
		return 0, false
	}
	return latest, true
}

// Close marks the room as no longer viewed; new messages count as unread.
func (v *View) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.open = false
}

// Messages returns a copy of the rendered items in display order.
func (v *View) Messages() []Item {
	v.mu.Lock()
	defer v.mu.Unlock()

	out := make([]Item, len(v.items))
	copy(out, v.items)
	return out
}

// Unread returns the local unread counter.
func (v *View) Unread() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.unread
}

// reindex rebuilds the id and pending maps after items shift position.
// Caller holds the lock.
func (v *View) reindex() {
	v.byID = make(map[string]int, len(v.items))
	v.pending = make(map[string]int)
	for idx, item := range v.items {
		if item.Message.ID != "" {
			v.byID[item.Message.ID] = idx
		}
		if item.State == StatePending {
			v.pending[item.CorrelationID] = idx
		}
	}
}
