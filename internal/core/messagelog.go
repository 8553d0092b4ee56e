package core

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/quangtran/chatchit-server/internal/feed"
	"github.com/quangtran/chatchit-server/internal/store"
)

// Content is what a caller supplies for an append. Everything else on the
// persisted message (id, createdAt) is assigned by the log.
type Content struct {
	Text          string
	Attachment    *store.Attachment
	Attachments   []store.Attachment
	CorrelationID string
}

// MessageLog is the append-only, room-partitioned source of truth for
// history and for fan-out triggering: every successful append publishes
// exactly one event to the feed.
type MessageLog struct {
	store store.MessageStore
	feed  feed.Feed
	log   *zerolog.Logger
}

// NewMessageLog constructs a message log over the given store and feed.
func NewMessageLog(st store.MessageStore, f feed.Feed, logger *zerolog.Logger) *MessageLog {
	return &MessageLog{store: st, feed: f, log: logger}
}

// Append validates, persists, and announces one message. Duplicate appends
// with the same correlation id are not deduplicated here: each gets a fresh
// id, and the client view collapses the echoes.
func (l *MessageLog) Append(ctx context.Context, roomID, authorID string, content Content) (*store.Message, error) {
	if roomID == "" {
		return nil, ErrMissingRoom
	}
	if authorID == "" {
		return nil, ErrMissingAuthor
	}

	msg := store.Message{
		ID:            uuid.NewString(),
		RoomID:        roomID,
		AuthorID:      authorID,
		CreatedAt:     store.Now(),
		Text:          strings.TrimSpace(content.Text),
		Attachment:    content.Attachment,
		Attachments:   sanitizeAttachments(content.Attachments),
		CorrelationID: content.CorrelationID,
	}
	if msg.Attachment != nil && msg.Attachment.URL == "" {
		msg.Attachment = nil
	}
	if !msg.HasContent() {
		return nil, ErrEmptyContent
	}

	if err := l.store.InsertMessage(ctx, &msg); err != nil {
		return nil, &StorageError{Err: err}
	}

	// The append already succeeded; a publish failure is a feed disruption,
	// recovered by clients paging history on their next join.
	if err := l.feed.Publish(ctx, msg); err != nil {
		l.log.Warn().Err(err).Str("room_id", roomID).Str("message_id", msg.ID).Msg("failed to publish append event")
	}

	return &msg, nil
}

// Page returns up to limit messages of a room older than before, ascending
// by createdAt. A nil before means "latest page".
func (l *MessageLog) Page(ctx context.Context, roomID string, before *store.Timestamp, limit int) ([]store.Message, error) {
	if roomID == "" {
		return nil, ErrMissingRoom
	}

	messages, err := l.store.PageMessages(ctx, roomID, before, limit)
	if err != nil {
		return nil, &StorageError{Err: err}
	}

	return messages, nil
}

// sanitizeAttachments keeps only entries that reference something.
func sanitizeAttachments(atts []store.Attachment) []store.Attachment {
	if len(atts) == 0 {
		return nil
	}
	kept := make([]store.Attachment, 0, len(atts))
	for _, a := range atts {
		if a.URL != "" {
			kept = append(kept, a)
		}
	}
	if len(kept) == 0 {
		return nil
	}
	return kept
}
