package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/quangtran/chatchit-server/internal/store"
)

const (
	// natsSubjectPrefix scopes append events per room: messages.<roomID>.
	// Consumers take one wildcard subscription over the whole stream.
	natsSubjectPrefix   = "messages."
	natsSubjectWildcard = "messages.>"
)

// NATS is a Feed backed by a NATS subject per room, for deployments where the
// append stream must cross process boundaries. The client's own reconnect
// handling keeps the underlying connection alive; a dropped subscription
// surfaces as a closed Messages channel so the notifier can resubscribe.
type NATS struct {
	nc  *nats.Conn
	log *zerolog.Logger
}

// NewNATS connects to the given NATS URL.
func NewNATS(url string, logger *zerolog.Logger) (*NATS, error) {
	nc, err := nats.Connect(url,
		nats.Name("chatchit-feed"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	return &NATS{nc: nc, log: logger}, nil
}

// Publish emits one append event on the room's subject.
func (f *NATS) Publish(_ context.Context, msg store.Message) error {
	data, err := json.Marshal(wireMessage(msg))
	if err != nil {
		return fmt.Errorf("marshal feed message: %w", err)
	}

	if err := f.nc.Publish(natsSubjectPrefix+msg.RoomID, data); err != nil {
		return fmt.Errorf("publish feed message: %w", err)
	}

	return nil
}

// Subscribe opens one wildcard subscription over every room's appends.
func (f *NATS) Subscribe(ctx context.Context) (Subscription, error) {
	raw := make(chan *nats.Msg, subscriptionBuffer)
	sub, err := f.nc.ChanSubscribe(natsSubjectWildcard, raw)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", natsSubjectWildcard, err)
	}

	out := &natsSub{
		sub: sub,
		ch:  make(chan store.Message, subscriptionBuffer),
	}

	go out.pump(ctx, raw, f.log)
	return out, nil
}

// Close drains the connection.
func (f *NATS) Close() error {
	return f.nc.Drain()
}

type natsSub struct {
	sub *nats.Subscription
	ch  chan store.Message

	mu  sync.Mutex
	err error
}

func (s *natsSub) Messages() <-chan store.Message {
	return s.ch
}

func (s *natsSub) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *natsSub) Close() error {
	return s.sub.Unsubscribe()
}

func (s *natsSub) pump(ctx context.Context, raw <-chan *nats.Msg, logger *zerolog.Logger) {
	defer close(s.ch)

	for {
		select {
		case <-ctx.Done():
			s.setErr(ctx.Err())
			_ = s.sub.Unsubscribe()
			return
		case m, ok := <-raw:
			if !ok {
				s.setErr(ErrSubscriptionClosed)
				return
			}
			var w feedWire
			if err := json.Unmarshal(m.Data, &w); err != nil {
				if logger != nil {
					logger.Warn().Err(err).Str("subject", m.Subject).Msg("drop undecodable feed message")
				}
				continue
			}
			select {
			case s.ch <- w.toMessage():
			case <-ctx.Done():
				s.setErr(ctx.Err())
				_ = s.sub.Unsubscribe()
				return
			}
		}
	}
}

func (s *natsSub) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// feedWire is the JSON shape of an append event on the bus.
type feedWire struct {
	ID            string             `json:"id"`
	RoomID        string             `json:"room_id"`
	AuthorID      string             `json:"author_id"`
	CreatedAt     store.Timestamp    `json:"created_at"`
	Text          string             `json:"text,omitempty"`
	Attachment    *store.Attachment  `json:"attachment,omitempty"`
	Attachments   []store.Attachment `json:"attachments,omitempty"`
	CorrelationID string             `json:"correlation_id,omitempty"`
}

func wireMessage(msg store.Message) feedWire {
	return feedWire{
		ID:            msg.ID,
		RoomID:        msg.RoomID,
		AuthorID:      msg.AuthorID,
		CreatedAt:     msg.CreatedAt,
		Text:          msg.Text,
		Attachment:    msg.Attachment,
		Attachments:   msg.Attachments,
		CorrelationID: msg.CorrelationID,
	}
}

func (w feedWire) toMessage() store.Message {
	return store.Message{
		ID:            w.ID,
		RoomID:        w.RoomID,
		AuthorID:      w.AuthorID,
		CreatedAt:     w.CreatedAt,
		Text:          w.Text,
		Attachment:    w.Attachment,
		Attachments:   w.Attachments,
		CorrelationID: w.CorrelationID,
	}
}

var _ Feed = (*NATS)(nil)
