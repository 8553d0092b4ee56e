package feed

import (
	"context"
	"errors"
	"sync"

	"github.com/quangtran/chatchit-server/internal/store"
)

// ErrSubscriptionClosed is reported by a subscription that was torn down,
// either explicitly or because the consumer fell too far behind.
var ErrSubscriptionClosed = errors.New("feed subscription closed")

// ErrSlowConsumer marks a subscription dropped for falling behind the append
// stream. The consumer is expected to resubscribe and recover missed history
// through the message log.
var ErrSlowConsumer = errors.New("feed consumer too slow")

// Feed is the append stream of the message log: one logical feed carrying
// every room's insertions, demultiplexed by room at the fan-out step.
type Feed interface {
	// Publish emits one append event. The message log calls this exactly
	// once per successful insertion.
	Publish(ctx context.Context, msg store.Message) error

	// Subscribe opens a live subscription over the append stream.
	Subscribe(ctx context.Context) (Subscription, error)

	// Close tears down the feed and any open subscriptions.
	Close() error
}

// Subscription is one consumer's view of the feed.
type Subscription interface {
	// Messages yields appended messages in publish order. The channel is
	// closed when the subscription ends; Err explains why.
	Messages() <-chan store.Message

	// Err returns the terminal error after Messages is closed, nil for a
	// clean Close.
	Err() error

	Close() error
}

const subscriptionBuffer = 256

// Memory is the in-process Feed used when no external broker is configured,
// and by tests. Publish never blocks: a subscriber whose buffer is full is
// dropped with ErrSlowConsumer instead of stalling the append path.
type Memory struct {
	mu     sync.Mutex
	subs   map[*memorySub]struct{}
	closed bool
}

// NewMemory creates an in-process feed.
func NewMemory() *Memory {
	return &Memory{subs: make(map[*memorySub]struct{})}
}

// Publish fans the message to every live subscription in order.
func (f *Memory) Publish(_ context.Context, msg store.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return ErrSubscriptionClosed
	}

	for sub := range f.subs {
		select {
		case sub.ch <- msg:
		default:
			delete(f.subs, sub)
			sub.terminate(ErrSlowConsumer)
		}
	}

	return nil
}

// Subscribe opens a subscription over subsequent appends.
func (f *Memory) Subscribe(_ context.Context) (Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil, ErrSubscriptionClosed
	}

	sub := &memorySub{
		feed: f,
		ch:   make(chan store.Message, subscriptionBuffer),
	}
	f.subs[sub] = struct{}{}
	return sub, nil
}

// Close tears down the feed and all subscriptions.
func (f *Memory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil
	}
	f.closed = true
	for sub := range f.subs {
		delete(f.subs, sub)
		sub.terminate(nil)
	}

	return nil
}

// Drop forcibly terminates every open subscription with ErrSubscriptionClosed
// while keeping the feed itself usable. Tests use it to simulate a feed
// disruption.
func (f *Memory) Drop() {
	f.mu.Lock()
	defer f.mu.Unlock()

	for sub := range f.subs {
		delete(f.subs, sub)
		sub.terminate(ErrSubscriptionClosed)
	}
}

type memorySub struct {
	feed *Memory
	ch   chan store.Message

	once sync.Once
	err  error
}

func (s *memorySub) Messages() <-chan store.Message {
	return s.ch
}

func (s *memorySub) Err() error {
	return s.err
}

func (s *memorySub) Close() error {
	s.feed.mu.Lock()
	delete(s.feed.subs, s)
	s.feed.mu.Unlock()
	s.terminate(nil)
	return nil
}

// terminate must run at most once; callers hold the feed lock or have already
// removed the subscription from the feed.
func (s *memorySub) terminate(err error) {
	s.once.Do(func() {
		s.err = err
		close(s.ch)
	})
}

var _ Feed = (*Memory)(nil)
