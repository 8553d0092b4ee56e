package core

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/quangtran/chatchit-server/internal/feed"
)

const (
	resubscribeAttempts = 5
	resubscribeWait     = 200 * time.Millisecond
)

// ErrFeedLost is returned by Notifier.Run when the feed could not be
// re-established within the bounded retry budget.
var ErrFeedLost = errors.New("append feed lost")

// Notifier is the live consumer of the append feed: one background goroutine
// reading one logical stream for all rooms, handing every insertion to the
// registry's fan-out exactly once, demultiplexed by room there.
//
// A dropped or erroring subscription is resubscribed within a bounded retry
// loop. Messages appended during the outage are not redelivered on this
// channel; clients recover them by paging history on the next room join.
type Notifier struct {
	feed     feed.Feed
	registry *Registry
	log      *zerolog.Logger
}

// NewNotifier constructs a notifier over the given feed and registry.
func NewNotifier(f feed.Feed, registry *Registry, logger *zerolog.Logger) *Notifier {
	return &Notifier{feed: f, registry: registry, log: logger}
}

// Run consumes the feed until ctx is canceled or the feed is lost for good.
func (n *Notifier) Run(ctx context.Context) error {
	attempts := 0

	for {
		sub, err := n.feed.Subscribe(ctx)
		if err != nil {
			attempts++
			if attempts > resubscribeAttempts {
				n.log.Error().Err(err).Msg("append feed lost, giving up")
				return ErrFeedLost
			}
			n.log.Warn().Err(err).Int("attempt", attempts).Msg("feed subscribe failed, retrying")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempts) * resubscribeWait):
			}
			continue
		}

		delivered := n.consume(ctx, sub)
		if ctx.Err() != nil {
			_ = sub.Close()
			return ctx.Err()
		}

		// A subscription that delivered something earned a fresh retry
		// budget.
		if delivered {
			attempts = 0
		}
		attempts++
		if attempts > resubscribeAttempts {
			n.log.Error().Err(sub.Err()).Msg("append feed lost, giving up")
			return ErrFeedLost
		}
		n.log.Warn().Err(sub.Err()).Int("attempt", attempts).Msg("feed subscription dropped, resubscribing")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempts) * resubscribeWait):
		}
	}
}

// consume drains one subscription until it closes, reporting whether any
// message was delivered.
func (n *Notifier) consume(ctx context.Context, sub feed.Subscription) bool {
	delivered := false
	for {
		select {
		case <-ctx.Done():
			return delivered
		case msg, ok := <-sub.Messages():
			if !ok {
				return delivered
			}
			n.registry.FanOut(msg)
			delivered = true
		}
	}
}
