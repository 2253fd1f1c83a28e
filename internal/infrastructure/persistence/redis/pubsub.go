package redis

import (
	"context"
	"errors"
	"fmt"
)

// Message is one payload received on a subscribed channel.
type Message struct {
	Channel string
	Payload string
	Err     error
}

// PubSub publishes and subscribes on Redis channels.
type PubSub struct {
	cache *Cache
}

// NewPubSub creates a PubSub on the cache's client.
func NewPubSub(cache *Cache) *PubSub {
	return &PubSub{cache: cache}
}

// Publish sends payload to a channel.
func (p *PubSub) Publish(ctx context.Context, channel string, payload []byte) error {
	if channel == "" {
		return ErrCacheKeyEmpty
	}
	return p.cache.client.Publish(ctx, channel, payload).Err()
}

// Subscribe subscribes to channels and forwards messages until ctx is done.
// The returned channel is closed when the subscription ends.
func (p *PubSub) Subscribe(ctx context.Context, channels ...string) (<-chan Message, error) {
	if len(channels) == 0 {
		return nil, errors.New("pubsub: no channels")
	}

	sub := p.cache.client.Subscribe(ctx, channels...)
	// Wait for the subscription confirmation so publishes right after
	// Subscribe returns are not lost.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("pubsub: subscribe: %w", err)
	}

	out := make(chan Message, 64)
	go func() {
		defer close(out)
		defer sub.Close()

		in := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-in:
				if !ok {
					return
				}
				select {
				case out <- Message{Channel: msg.Channel, Payload: msg.Payload}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}
