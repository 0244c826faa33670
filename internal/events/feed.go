package events

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// Feed delivers raw event payloads published on AdminChannel.
type Feed interface {
	// Subscribe returns a channel of payloads that closes when ctx ends or
	// the subscription drops, and a function releasing the subscription.
	Subscribe(ctx context.Context) (<-chan []byte, func() error)
}

// RedisFeed subscribes to AdminChannel with Redis pub/sub.
type RedisFeed struct {
	client *redis.Client
}

func NewRedisFeed(client *redis.Client) *RedisFeed {
	return &RedisFeed{client: client}
}

func (f *RedisFeed) Subscribe(ctx context.Context) (<-chan []byte, func() error) {
	pubsub := f.client.Subscribe(ctx, AdminChannel)
	out := make(chan []byte)
	go func() {
		defer close(out)
		for msg := range pubsub.Channel() {
			select {
			case out <- []byte(msg.Payload):
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, pubsub.Close
}
