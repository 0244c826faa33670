// Package events carries admin dashboard notifications over Redis pub/sub.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// AdminChannel is the Redis channel relayed to /v1/admin/ws.
const AdminChannel = "admin_events"

// Event types.
const (
	TypeOrderCreated  = "order.created"
	TypeInvoiceReady  = "invoice.ready"
	TypeInvoiceFailed = "invoice.failed"
)

// Event is the message forwarded to connected admin clients.
// Field names are read by the dashboard, keep them stable.
type Event struct {
	Type          string    `json:"type"`
	OrderID       uint      `json:"order_id,omitempty"`
	Reference     string    `json:"reference,omitempty"`
	Total         int64     `json:"total,omitempty"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	ErrorCode     int       `json:"error_code"`
	ErrorMessage  string    `json:"error_message,omitempty"`
	At            time.Time `json:"at"`
}

// Publisher sends events to the admin channel.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

type redisPublishClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisPublisher publishes JSON-encoded events on AdminChannel.
type RedisPublisher struct {
	client redisPublishClient
}

// NewRedisPublisher wraps a Redis client (or anything with its Publish method).
func NewRedisPublisher(client redisPublishClient) *RedisPublisher {
	return &RedisPublisher{client: client}
}

// Publish stamps the event time when missing and publishes it.
func (p *RedisPublisher) Publish(ctx context.Context, event Event) error {
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.client.Publish(ctx, AdminChannel, data).Err(); err != nil {
		return fmt.Errorf("publish event to %q: %w", AdminChannel, err)
	}
	return nil
}

// Discard drops every event. Used when Redis is not configured, e.g. in tests.
type Discard struct{}

func (Discard) Publish(context.Context, Event) error { return nil }
