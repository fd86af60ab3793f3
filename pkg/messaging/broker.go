package messaging

import (
	"context"
)

// Broker is the live pub/sub fan-out used for in-app notification
// delivery and dashboard event streams. Durable work rides the
// postgres queue, not the broker.
type Broker interface {
	Publish(ctx context.Context, channel string, message interface{}) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	Close() error
}

// Well-known broker channels.
const (
	ChannelInApp  = "notifications.in_app"
	ChannelEvents = "events.stream"
)

type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}
