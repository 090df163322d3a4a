package messaging

import "context"

// Publisher publishes a message to a topic on the broker.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, payload []byte) error
}

// Subscriber consumes a topic until the context is cancelled. Delivery is
// at least once; a handler error triggers redelivery, so handlers must be
// idempotent.
type Subscriber interface {
	Consume(ctx context.Context, topic, groupID string, handler func(ctx context.Context, payload []byte) error)
}
