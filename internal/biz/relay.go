package biz

import "context"

// Relay is the pub/sub abstraction carrying health, incident and analytics
// events. Delivery is best-effort and at-most-once: there is no persistence,
// so a subscriber joining after a publish misses it, and messages published
// while the broker is unreachable are lost.
type Relay interface {
	// Publish JSON-encodes payload and publishes it on channel.
	Publish(ctx context.Context, channel string, payload any) error

	// Subscribe delivers every message received on the given channels to
	// handler from a background goroutine until ctx is done. Implementations
	// must transparently resubscribe after a broker disconnect.
	Subscribe(ctx context.Context, handler func(channel string, payload []byte), channels ...string) error
}
