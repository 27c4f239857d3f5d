package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/redis/go-redis/v9"
)

// ErrRelayUnavailable is returned when the broker client was never
// configured. Callers treat it like any other publish failure: log and move
// on.
var ErrRelayUnavailable = errors.New("relay: redis client unavailable")

// resubscribeDelay is the pause before rebuilding a dropped subscription.
const resubscribeDelay = 2 * time.Second

// RedisRelay implements the biz.Relay interface over Redis pub/sub.
// Delivery is whatever Redis pub/sub gives: at-most-once, no persistence,
// per-channel-per-publisher ordering only.
type RedisRelay struct {
	rdb    *redis.Client
	logger *log.Helper
}

// NewRedisRelay creates a new Redis-backed relay.
func NewRedisRelay(data *Data, logger log.Logger) *RedisRelay {
	return &RedisRelay{
		rdb:    data.rdb,
		logger: log.NewHelper(logger),
	}
}

// Publish JSON-encodes payload and publishes it on channel.
func (r *RedisRelay) Publish(ctx context.Context, channel string, payload any) error {
	if r.rdb == nil {
		return ErrRelayUnavailable
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode message for channel %s: %w", channel, err)
	}

	if err := r.rdb.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish to channel %s: %w", channel, err)
	}

	return nil
}

// Subscribe starts a background goroutine that delivers every message on the
// given channels to handler until ctx is done. When the broker connection
// drops, the subscription is rebuilt after a short delay; messages published
// during the outage are lost.
func (r *RedisRelay) Subscribe(ctx context.Context, handler func(channel string, payload []byte), channels ...string) error {
	if r.rdb == nil {
		return ErrRelayUnavailable
	}
	if len(channels) == 0 {
		return errors.New("relay: no channels to subscribe")
	}

	go r.receiveLoop(ctx, handler, channels)
	return nil
}

func (r *RedisRelay) receiveLoop(ctx context.Context, handler func(channel string, payload []byte), channels []string) {
	for {
		sub := r.rdb.Subscribe(ctx, channels...)

		for msg := range sub.Channel() {
			handler(msg.Channel, []byte(msg.Payload))
		}
		_ = sub.Close()

		if ctx.Err() != nil {
			return
		}

		r.logger.Warnw("msg", "relay subscription dropped, resubscribing",
			"channels", channels,
			"delay", resubscribeDelay)

		select {
		case <-ctx.Done():
			return
		case <-time.After(resubscribeDelay):
		}
	}
}
