package data

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"OpsPulse/internal/model"
)

func newTestRelay(t *testing.T) *RedisRelay {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisRelay(&Data{rdb: client}, log.NewStdLogger(os.Stdout))
}

func TestRelay_PublishSubscribeRoundTrip(t *testing.T) {
	relay := newTestRelay(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var received []model.Event
	handler := func(channel string, payload []byte) {
		assert.Equal(t, model.ChannelIncidents, channel)
		var event model.Event
		require.NoError(t, json.Unmarshal(payload, &event))
		mu.Lock()
		received = append(received, event)
		mu.Unlock()
	}
	require.NoError(t, relay.Subscribe(ctx, handler, model.ChannelIncidents))

	event := model.Event{
		EventType: model.EventErrorDetected,
		Timestamp: time.Now().UTC(),
		Source:    "incident-detector",
	}

	// The subscription is established asynchronously; publish until the
	// handler observes a message.
	require.Eventually(t, func() bool {
		require.NoError(t, relay.Publish(ctx, model.ChannelIncidents, event))
		mu.Lock()
		defer mu.Unlock()
		return len(received) > 0
	}, 2*time.Second, 20*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, model.EventErrorDetected, received[0].EventType)
	assert.Equal(t, "incident-detector", received[0].Source)
}

func TestRelay_SubscribeMultipleChannels(t *testing.T) {
	relay := newTestRelay(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	seen := make(map[string]int)
	handler := func(channel string, payload []byte) {
		mu.Lock()
		seen[channel]++
		mu.Unlock()
	}
	require.NoError(t, relay.Subscribe(ctx, handler,
		model.ChannelHealthUpdates, model.ChannelAnalytics))

	require.Eventually(t, func() bool {
		require.NoError(t, relay.Publish(ctx, model.ChannelHealthUpdates, map[string]string{"service": "file-service"}))
		require.NoError(t, relay.Publish(ctx, model.ChannelAnalytics, map[string]string{"service": "file-service"}))
		mu.Lock()
		defer mu.Unlock()
		return seen[model.ChannelHealthUpdates] > 0 && seen[model.ChannelAnalytics] > 0
	}, 2*time.Second, 20*time.Millisecond)
}

func TestRelay_ResubscribesAfterBrokerRestart(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	relay := NewRedisRelay(&Data{rdb: client}, log.NewStdLogger(os.Stdout))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var count int
	handler := func(channel string, payload []byte) {
		mu.Lock()
		count++
		mu.Unlock()
	}
	require.NoError(t, relay.Subscribe(ctx, handler, model.ChannelIncidents))

	require.Eventually(t, func() bool {
		require.NoError(t, relay.Publish(ctx, model.ChannelIncidents, map[string]string{"id": "before"}))
		mu.Lock()
		defer mu.Unlock()
		return count > 0
	}, 2*time.Second, 20*time.Millisecond)

	// Dropping the broker kills the live subscription; the receive loop
	// must rebuild it and resume delivering messages published afterwards.
	// miniredis.Restart only rebinds the port, so the server must be
	// closed first.
	mr.Close()
	require.NoError(t, mr.Restart())

	mu.Lock()
	before := count
	mu.Unlock()

	require.Eventually(t, func() bool {
		// Publishes can fail while the client reconnects; keep trying.
		_ = relay.Publish(ctx, model.ChannelIncidents, map[string]string{"id": "after"})
		mu.Lock()
		defer mu.Unlock()
		return count > before
	}, 10*time.Second, 50*time.Millisecond)
}

func TestRelay_PublishRejectsUnencodablePayload(t *testing.T) {
	relay := newTestRelay(t)

	err := relay.Publish(context.Background(), model.ChannelIncidents, func() {})
	assert.Error(t, err)
}

func TestRelay_NilClient(t *testing.T) {
	relay := NewRedisRelay(&Data{}, log.NewStdLogger(os.Stdout))

	err := relay.Publish(context.Background(), model.ChannelIncidents, "x")
	assert.ErrorIs(t, err, ErrRelayUnavailable)

	err = relay.Subscribe(context.Background(), func(string, []byte) {}, model.ChannelIncidents)
	assert.ErrorIs(t, err, ErrRelayUnavailable)
}

func TestRelay_SubscribeRequiresChannels(t *testing.T) {
	relay := newTestRelay(t)

	err := relay.Subscribe(context.Background(), func(string, []byte) {})
	assert.Error(t, err)
}
