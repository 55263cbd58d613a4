package ws

import (
	"context"
	"fmt"

	"ironflex/backend/internal/feed"
	"ironflex/backend/pkg/logger"
	wsproto "ironflex/backend/pkg/ws"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

// HubPublisher delivers feed events to the clients of this process
type HubPublisher struct {
	hub    *Hub
	events *prometheus.CounterVec
}

// NewHubPublisher creates a publisher over hub. events may be nil.
func NewHubPublisher(hub *Hub, events *prometheus.CounterVec) *HubPublisher {
	return &HubPublisher{hub: hub, events: events}
}

// Publish broadcasts ev to every local client
func (p *HubPublisher) Publish(ctx context.Context, ev feed.Event) error {
	data, err := wsproto.Encode(wsproto.TypeFeed, ev)
	if err != nil {
		return fmt.Errorf("encode feed event: %w", err)
	}
	if p.events != nil {
		p.events.WithLabelValues(string(ev.Type)).Inc()
	}
	return p.hub.Broadcast(ctx, data)
}

// RedisPublisher sends feed events to a Redis channel so every instance's
// Bridge can relay them to its own clients
type RedisPublisher struct {
	client  redis.UniversalClient
	channel string
	events  *prometheus.CounterVec
}

// NewRedisPublisher creates a publisher on channel. events may be nil.
func NewRedisPublisher(client redis.UniversalClient, channel string, events *prometheus.CounterVec) *RedisPublisher {
	return &RedisPublisher{client: client, channel: channel, events: events}
}

// Publish pushes ev onto the channel
func (p *RedisPublisher) Publish(ctx context.Context, ev feed.Event) error {
	data, err := wsproto.Encode(wsproto.TypeFeed, ev)
	if err != nil {
		return fmt.Errorf("encode feed event: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	if p.events != nil {
		p.events.WithLabelValues(string(ev.Type)).Inc()
	}
	return nil
}

// Bridge relays frames from a Redis channel into the local hub
type Bridge struct {
	client  redis.UniversalClient
	channel string
	hub     *Hub
	log     *logger.Logger
}

// NewBridge creates a bridge
func NewBridge(client redis.UniversalClient, channel string, hub *Hub, log *logger.Logger) *Bridge {
	return &Bridge{client: client, channel: channel, hub: hub, log: log}
}

// Run subscribes and relays until ctx is cancelled
func (b *Bridge) Run(ctx context.Context) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()

	// Wait for the subscription to be confirmed so no publish is missed
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe %s: %w", b.channel, err)
	}
	b.log.Info("feed bridge subscribed", "channel", b.channel)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			if err := b.hub.Broadcast(ctx, []byte(msg.Payload)); err != nil {
				b.log.LogError(err, "relay feed event")
			}
		}
	}
}
