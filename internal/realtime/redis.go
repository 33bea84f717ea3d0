package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bissquit/resilio/internal/pkg/ctxlog"
	"github.com/redis/go-redis/v9"
)

const (
	redisPublishTimeout = 2 * time.Second
	redisOutboxSize     = 1024
)

// RedisBroker shares the bus between API instances. Frames are published to
// a Redis channel and every instance relays what it receives to its local hub.
//
// Publish only enqueues; a single sender goroutine talks to Redis, so frames
// leave in the order they were published and a slow Redis never stalls the
// caller.
type RedisBroker struct {
	client  *redis.Client
	channel string
	hub     *Hub

	outbox     chan []byte
	stop       chan struct{}
	stopOnce   sync.Once
	senderDone chan struct{}

	pubsub    *redis.PubSub
	relayDone chan struct{}
}

// NewRedisBroker creates a broker relaying channel into hub and starts its sender.
func NewRedisBroker(client *redis.Client, channel string, hub *Hub) *RedisBroker {
	b := &RedisBroker{
		client:     client,
		channel:    channel,
		hub:        hub,
		outbox:     make(chan []byte, redisOutboxSize),
		stop:       make(chan struct{}),
		senderDone: make(chan struct{}),
		relayDone:  make(chan struct{}),
	}
	go b.send()
	return b
}

// Start subscribes to the channel and launches the relay goroutine.
func (b *RedisBroker) Start(ctx context.Context) error {
	b.pubsub = b.client.Subscribe(ctx, b.channel)
	if _, err := b.pubsub.Receive(ctx); err != nil {
		_ = b.pubsub.Close()
		b.pubsub = nil
		return fmt.Errorf("subscribe to %s: %w", b.channel, err)
	}

	slog.Info("realtime redis relay started", "channel", b.channel)
	go b.relay()
	return nil
}

func (b *RedisBroker) relay() {
	defer close(b.relayDone)
	for msg := range b.pubsub.Channel() {
		b.hub.Broadcast([]byte(msg.Payload))
	}
}

// Publish queues the event for Redis without blocking. Frames that cannot be
// queued, or that Redis rejects, are still delivered to local subscribers.
func (b *RedisBroker) Publish(ctx context.Context, event Event) {
	frame, err := event.Encode()
	if err != nil {
		ctxlog.FromContext(ctx).Error("failed to encode realtime event", "event", event.Type, "error", err)
		return
	}
	eventsPublished.WithLabelValues(string(event.Type)).Inc()

	select {
	case <-b.stop:
		b.hub.Broadcast(frame)
		return
	default:
	}

	select {
	case b.outbox <- frame:
	default:
		ctxlog.FromContext(ctx).Warn("redis outbox full, delivering locally", "event", event.Type)
		b.hub.Broadcast(frame)
	}
}

func (b *RedisBroker) send() {
	defer close(b.senderDone)
	for {
		select {
		case frame := <-b.outbox:
			b.publish(frame)
		case <-b.stop:
			// Flush what was queued before Close.
			for {
				select {
				case frame := <-b.outbox:
					b.publish(frame)
				default:
					return
				}
			}
		}
	}
}

func (b *RedisBroker) publish(frame []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), redisPublishTimeout)
	defer cancel()

	if err := b.client.Publish(ctx, b.channel, frame).Err(); err != nil {
		slog.Warn("redis publish failed, delivering locally", "channel", b.channel, "error", err)
		b.hub.Broadcast(frame)
	}
}

// Len reports frames waiting for the sender.
func (b *RedisBroker) Len() int {
	return len(b.outbox)
}

// Close flushes queued frames and stops the relay.
func (b *RedisBroker) Close() error {
	b.stopOnce.Do(func() { close(b.stop) })
	<-b.senderDone

	if b.pubsub == nil {
		return nil
	}
	err := b.pubsub.Close()
	<-b.relayDone
	return err
}
