// Package transport is the low-latency side of the chat: a per-conversation
// Redis pub/sub channel carrying message and typing events. Delivery is
// best effort, at-least-once and unordered; nothing is persisted.
package transport

import (
	"context"
	"fmt"
	"log"
	"sync"

	"djchat/backend/internal/models"

	"github.com/redis/go-redis/v9"
)

// ChannelName is the Redis channel of one conversation.
func ChannelName(conversationID string) string {
	return "chat:" + conversationID
}

// RedisTransport publishes and subscribes broadcast events on Redis.
type RedisTransport struct {
	Redis *redis.Client
}

func NewRedisTransport(rdb *redis.Client) *RedisTransport {
	return &RedisTransport{Redis: rdb}
}

// Subscribe listens on the conversation channel and routes decoded events to
// onMessage or onTyping from a single goroutine. The returned func
// unsubscribes; it is safe to call more than once.
func (t *RedisTransport) Subscribe(ctx context.Context, conversationID string, onMessage, onTyping func(models.BroadcastEvent)) (func(), error) {
	pubsub := t.Redis.Subscribe(ctx, ChannelName(conversationID))

	// Wait for the subscription confirmation so no publish after this call is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribing to %s: %w", ChannelName(conversationID), err)
	}

	ch := pubsub.Channel()
	go func() {
		for msg := range ch {
			ev, err := DecodeEvent([]byte(msg.Payload))
			if err != nil {
				log.Printf("WARNING: dropping event on %s: %v", msg.Channel, err)
				continue
			}
			if ev.ConversationID != conversationID {
				continue
			}
			switch ev.Kind {
			case models.EventMessage:
				onMessage(ev)
			case models.EventTyping:
				onTyping(ev)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			if err := pubsub.Close(); err != nil {
				log.Printf("WARNING: closing subscription %s: %v", ChannelName(conversationID), err)
			}
		})
	}, nil
}

// PublishMessage broadcasts a chat message. No acknowledgment is implied.
func (t *RedisTransport) PublishMessage(ctx context.Context, ev models.BroadcastEvent) error {
	ev.Kind = models.EventMessage
	return t.publish(ctx, ev)
}

// PublishTyping broadcasts a typing flag change.
func (t *RedisTransport) PublishTyping(ctx context.Context, ev models.BroadcastEvent) error {
	ev.Kind = models.EventTyping
	return t.publish(ctx, ev)
}

func (t *RedisTransport) publish(ctx context.Context, ev models.BroadcastEvent) error {
	payload, err := EncodeEvent(ev)
	if err != nil {
		return err
	}
	return t.Redis.Publish(ctx, ChannelName(ev.ConversationID), payload).Err()
}
