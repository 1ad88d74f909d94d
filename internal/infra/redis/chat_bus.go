package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"live-poll-service/internal/domain"
)

// ChatChannel is the Redis pub/sub channel chat messages travel through.
const ChatChannel = "livepoll:chat"

const publishTimeout = 5 * time.Second

// ChatBus relays chat messages through Redis pub/sub so every process
// delivers each message to its own clients exactly once.
type ChatBus struct {
	client *redis.Client
	log    *zap.Logger
}

func NewChatBus(client *redis.Client, log *zap.Logger) *ChatBus {
	if log == nil {
		log = zap.NewNop()
	}
	return &ChatBus{client: client, log: log}
}

// Publish implements app.ChatPublisher.
func (b *ChatBus) Publish(ctx context.Context, msg domain.ChatMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal chat message: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	return b.client.Publish(ctx, ChatChannel, body).Err()
}

// Subscribe confirms the subscription, then delivers messages to handler until ctx is done.
// The returned channel is closed when the delivery loop exits.
func (b *ChatBus) Subscribe(ctx context.Context, handler func(domain.ChatMessage)) (<-chan struct{}, error) {
	pubsub := b.client.Subscribe(ctx, ChatChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", ChatChannel, err)
	}

	done := make(chan struct{})
	ch := pubsub.Channel()
	go func() {
		defer close(done)
		defer pubsub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var chat domain.ChatMessage
				if err := json.Unmarshal([]byte(msg.Payload), &chat); err != nil {
					b.log.Warn("drop malformed chat message", zap.Error(err))
					continue
				}
				handler(chat)
			}
		}
	}()
	return done, nil
}
