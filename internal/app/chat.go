package app

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"live-poll-service/internal/domain"
)

// ChatPublisher fans chat messages out across processes.
type ChatPublisher interface {
	Publish(ctx context.Context, msg domain.ChatMessage) error
}

// ChatRelay stamps chat messages and rebroadcasts them to every client, the sender included.
// It keeps no state and is independent of poll state.
type ChatRelay struct {
	gateway Gateway
	bus     ChatPublisher
	now     func() time.Time
	log     *zap.Logger
}

// NewChatRelay creates a relay. With a nil bus messages are broadcast directly.
func NewChatRelay(gateway Gateway, bus ChatPublisher, log *zap.Logger) *ChatRelay {
	if log == nil {
		log = zap.NewNop()
	}
	return &ChatRelay{gateway: gateway, bus: bus, now: time.Now, log: log}
}

// NewChatRelayWithClock is used by tests for deterministic timestamps.
func NewChatRelayWithClock(gateway Gateway, bus ChatPublisher, now func() time.Time) *ChatRelay {
	r := NewChatRelay(gateway, bus, nil)
	r.now = now
	return r
}

// Relay validates and stamps msg, then hands it to the bus or broadcasts it.
func (r *ChatRelay) Relay(ctx context.Context, caller domain.Caller, msg domain.ChatMessage) (domain.ChatMessage, error) {
	if strings.TrimSpace(msg.Text) == "" {
		return domain.ChatMessage{}, domain.Invalid("message text is required")
	}
	if msg.Sender == "" {
		msg.Sender = string(caller.Role)
	}
	if msg.SenderRole == "" {
		msg.SenderRole = caller.Role
	}
	msg.Timestamp = r.now()

	if r.bus != nil {
		if err := r.bus.Publish(ctx, msg); err != nil {
			return domain.ChatMessage{}, domain.Unavailable("publish chat message", err)
		}
		return msg, nil
	}
	r.Deliver(msg)
	return msg, nil
}

// Deliver broadcasts an already stamped message; the bus subscriber calls it.
func (r *ChatRelay) Deliver(msg domain.ChatMessage) {
	r.gateway.Broadcast(domain.NewEvent(domain.EventChatMessage, msg))
}
