package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// ChannelPrefix namespaces the per-user pub/sub channels.
const ChannelPrefix = "teamhub:notifications:"

// Channel returns the pub/sub channel of a user.
func Channel(userID string) string {
	return ChannelPrefix + userID
}

// Hub fans notifications out over Redis pub/sub so every server instance
// can push them to connected clients.
type Hub struct {
	rdb       *redis.Client
	onPublish func(error)
}

// NewHub creates a Hub on rdb.
func NewHub(rdb *redis.Client) *Hub {
	return &Hub{rdb: rdb}
}

// OnPublish registers fn to observe the outcome of every Publish.
func (h *Hub) OnPublish(fn func(error)) {
	h.onPublish = fn
}

// Publish sends n on its user's channel.
func (h *Hub) Publish(ctx context.Context, n *Notification) error {
	err := h.publish(ctx, n)
	if h.onPublish != nil {
		h.onPublish(err)
	}
	return err
}

func (h *Hub) publish(ctx context.Context, n *Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshaling notification: %w", err)
	}
	if err := h.rdb.Publish(ctx, Channel(n.UserID), payload).Err(); err != nil {
		return fmt.Errorf("publishing notification: %w", err)
	}
	return nil
}

// Subscription delivers the notifications of one user until closed.
type Subscription struct {
	ps *redis.PubSub
	C  <-chan *Notification
}

// Close ends the subscription.
func (s *Subscription) Close() error {
	return s.ps.Close()
}

// Subscribe listens on userID's channel. The returned subscription is ready
// to receive when Subscribe returns.
func (h *Hub) Subscribe(ctx context.Context, userID string) (*Subscription, error) {
	ps := h.rdb.Subscribe(ctx, Channel(userID))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribing to notifications: %w", err)
	}

	out := make(chan *Notification)
	go func() {
		defer close(out)
		for msg := range ps.Channel() {
			n := &Notification{}
			if err := json.Unmarshal([]byte(msg.Payload), n); err != nil {
				slog.Warn("dropping malformed notification", "channel", msg.Channel, "error", err)
				continue
			}
			select {
			case out <- n:
			case <-ctx.Done():
				return
			}
		}
	}()
	return &Subscription{ps: ps, C: out}, nil
}

// Ping checks the Redis connection.
func (h *Hub) Ping(ctx context.Context) error {
	return h.rdb.Ping(ctx).Err()
}
