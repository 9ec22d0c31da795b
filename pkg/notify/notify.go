// Package notify delivers internal CRM notifications.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/crmflow/pkg/protocol"
	"github.com/redis/go-redis/v9"
)

// DefaultChannel is the Redis channel notifications are published on.
const DefaultChannel = "crmflow:notifications"

var ErrNoChannel = errors.New("notification channel is required")

// Message is the payload published for each notification.
type Message struct {
	protocol.Notification

	SentAt time.Time `json:"sent_at"`
}

// RedisNotifier publishes notifications on a Redis channel and keeps the last
// entries of each user in a capped list.
type RedisNotifier struct {
	client  redis.UniversalClient
	channel string
	keep    int64
	now     func() time.Time
}

var _ protocol.Notifier = (*RedisNotifier)(nil)

func NewRedisNotifier(client redis.UniversalClient, channel string) *RedisNotifier {
	if channel == "" {
		channel = DefaultChannel
	}

	return &RedisNotifier{
		client:  client,
		channel: channel,
		keep:    100,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (n *RedisNotifier) Notify(ctx context.Context, notification protocol.Notification) error {
	if notification.Channel == "" {
		return ErrNoChannel
	}

	payload, err := json.Marshal(Message{Notification: notification, SentAt: n.now()})
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	pipe := n.client.TxPipeline()
	pipe.Publish(ctx, n.channel, payload)

	if notification.UserID != "" {
		key := InboxKey(n.channel, notification.UserID)
		pipe.LPush(ctx, key, payload)
		pipe.LTrim(ctx, key, 0, n.keep-1)
	}

	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}

	return nil
}

// InboxKey is the list holding the recent notifications of userID.
func InboxKey(channel, userID string) string {
	return channel + ":inbox:" + userID
}

// LogNotifier writes notifications to the log. It stands in when no Redis is
// configured.
type LogNotifier struct {
	logger *slog.Logger
}

var _ protocol.Notifier = (*LogNotifier)(nil)

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With("module", "notifier")}
}

func (n *LogNotifier) Notify(ctx context.Context, notification protocol.Notification) error {
	if notification.Channel == "" {
		return ErrNoChannel
	}

	n.logger.InfoContext(ctx, "Notification",
		"channel", notification.Channel,
		"user_id", notification.UserID,
		"title", notification.Title,
		"message", notification.Message,
	)

	return nil
}
