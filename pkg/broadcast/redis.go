package broadcast

import (
	"context"
	"encoding/json"
	"fmt"

	redis "github.com/redis/go-redis/v9"
)

// DefaultRedisChannel is the pub/sub channel progress is published on.
const DefaultRedisChannel = "crmflow:executions"

// RedisObserver publishes every event as JSON on a Redis pub/sub channel so
// other processes can follow executions.
type RedisObserver struct {
	client  redis.UniversalClient
	channel string
}

func NewRedisObserver(client redis.UniversalClient, channel string) *RedisObserver {
	if channel == "" {
		channel = DefaultRedisChannel
	}

	return &RedisObserver{client: client, channel: channel}
}

func (o *RedisObserver) ID() string { return "redis:" + o.channel }

func (o *RedisObserver) Send(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	return o.client.Publish(ctx, o.channel, payload).Err()
}

func (o *RedisObserver) Closed() bool { return false }
