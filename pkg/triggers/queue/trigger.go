// Package queue consumes trigger events pushed onto a Redis list.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/crmflow/pkg/models"
	"github.com/dukex/crmflow/pkg/triggers"
	redis "github.com/redis/go-redis/v9"
)

// DefaultQueue is the list consumed when none is configured.
const DefaultQueue = "crmflow:triggers"

const popTimeout = time.Second

// Message is the JSON document expected on the queue.
type Message struct {
	Type   models.TriggerType `json:"type"`
	Data   map[string]any     `json:"data"`
	Source string             `json:"source,omitempty"`
}

// Source pops Messages with BLPOP and fires them through the dispatcher.
type Source struct {
	client redis.UniversalClient
	queue  string
	firer  triggers.Firer
	logger *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewSource(client redis.UniversalClient, queue string, firer triggers.Firer, logger *slog.Logger) *Source {
	if queue == "" {
		queue = DefaultQueue
	}

	return &Source{
		client: client,
		queue:  queue,
		firer:  firer,
		logger: logger.With("module", "queue_trigger", "queue", queue),
	}
}

func (s *Source) Start(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := s.client.Ping(pingCtx).Err()
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	consumeCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = stop

	s.wg.Add(1)

	go s.consume(consumeCtx)

	s.logger.InfoContext(ctx, "Queue trigger source started")

	return nil
}

func (s *Source) Stop(ctx context.Context) error {
	s.logger.InfoContext(ctx, "Stopping queue trigger source")

	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})

	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Source) consume(ctx context.Context) {
	defer s.wg.Done()

	for {
		if ctx.Err() != nil {
			s.logger.Info("Queue consumer stopped")

			return
		}

		err := s.processMessage(ctx)
		if err != nil && ctx.Err() == nil {
			s.logger.ErrorContext(ctx, "Error processing message", "error", err)

			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
		}
	}
}

func (s *Source) processMessage(ctx context.Context) error {
	result, err := s.client.BLPop(ctx, popTimeout, s.queue).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}

		return fmt.Errorf("failed to pop message from queue: %w", err)
	}

	if len(result) < 2 {
		return nil
	}

	var msg Message

	err = json.Unmarshal([]byte(result[1]), &msg)
	if err != nil {
		s.logger.WarnContext(ctx, "Dropping malformed queue message", "error", err)

		return nil
	}

	if msg.Source == "" {
		msg.Source = "queue:" + s.queue
	}

	_, err = s.firer.Fire(ctx, msg.Type, msg.Data, msg.Source)
	if err != nil {
		s.logger.WarnContext(ctx, "Dropping queue message", "trigger_type", msg.Type, "error", err)
	}

	return nil
}

// Publish pushes a trigger message onto queue.
func Publish(ctx context.Context, client redis.UniversalClient, queue string, msg Message) error {
	if queue == "" {
		queue = DefaultQueue
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode queue message: %w", err)
	}

	return client.RPush(ctx, queue, payload).Err()
}
