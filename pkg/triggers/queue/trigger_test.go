package queue

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dukex/crmflow/pkg/models"
	"github.com/dukex/crmflow/pkg/triggers"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingFirer struct {
	mu     sync.Mutex
	events []models.TriggerEvent
}

func (f *recordingFirer) Fire(_ context.Context, triggerType models.TriggerType, data map[string]any, source string) (models.TriggerEvent, error) {
	if !triggerType.IsValid() {
		return models.TriggerEvent{}, triggers.ErrUnknownTriggerType
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	event := models.TriggerEvent{Type: triggerType, Data: data, Source: source}
	f.events = append(f.events, event)

	return event, nil
}

func (f *recordingFirer) Events() []models.TriggerEvent {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]models.TriggerEvent(nil), f.events...)
}

func startSource(t *testing.T, firer triggers.Firer) (*Source, redis.UniversalClient) {
	t.Helper()

	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})

	source := NewSource(client, "", firer, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, source.Start(t.Context()))

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		assert.NoError(t, source.Stop(ctx))
		_ = client.Close()
	})

	return source, client
}

func TestSource_FiresQueuedTriggers(t *testing.T) {
	firer := &recordingFirer{}
	_, client := startSource(t, firer)

	require.NoError(t, Publish(t.Context(), client, "", Message{
		Type: models.TriggerMessageReceived,
		Data: map[string]any{"contactId": "c-1", "text": "hello"},
	}))
	require.NoError(t, Publish(t.Context(), client, DefaultQueue, Message{
		Type:   models.TriggerPipelineStageChange,
		Data:   map[string]any{"stage": "won"},
		Source: "crm",
	}))

	require.Eventually(t, func() bool { return len(firer.Events()) == 2 }, 3*time.Second, 20*time.Millisecond)

	events := firer.Events()
	assert.Equal(t, models.TriggerMessageReceived, events[0].Type)
	assert.Equal(t, "hello", events[0].Data["text"])
	assert.Equal(t, "queue:"+DefaultQueue, events[0].Source)
	assert.Equal(t, "crm", events[1].Source)
}

func TestSource_SkipsBadMessages(t *testing.T) {
	firer := &recordingFirer{}
	_, client := startSource(t, firer)

	require.NoError(t, client.RPush(t.Context(), DefaultQueue, "not json").Err())
	require.NoError(t, Publish(t.Context(), client, "", Message{Type: "fax_received"}))
	require.NoError(t, Publish(t.Context(), client, "", Message{Type: models.TriggerManual}))

	require.Eventually(t, func() bool { return len(firer.Events()) == 1 }, 3*time.Second, 20*time.Millisecond)
	assert.Equal(t, models.TriggerManual, firer.Events()[0].Type)
}

func TestSource_StartFailsWithoutRedis(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	defer client.Close()

	source := NewSource(client, "q", &recordingFirer{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Error(t, source.Start(t.Context()))
}
