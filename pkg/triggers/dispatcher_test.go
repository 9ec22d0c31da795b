package triggers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/dukex/crmflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDispatcher() *Dispatcher {
	d := NewDispatcher(slog.New(slog.NewTextHandler(io.Discard, nil)))
	d.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	return d
}

func TestDispatcher_FireCallsListenersInOrder(t *testing.T) {
	d := newTestDispatcher()

	var calls []string

	require.NoError(t, d.RegisterListener(models.TriggerContactAdded, func(_ context.Context, e models.TriggerEvent) error {
		calls = append(calls, "first:"+e.Data["contactId"].(string))

		return nil
	}))
	require.NoError(t, d.RegisterListener(models.TriggerContactAdded, func(_ context.Context, e models.TriggerEvent) error {
		calls = append(calls, "second:"+e.Source)

		return nil
	}))
	require.NoError(t, d.RegisterListener(models.TriggerMessageReceived, func(context.Context, models.TriggerEvent) error {
		calls = append(calls, "other")

		return nil
	}))

	event, err := d.Fire(t.Context(), models.TriggerContactAdded, map[string]any{"contactId": "c-1"}, "api")
	require.NoError(t, err)

	assert.Equal(t, []string{"first:c-1", "second:api"}, calls)
	assert.Equal(t, models.TriggerContactAdded, event.Type)
	assert.Equal(t, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), event.Timestamp)
	assert.Equal(t, 2, d.Listeners(models.TriggerContactAdded))
}

func TestDispatcher_ListenerFailuresAreIsolated(t *testing.T) {
	d := newTestDispatcher()

	reached := false

	require.NoError(t, d.RegisterListener(models.TriggerManual, func(context.Context, models.TriggerEvent) error {
		return errors.New("boom")
	}))
	require.NoError(t, d.RegisterListener(models.TriggerManual, func(context.Context, models.TriggerEvent) error {
		panic("listener exploded")
	}))
	require.NoError(t, d.RegisterListener(models.TriggerManual, func(context.Context, models.TriggerEvent) error {
		reached = true

		return nil
	}))

	_, err := d.Fire(t.Context(), models.TriggerManual, nil, "test")
	require.NoError(t, err)
	assert.True(t, reached)
}

func TestDispatcher_UnknownTriggerType(t *testing.T) {
	d := newTestDispatcher()

	_, err := d.Fire(t.Context(), models.TriggerType("fax_received"), nil, "test")
	require.ErrorIs(t, err, ErrUnknownTriggerType)

	err = d.RegisterListener(models.TriggerType("fax_received"), func(context.Context, models.TriggerEvent) error { return nil })
	require.ErrorIs(t, err, ErrUnknownTriggerType)
}

func TestDispatcher_EventDataIsCopied(t *testing.T) {
	d := newTestDispatcher()

	require.NoError(t, d.RegisterListener(models.TriggerWebhook, func(_ context.Context, e models.TriggerEvent) error {
		e.Data["mutated"] = true

		return nil
	}))

	data := map[string]any{"id": 1}
	_, err := d.Fire(t.Context(), models.TriggerWebhook, data, "test")
	require.NoError(t, err)
	assert.NotContains(t, data, "mutated")
}
