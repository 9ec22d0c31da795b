package schedule

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dukex/crmflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingFirer struct {
	mu     sync.Mutex
	events []models.TriggerEvent
}

func (f *recordingFirer) Fire(_ context.Context, triggerType models.TriggerType, data map[string]any, source string) (models.TriggerEvent, error) {
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

func newTestSource(firer *recordingFirer) *Source {
	return NewSource(firer, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestSource_Add(t *testing.T) {
	source := newTestSource(&recordingFirer{})

	tests := []struct {
		name    string
		expr    string
		wantErr bool
	}{
		{name: "every five minutes", expr: "*/5 * * * *"},
		{name: "daily", expr: "0 9 * * *"},
		{name: "descriptor", expr: "@hourly"},
		{name: "interval", expr: "@every 30s"},
		{name: "garbage", expr: "whenever", wantErr: true},
		{name: "too many fields", expr: "* * * * * * *", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := source.Add(tt.name, tt.expr, nil)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidCron)

				return
			}

			require.NoError(t, err)
		})
	}

	assert.Equal(t, []string{"daily", "descriptor", "every five minutes", "interval"}, source.IDs())

	source.Remove("daily")
	assert.NotContains(t, source.IDs(), "daily")
}

func TestSource_ReplaceSchedule(t *testing.T) {
	source := newTestSource(&recordingFirer{})

	require.NoError(t, source.Add("wf-1", "@yearly", nil))
	require.NoError(t, source.Add("wf-1", "@every 1m", nil))

	assert.Equal(t, []string{"wf-1"}, source.IDs())
	assert.Len(t, source.cron.Entries(), 1)
}

func TestSource_FiresScheduleTrigger(t *testing.T) {
	firer := &recordingFirer{}
	source := newTestSource(firer)

	require.NoError(t, source.Add("nightly", "@every 1s", map[string]any{"workflowId": "wf-1"}))
	require.NoError(t, source.Start(t.Context()))

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		_ = source.Stop(ctx)
	})

	require.Eventually(t, func() bool { return len(firer.Events()) > 0 }, 3*time.Second, 50*time.Millisecond)

	event := firer.Events()[0]
	assert.Equal(t, models.TriggerSchedule, event.Type)
	assert.Equal(t, "schedule", event.Source)
	assert.Equal(t, "nightly", event.Data["scheduleId"])
	assert.Equal(t, "wf-1", event.Data["workflowId"])
	assert.NotEmpty(t, event.Data["timestamp"])
}
