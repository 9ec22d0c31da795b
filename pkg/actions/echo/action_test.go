package echo

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/dukex/crmflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEchoAction_Execute(t *testing.T) {
	params := map[string]any{"actionType": "send_fax", "to": "+5511", "processingMs": 20}

	started := time.Now()
	result, err := NewEchoAction(0).Execute(context.Background(), params, &models.ExecutionContext{}, slog.Default())
	require.NoError(t, err)

	assert.GreaterOrEqual(t, time.Since(started), 20*time.Millisecond)
	assert.True(t, result.Success)
	assert.Equal(t, true, result.Data["simulated"])
	assert.Equal(t, params, result.Data["echo"])
}

func TestEchoAction_DefaultDelay(t *testing.T) {
	assert.Equal(t, DefaultProcessingDelay, NewEchoAction(-1).delay)
}

func TestEchoAction_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewEchoAction(time.Hour).Execute(ctx, nil, &models.ExecutionContext{}, slog.Default())
	assert.ErrorIs(t, err, context.Canceled)
}
