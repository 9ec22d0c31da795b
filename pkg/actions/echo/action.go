// Package echo provides the fallback action for unrecognised action types. It
// simulates processing for a short while and echoes its params back.
package echo

import (
	"context"
	"log/slog"
	"maps"
	"time"

	"github.com/dukex/crmflow/pkg/models"
	"github.com/spf13/cast"
)

const DefaultProcessingDelay = 100 * time.Millisecond

type EchoAction struct {
	delay time.Duration
}

// NewEchoAction creates the fallback action; a non-positive delay uses
// DefaultProcessingDelay.
func NewEchoAction(delay time.Duration) *EchoAction {
	if delay <= 0 {
		delay = DefaultProcessingDelay
	}

	return &EchoAction{delay: delay}
}

func (a *EchoAction) ID() string {
	return "echo"
}

// Execute waits for params.processingMs (or the configured delay) then
// returns the params as its output.
func (a *EchoAction) Execute(ctx context.Context, params map[string]any, _ *models.ExecutionContext, logger *slog.Logger) (*models.NodeExecutionResult, error) {
	delay := a.delay
	if ms := cast.ToInt64(params["processingMs"]); ms > 0 {
		delay = time.Duration(ms) * time.Millisecond
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, context.Cause(ctx)
	case <-timer.C:
	}

	logger.Info("Simulated action completed", "action_type", params["actionType"], "delay", delay)

	return models.Succeeded(map[string]any{
		"simulated": true,
		"echo":      maps.Clone(params),
	}, nil), nil
}
