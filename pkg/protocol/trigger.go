package protocol

import (
	"context"

	"github.com/dukex/crmflow/pkg/models"
)

// TriggerListener reacts to a fired trigger event.
type TriggerListener func(ctx context.Context, event models.TriggerEvent) error

// TriggerSource emits trigger events from an external system (cron, queue).
type TriggerSource interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}
