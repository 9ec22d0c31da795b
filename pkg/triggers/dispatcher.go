// Package triggers routes external trigger events to the listeners registered
// for their trigger type.
package triggers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/dukex/crmflow/pkg/models"
	"github.com/dukex/crmflow/pkg/protocol"
)

var ErrUnknownTriggerType = errors.New("unknown trigger type")

// Firer is the entry point trigger sources fire events through.
type Firer interface {
	Fire(ctx context.Context, triggerType models.TriggerType, data map[string]any, source string) (models.TriggerEvent, error)
}

type Dispatcher struct {
	logger    *slog.Logger
	mu        sync.RWMutex
	listeners map[models.TriggerType][]protocol.TriggerListener
	now       func() time.Time
}

func NewDispatcher(logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		logger:    logger.With("module", "trigger_dispatcher"),
		listeners: make(map[models.TriggerType][]protocol.TriggerListener),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// RegisterListener adds listener for triggerType. Listeners run in
// registration order.
func (d *Dispatcher) RegisterListener(triggerType models.TriggerType, listener protocol.TriggerListener) error {
	if !triggerType.IsValid() {
		return fmt.Errorf("%w: %q", ErrUnknownTriggerType, triggerType)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.listeners[triggerType] = append(d.listeners[triggerType], listener)

	return nil
}

// Listeners returns how many listeners are registered for triggerType.
func (d *Dispatcher) Listeners(triggerType models.TriggerType) int {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return len(d.listeners[triggerType])
}

// Fire stamps an event and hands it to every listener of its type in turn.
// A failing or panicking listener is logged and does not affect the others.
func (d *Dispatcher) Fire(ctx context.Context, triggerType models.TriggerType, data map[string]any, source string) (models.TriggerEvent, error) {
	if !triggerType.IsValid() {
		return models.TriggerEvent{}, fmt.Errorf("%w: %q", ErrUnknownTriggerType, triggerType)
	}

	payload := maps.Clone(data)
	if payload == nil {
		payload = make(map[string]any)
	}

	event := models.TriggerEvent{
		Type:      triggerType,
		Data:      payload,
		Source:    source,
		Timestamp: d.now(),
	}

	d.mu.RLock()
	listeners := append([]protocol.TriggerListener(nil), d.listeners[triggerType]...)
	d.mu.RUnlock()

	logger := d.logger.With("trigger_type", triggerType, "source", source)

	if len(listeners) == 0 {
		logger.DebugContext(ctx, "No listeners for trigger")

		return event, nil
	}

	for i, listener := range listeners {
		err := d.notify(ctx, listener, event)
		if err != nil {
			logger.ErrorContext(ctx, "Trigger listener failed", "listener", i, "error", err)
		}
	}

	return event, nil
}

func (d *Dispatcher) notify(ctx context.Context, listener protocol.TriggerListener, event models.TriggerEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("listener panicked: %v", r)
		}
	}()

	return listener(ctx, event)
}
