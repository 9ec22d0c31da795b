// Package broadcast fans execution progress out to subscribed observers.
package broadcast

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/crmflow/pkg/models"
)

// Event types.
const (
	EventExecutionUpdate = "execution_update"
	EventNodeUpdate      = "node_update"
)

// sendTimeout bounds a single observer send.
const sendTimeout = 5 * time.Second

// Event is the envelope every observer receives.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// NodeUpdate is the payload of a node_update event.
type NodeUpdate struct {
	ExecutionID string                      `json:"execution_id"`
	NodeID      string                      `json:"node_id"`
	Result      *models.NodeExecutionResult `json:"result"`
}

// Observer receives broadcast events. A closed observer or one whose Send
// fails is removed from the broadcaster.
type Observer interface {
	ID() string
	Send(ctx context.Context, event Event) error
	Closed() bool
}

type Broadcaster struct {
	logger    *slog.Logger
	mu        sync.RWMutex
	observers map[string]Observer
}

func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		logger:    logger.With("module", "broadcaster"),
		observers: make(map[string]Observer),
	}
}

// Subscribe adds observer, replacing any observer with the same id.
func (b *Broadcaster) Subscribe(observer Observer) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.observers[observer.ID()] = observer
	b.logger.Debug("Observer subscribed", "observer_id", observer.ID())
}

// Unsubscribe removes the observer registered as id and reports whether it existed.
func (b *Broadcaster) Unsubscribe(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	_, ok := b.observers[id]
	delete(b.observers, id)

	return ok
}

// Len returns the number of subscribed observers.
func (b *Broadcaster) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.observers)
}

func (b *Broadcaster) BroadcastExecutionUpdate(execution *models.WorkflowExecution) {
	b.Broadcast(Event{Type: EventExecutionUpdate, Data: execution})
}

func (b *Broadcaster) BroadcastNodeUpdate(executionID, nodeID string, result *models.NodeExecutionResult) {
	b.Broadcast(Event{Type: EventNodeUpdate, Data: NodeUpdate{
		ExecutionID: executionID,
		NodeID:      nodeID,
		Result:      result,
	}})
}

// Broadcast sends event to every live observer. With no observers it does
// nothing.
func (b *Broadcaster) Broadcast(event Event) {
	b.mu.RLock()
	if len(b.observers) == 0 {
		b.mu.RUnlock()

		return
	}

	observers := make([]Observer, 0, len(b.observers))
	for _, observer := range b.observers {
		observers = append(observers, observer)
	}
	b.mu.RUnlock()

	var dead []string

	for _, observer := range observers {
		if observer.Closed() {
			dead = append(dead, observer.ID())

			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		err := observer.Send(ctx, event)

		cancel()

		if err != nil {
			b.logger.Warn("Dropping observer after failed send", "observer_id", observer.ID(), "event", event.Type, "error", err)

			dead = append(dead, observer.ID())
		}
	}

	if len(dead) == 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, id := range dead {
		delete(b.observers, id)
	}
}
