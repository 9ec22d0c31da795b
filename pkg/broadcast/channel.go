package broadcast

import (
	"context"
	"errors"
	"sync"
)

var ErrSlowObserver = errors.New("observer buffer is full")

// ChannelObserver delivers events on a buffered channel for in-process
// consumers. A full buffer fails the send, which unsubscribes the observer.
type ChannelObserver struct {
	id     string
	events chan Event

	mu     sync.Mutex
	closed bool
}

func NewChannelObserver(id string, buffer int) *ChannelObserver {
	return &ChannelObserver{id: id, events: make(chan Event, buffer)}
}

func (o *ChannelObserver) ID() string { return o.id }

// Events is closed once the observer is closed.
func (o *ChannelObserver) Events() <-chan Event { return o.events }

func (o *ChannelObserver) Send(_ context.Context, event Event) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return errors.New("observer closed")
	}

	select {
	case o.events <- event:
		return nil
	default:
		return ErrSlowObserver
	}
}

func (o *ChannelObserver) Closed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.closed
}

func (o *ChannelObserver) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.closed {
		o.closed = true
		close(o.events)
	}
}
