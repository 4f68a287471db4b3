// Package bus is an in-process publish/subscribe dispatcher for typed events.
package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// QueuePrefix distinguishes "now processing" events from the raw domain
// events they were derived from.
const QueuePrefix = "queue:"

// QueueTopic returns the queue variant of an event name.
func QueueTopic(name string) string {
	return QueuePrefix + name
}

// Event is a named payload.
type Event struct {
	Payload any
	Name    string
}

// Handler reacts to an event.
type Handler func(ctx context.Context, ev Event) error

// Bus dispatches events synchronously to subscribers in subscription order.
type Bus struct {
	handlers map[string][]Handler
	mu       sync.RWMutex
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{handlers: make(map[string][]Handler)}
}

// Subscribe registers h for events named name.
func (b *Bus) Subscribe(name string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[name] = append(b.handlers[name], h)
}

// Publish delivers ev to every subscriber. A failing or panicking handler is
// logged and does not stop the others.
func (b *Bus) Publish(ctx context.Context, ev Event) {
	for _, err := range b.dispatch(ctx, ev) {
		slog.Error("Event handler failed", "event", ev.Name, "error", err)
	}
}

// Request delivers ev like Publish and waits for every handler, returning
// their joined errors.
func (b *Bus) Request(ctx context.Context, ev Event) error {
	return errors.Join(b.dispatch(ctx, ev)...)
}

func (b *Bus) dispatch(ctx context.Context, ev Event) []error {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers[ev.Name]))
	copy(handlers, b.handlers[ev.Name])
	b.mu.RUnlock()

	if len(handlers) == 0 {
		slog.Debug("Event has no subscribers", "event", ev.Name)
		return nil
	}

	var errs []error
	for _, h := range handlers {
		if err := invoke(ctx, h, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func invoke(ctx context.Context, h Handler, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler for %s panicked: %v", ev.Name, r)
		}
	}()
	return h(ctx, ev)
}
