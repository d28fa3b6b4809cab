package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

var (
	ErrAlreadySubscribed = errors.New("already subscribed")
	ErrNotSubscribed     = errors.New("not subscribed")
	ErrBusFull           = errors.New("event queue full")
)

// Handler receives events for one subscription.
type Handler func(Event)

// EventBus is the subscription side of the bus, as seen by the flows.
type EventBus interface {
	Subscribe(kind EventKind, handlerID string, h Handler) error
	Unsubscribe(kind EventKind, handlerID string) error
}

// Publisher is the producing side of the bus.
type Publisher interface {
	Publish(ev Event) error
}

// newHandlerID returns a unique subscriber id with a readable prefix.
func newHandlerID(prefix string) string {
	return prefix + "-" + uuid.NewString()
}

// bus delivers events to subscribed handlers. Handlers run one at a time on
// the goroutine calling run, so the state they touch needs no locking.
// Events published while nobody listens for their kind are dropped.
type bus struct {
	mu     sync.Mutex
	subs   map[EventKind]map[string]Handler
	queue  chan Event
	logger *slog.Logger
}

func newBus(logger *slog.Logger, depth int) *bus {
	if depth <= 0 {
		depth = 16
	}
	return &bus{
		subs:   make(map[EventKind]map[string]Handler),
		queue:  make(chan Event, depth),
		logger: logger,
	}
}

func (b *bus) Subscribe(kind EventKind, handlerID string, h Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	byID := b.subs[kind]
	if byID == nil {
		byID = make(map[string]Handler)
		b.subs[kind] = byID
	}
	if _, ok := byID[handlerID]; ok {
		return fmt.Errorf("%s for %s: %w", kind, handlerID, ErrAlreadySubscribed)
	}
	byID[handlerID] = h
	b.logger.Debug("subscribed", "event", kind, "handler", handlerID)
	return nil
}

func (b *bus) Unsubscribe(kind EventKind, handlerID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	byID := b.subs[kind]
	if _, ok := byID[handlerID]; !ok {
		return fmt.Errorf("%s for %s: %w", kind, handlerID, ErrNotSubscribed)
	}
	delete(byID, handlerID)
	b.logger.Debug("unsubscribed", "event", kind, "handler", handlerID)
	return nil
}

// subscribed reports whether anyone listens for kind.
func (b *bus) subscribed(kind EventKind) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[kind]) > 0
}

// Publish queues ev for delivery. It never blocks.
func (b *bus) Publish(ev Event) error {
	if !b.subscribed(ev.Kind()) {
		b.logger.Debug("no subscriber, dropping event", "event", ev.Kind())
		return nil
	}
	select {
	case b.queue <- ev:
		return nil
	default:
		b.logger.Warn("event queue full, dropping event", "event", ev.Kind())
		return ErrBusFull
	}
}

// dispatch hands ev to every handler subscribed at this moment.
func (b *bus) dispatch(ev Event) {
	b.mu.Lock()
	handlers := make([]Handler, 0, len(b.subs[ev.Kind()]))
	for _, h := range b.subs[ev.Kind()] {
		handlers = append(handlers, h)
	}
	b.mu.Unlock()

	for _, h := range handlers {
		h(ev)
	}
}

// run dispatches queued events until ctx is done.
func (b *bus) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-b.queue:
			b.dispatch(ev)
		}
	}
}
