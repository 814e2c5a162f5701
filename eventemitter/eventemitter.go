// Package eventemitter provides typed, synchronous event dispatch.
//
// Listeners are called on the emitting goroutine in registration order.
// A listener that must not block the emitter should start its own goroutine.
//
// Example:
//
//	e := eventemitter.New[string]()
//	token := e.AddListener("finding", func(ctx context.Context, s string) { fmt.Println(s) })
//	e.Emit(ctx, "finding", "mismatch") // Output: mismatch
//	e.RemoveListener("finding", token)
package eventemitter

import (
	"context"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
)

// ListenerToken identifies a registered listener.
type ListenerToken string

var tokenSeq atomic.Uint64

func nextToken() ListenerToken {
	return ListenerToken("l" + strconv.FormatUint(tokenSeq.Add(1), 36))
}

// Listener receives the payload of an emitted event.
type Listener[P any] func(ctx context.Context, payload P)

// EventEmitter dispatches payloads of type P to listeners grouped by event name.
// It is safe for concurrent use.
type EventEmitter[P any] struct {
	mu     sync.RWMutex
	events map[string][]eventListener[P]
}

type eventListener[P any] struct {
	token   ListenerToken
	handler Listener[P]
}

// New creates a new EventEmitter instance.
func New[P any]() *EventEmitter[P] {
	return &EventEmitter[P]{
		events: make(map[string][]eventListener[P]),
	}
}

// AddListener registers listener for eventName.
func (e *EventEmitter[P]) AddListener(eventName string, listener Listener[P]) ListenerToken {
	e.mu.Lock()
	defer e.mu.Unlock()

	token := nextToken()
	e.events[eventName] = append(e.events[eventName], eventListener[P]{
		token:   token,
		handler: listener,
	})
	return token
}

// RemoveListener removes a listener by token from a specific event.
func (e *EventEmitter[P]) RemoveListener(eventName string, token ListenerToken) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	listeners, ok := e.events[eventName]
	if !ok {
		return false
	}
	i := slices.IndexFunc(listeners, func(l eventListener[P]) bool { return l.token == token })
	if i < 0 {
		return false
	}
	e.events[eventName] = slices.Delete(listeners, i, i+1)
	return true
}

// RemoveAllListeners removes every listener for eventName.
func (e *EventEmitter[P]) RemoveAllListeners(eventName string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.events[eventName]; ok {
		delete(e.events, eventName)
		return true
	}
	return false
}

// ListenerCount returns the number of listeners registered for eventName.
func (e *EventEmitter[P]) ListenerCount(eventName string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.events[eventName])
}

// Emit calls each listener of eventName with payload.
// It reports whether any listener was called.
func (e *EventEmitter[P]) Emit(ctx context.Context, eventName string, payload P) bool {
	e.mu.RLock()
	listeners := slices.Clone(e.events[eventName])
	e.mu.RUnlock()

	// Listeners run without the lock held so they may add or remove listeners.
	for _, listener := range listeners {
		listener.handler(ctx, payload)
	}
	return len(listeners) > 0
}

// EventTarget is an emitter bound to a single event name.
type EventTarget[P any] struct {
	emitter   *EventEmitter[P]
	eventName string
}

func NewEventTarget[P any](eventName string) *EventTarget[P] {
	return &EventTarget[P]{New[P](), eventName}
}

func (et *EventTarget[P]) EventName() string {
	return et.eventName
}

func (et *EventTarget[P]) AddListener(listener Listener[P]) ListenerToken {
	return et.emitter.AddListener(et.eventName, listener)
}

func (et *EventTarget[P]) RemoveListener(token ListenerToken) bool {
	return et.emitter.RemoveListener(et.eventName, token)
}

func (et *EventTarget[P]) RemoveAllListeners() bool {
	return et.emitter.RemoveAllListeners(et.eventName)
}

func (et *EventTarget[P]) ListenerCount() int {
	return et.emitter.ListenerCount(et.eventName)
}

func (et *EventTarget[P]) Emit(ctx context.Context, payload P) bool {
	return et.emitter.Emit(ctx, et.eventName, payload)
}
