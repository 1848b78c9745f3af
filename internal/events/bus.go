// Package events carries terminal state changes to whatever UI is attached.
package events

import (
	"sync"
	"time"
)

// EventType names a kind of state change.
type EventType string

const (
	StatusChanged    EventType = "status_changed"
	LastEventChanged EventType = "last_event_changed"
	LastSentChanged  EventType = "last_sent_changed"
	RoleChanged      EventType = "role_changed"
	TaskAdded        EventType = "task_added"
	TaskUpdated      EventType = "task_updated"
	TasksCleared     EventType = "tasks_cleared"
	ResponseDetected EventType = "response_detected"
)

// Event is one published change. Payload is the new value: a string for the
// display fields, a model.TaskItem for task changes, an int count for
// TasksCleared, a model.ResponseCode for ResponseDetected.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Payload   any
}

// Subscriber receives events on its own goroutine.
type Subscriber func(Event)

type subscription struct {
	ch    chan Event
	types map[EventType]bool // nil means every type
}

func (s *subscription) wants(t EventType) bool {
	return s.types == nil || s.types[t]
}

// Bus is a non-blocking publish/subscribe hub. Each subscriber owns a
// buffered channel; when it is full the event is dropped for that subscriber
// so publishers (the poll loop, the dispatcher) never stall on a slow UI.
type Bus struct {
	mu         sync.RWMutex
	subs       []*subscription
	bufferSize int
	closed     bool
}

func NewBus(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &Bus{bufferSize: bufferSize}
}

// Subscribe registers fn for the given event types, or for all types when
// none are given. It returns an unsubscribe function.
func (b *Bus) Subscribe(fn Subscriber, types ...EventType) func() {
	sub := &subscription{ch: make(chan Event, b.bufferSize)}
	if len(types) > 0 {
		sub.types = make(map[EventType]bool, len(types))
		for _, t := range types {
			sub.types[t] = true
		}
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return func() {}
	}
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	go func() {
		for ev := range sub.ch {
			deliver(fn, ev)
		}
	}()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.subs {
			if s == sub {
				b.subs = append(b.subs[:i], b.subs[i+1:]...)
				close(sub.ch)
				return
			}
		}
	}
}

// deliver isolates the bus from a panicking subscriber.
func deliver(fn Subscriber, ev Event) {
	defer func() { _ = recover() }()
	fn(ev)
}

// Publish fans the event out without blocking. A nil Bus is a no-op.
func (b *Bus) Publish(t EventType, payload any) {
	if b == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	ev := Event{Type: t, Timestamp: time.Now().UTC(), Payload: payload}
	for _, sub := range b.subs {
		if !sub.wants(t) {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
		}
	}
}

// Close ends every subscription. Later Subscribe calls are no-ops.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs {
		close(sub.ch)
	}
	b.subs = nil
	b.closed = true
}
