package activity

import (
	"fmt"
	"sync"
)

// Event is the name of a qualifying input event.
//
// Names match the browser DOM events the dashboard listens for, so the
// values reported by the page can be used without translation.
type Event string

const (
	// EventPointerMove is a pointer move ("mousemove").
	EventPointerMove Event = "mousemove"

	// EventPointerDown is a pointer button press ("mousedown").
	EventPointerDown Event = "mousedown"

	// EventKeyPress is a key press ("keypress").
	EventKeyPress Event = "keypress"

	// EventScrollLegacy is the legacy Gecko wheel event ("DOMMouseScroll").
	EventScrollLegacy Event = "DOMMouseScroll"

	// EventWheel is the legacy wheel event ("mousewheel").
	EventWheel Event = "mousewheel"

	// EventTouchMove is a touch move ("touchmove").
	EventTouchMove Event = "touchmove"

	// EventPointerMoveLegacy is the legacy MS pointer move ("MSPointerMove").
	EventPointerMoveLegacy Event = "MSPointerMove"
)

// qualifyingEvents is the fixed set of events that reactivate polling.
var qualifyingEvents = []Event{
	EventPointerMove,
	EventPointerDown,
	EventKeyPress,
	EventScrollLegacy,
	EventWheel,
	EventTouchMove,
	EventPointerMoveLegacy,
}

// QualifyingEvents returns a copy of the events that count as user activity.
func QualifyingEvents() []Event {
	cp := make([]Event, len(qualifyingEvents))
	copy(cp, qualifyingEvents)
	return cp
}

// ParseEvent validates an event name reported by a client.
// Matching is exact; DOM event names are case-sensitive.
func ParseEvent(name string) (Event, error) {
	for _, ev := range qualifyingEvents {
		if string(ev) == name {
			return ev, nil
		}
	}
	return "", fmt.Errorf("unknown activity event %q", name)
}

// String returns the DOM name of the event.
func (e Event) String() string {
	return string(e)
}

// Source delivers input events to subscribers.
//
// Subscribe registers handler for a single event name and returns a function
// that removes the registration. The returned function must be safe to call
// more than once.
type Source interface {
	Subscribe(ev Event, handler func()) (unsubscribe func())
}

// Hub is an in-process [Source]. Producers call [Hub.Emit]; every handler
// subscribed to that event runs synchronously on the emitting goroutine.
//
// Hub is safe for concurrent use.
type Hub struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers map[Event]map[uint64]func()
}

// NewHub creates an empty [Hub].
func NewHub() *Hub {
	return &Hub{
		handlers: make(map[Event]map[uint64]func()),
	}
}

// Subscribe implements [Source].
func (h *Hub) Subscribe(ev Event, handler func()) func() {
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	if h.handlers[ev] == nil {
		h.handlers[ev] = make(map[uint64]func())
	}
	h.handlers[ev][id] = handler
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.handlers[ev], id)
			if len(h.handlers[ev]) == 0 {
				delete(h.handlers, ev)
			}
			h.mu.Unlock()
		})
	}
}

// Emit delivers ev to its subscribers and returns how many were notified.
func (h *Hub) Emit(ev Event) int {
	// snapshot under the read lock so handlers may unsubscribe
	h.mu.RLock()
	targets := make([]func(), 0, len(h.handlers[ev]))
	for _, fn := range h.handlers[ev] {
		targets = append(targets, fn)
	}
	h.mu.RUnlock()

	for _, fn := range targets {
		fn()
	}
	return len(targets)
}

// Subscribers returns the number of handlers registered for ev.
func (h *Hub) Subscribers(ev Event) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.handlers[ev])
}
