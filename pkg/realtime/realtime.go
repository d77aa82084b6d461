// Package realtime is an in-process publish/subscribe hub fanning catalog
// events out to stream listeners (the API's WebSocket sessions).
//
// Delivery is best effort: each listener has its own buffered channel and
// a listener whose buffer is full misses the event. Nothing is persisted
// or replayed.
package realtime

import (
	"sync"
	"time"
)

// Event is a catalog state change, shaped like the notifications sent to
// the message bus.
type Event struct {
	OrgGUID   string `json:"OrgGuid"`
	Message   string `json:"Message"`
	Timestamp int64  `json:"Timestamp"`
}

// NewEvent stamps message for org with the current time in milliseconds.
func NewEvent(org, message string) Event {
	return Event{OrgGUID: org, Message: message, Timestamp: time.Now().UnixMilli()}
}

// Hub is an in-memory fan-out dispatcher. It is safe for concurrent use.
type Hub struct {
	mu        sync.RWMutex
	listeners map[uint64]chan Event
	nextID    uint64
	bufSize   int
	dropped   func()
}

// NewHub returns a hub with the given per-listener buffer size. If
// bufSize <= 0, a default of 32 is used.
func NewHub(bufSize int) *Hub {
	if bufSize <= 0 {
		bufSize = 32
	}
	return &Hub{
		listeners: make(map[uint64]chan Event),
		bufSize:   bufSize,
	}
}

// OnDrop registers f to be called each time a slow listener misses an
// event.
func (h *Hub) OnDrop(f func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropped = f
}

// Register adds a listener and returns its id and channel. Callers must
// Unregister(id) when done.
func (h *Hub) Register() (uint64, <-chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextID
	h.nextID++
	ch := make(chan Event, h.bufSize)
	h.listeners[id] = ch
	return id, ch
}

// Unregister removes the listener and closes its channel. Unknown ids are
// ignored.
func (h *Hub) Unregister(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.listeners[id]; ok {
		delete(h.listeners, id)
		close(ch)
	}
}

// Broadcast delivers ev to every listener with room for it.
func (h *Hub) Broadcast(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.listeners {
		select {
		case ch <- ev:
		default:
			if h.dropped != nil {
				h.dropped()
			}
		}
	}
}

// Size returns the number of active listeners.
func (h *Hub) Size() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.listeners)
}
