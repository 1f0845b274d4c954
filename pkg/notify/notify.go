// Package notify fans out user-facing notices and state updates to
// in-process listeners such as WebSocket sessions and IPC clients.
//
// Delivery is best effort: a listener whose buffer is full misses the event,
// other listeners are unaffected. Nothing is persisted or replayed.
package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event types.
const (
	TypeNotice = "notice"
	TypeFeed   = "feed"
)

type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Notice is a dismissible message for the user. Code identifies the
// condition, e.g. a voice error kind or "feed_fallback".
type Notice struct {
	ID      string    `json:"id"`
	Level   Level     `json:"level"`
	Code    string    `json:"code"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// NewNotice fills in the id and timestamp.
func NewNotice(level Level, code, message string) Notice {
	return Notice{
		ID:      uuid.NewString(),
		Level:   level,
		Code:    code,
		Message: message,
		At:      time.Now().UTC(),
	}
}

// Event is the envelope delivered to listeners. Data carries the payload of
// feed events.
type Event struct {
	Type   string  `json:"type"`
	Notice *Notice `json:"notice,omitempty"`
	Data   any     `json:"data,omitempty"`
}

type Hub struct {
	mu        sync.RWMutex
	listeners map[uint64]chan Event
	nextID    uint64
	bufSize   int
}

// NewHub returns a hub with the given per-listener buffer; <= 0 means 32.
func NewHub(bufSize int) *Hub {
	if bufSize <= 0 {
		bufSize = 32
	}
	return &Hub{
		listeners: make(map[uint64]chan Event),
		bufSize:   bufSize,
	}
}

// Register adds a listener. Callers must Unregister it when done.
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

func (h *Hub) Broadcast(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.listeners {
		select {
		case ch <- ev:
		default:
			// slow listener
		}
	}
}

// Notify broadcasts a notice.
func (h *Hub) Notify(n Notice) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.At.IsZero() {
		n.At = time.Now().UTC()
	}
	h.Broadcast(Event{Type: TypeNotice, Notice: &n})
}

// Publish broadcasts a payload under the given event type.
func (h *Hub) Publish(eventType string, data any) {
	h.Broadcast(Event{Type: eventType, Data: data})
}

func (h *Hub) Size() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.listeners)
}
