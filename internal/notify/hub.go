// Package notify fans out "new analysis available" announcements to
// connected listeners. Delivery is fire-and-forget: a listener that cannot
// take the message right now is dropped, nothing is retried or persisted.
package notify

import (
	"sync"
	"time"

	"call-quality-go/internal/logger"
)

// Announcement is the payload broadcast after an aggregate is recomputed.
type Announcement struct {
	Event   string    `json:"event"`
	Scope   string    `json:"scope"`
	Summary string    `json:"summary"`
	At      time.Time `json:"at"`
}

// EventNewAnalysis is the only event currently announced.
const EventNewAnalysis = "new_analysis"

type Listener struct {
	ch     chan Announcement
	closed bool
}

// C is the listener's receive channel. It is closed when the listener is
// unsubscribed or dropped.
func (l *Listener) C() <-chan Announcement {
	return l.ch
}

type Hub struct {
	mu        sync.Mutex
	listeners map[*Listener]struct{}
}

func NewHub() *Hub {
	return &Hub{listeners: make(map[*Listener]struct{})}
}

func (h *Hub) Subscribe() *Listener {
	l := &Listener{ch: make(chan Announcement, 8)}
	h.mu.Lock()
	h.listeners[l] = struct{}{}
	h.mu.Unlock()
	return l
}

func (h *Hub) Unsubscribe(l *Listener) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.drop(l)
}

// Announce broadcasts to every current listener. A listener whose buffer is
// full is treated as gone and removed; the announcement is not retried for
// it. No ordering is guaranteed across listeners.
func (h *Hub) Announce(a Announcement) {
	log := logger.New().WithComponent("notify")

	h.mu.Lock()
	defer h.mu.Unlock()
	for l := range h.listeners {
		select {
		case l.ch <- a:
		default:
			log.WithField("event", a.Event).Warn("dropping stalled listener")
			h.drop(l)
		}
	}
}

// Count reports the current listener count.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.listeners)
}

// drop must be called with h.mu held.
func (h *Hub) drop(l *Listener) {
	if _, ok := h.listeners[l]; !ok {
		return
	}
	delete(h.listeners, l)
	if !l.closed {
		l.closed = true
		close(l.ch)
	}
}
