package realtime

import (
	"context"
	"log/slog"
	"sync"

	"github.com/bissquit/resilio/internal/pkg/ctxlog"
)

// Publisher delivers incident events to every connected observer.
// Delivery is best effort and never blocks the caller.
type Publisher interface {
	Publish(ctx context.Context, event Event)
}

// Hub is the in-process fan-out of encoded event frames.
type Hub struct {
	mu         sync.Mutex
	subs       map[*Subscription]struct{}
	maxDropped int
	closed     bool
}

// NewHub creates a hub. A subscriber that misses maxDropped consecutive
// frames is disconnected; zero keeps slow subscribers forever.
func NewHub(maxDropped int) *Hub {
	return &Hub{
		subs:       make(map[*Subscription]struct{}),
		maxDropped: maxDropped,
	}
}

// Subscription receives frames published after it was created.
type Subscription struct {
	hub     *Hub
	ch      chan []byte
	dropped int
}

// Messages returns the frame channel. It is closed when the subscription ends.
func (s *Subscription) Messages() <-chan []byte {
	return s.ch
}

// Close ends the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	s.hub.removeLocked(s)
}

// Subscribe registers a subscriber with the given buffer size.
func (h *Hub) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = 1
	}
	sub := &Subscription{hub: h, ch: make(chan []byte, buffer)}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		close(sub.ch)
		return sub
	}
	h.subs[sub] = struct{}{}
	subscribersGauge.Inc()
	return sub
}

// Publish encodes the event and broadcasts it to local subscribers.
func (h *Hub) Publish(ctx context.Context, event Event) {
	frame, err := event.Encode()
	if err != nil {
		ctxlog.FromContext(ctx).Error("failed to encode realtime event", "event", event.Type, "error", err)
		return
	}
	eventsPublished.WithLabelValues(string(event.Type)).Inc()
	h.Broadcast(frame)
}

// Broadcast delivers an already encoded frame. All subscribers observe
// frames in the same order.
func (h *Hub) Broadcast(frame []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for sub := range h.subs {
		select {
		case sub.ch <- frame:
			sub.dropped = 0
		default:
			sub.dropped++
			eventsDropped.Inc()
			if h.maxDropped > 0 && sub.dropped >= h.maxDropped {
				slog.Warn("disconnecting slow realtime subscriber", "dropped", sub.dropped)
				slowSubscribersEvicted.Inc()
				h.removeLocked(sub)
			}
		}
	}
}

// Len returns the number of active subscribers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close ends every subscription and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for sub := range h.subs {
		h.removeLocked(sub)
	}
}

func (h *Hub) removeLocked(sub *Subscription) {
	if _, ok := h.subs[sub]; !ok {
		return
	}
	delete(h.subs, sub)
	close(sub.ch)
	subscribersGauge.Dec()
}
