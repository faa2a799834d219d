package server

import (
	"net/http"
	"sync"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/aristath/lookout/internal/pipeline"
)

const subscriberBuffer = 32

// EventHub fans pipeline progress events out to websocket subscribers.
// Slow subscribers are dropped rather than allowed to block a run.
type EventHub struct {
	log zerolog.Logger

	mu          sync.Mutex
	subscribers map[chan pipeline.Event]struct{}
	closed      bool
}

// NewEventHub creates an empty hub.
func NewEventHub(log zerolog.Logger) *EventHub {
	return &EventHub{
		log:         log.With().Str("component", "event_hub").Logger(),
		subscribers: make(map[chan pipeline.Event]struct{}),
	}
}

// Publish delivers an event to every subscriber. Non-blocking: a
// subscriber whose buffer is full misses the event.
func (h *EventHub) Publish(e pipeline.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subscribers {
		select {
		case ch <- e:
		default:
			h.log.Warn().Str("kind", string(e.Kind)).Msg("Subscriber buffer full, dropping event")
		}
	}
}

func (h *EventHub) subscribe() (chan pipeline.Event, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, false
	}
	ch := make(chan pipeline.Event, subscriberBuffer)
	h.subscribers[ch] = struct{}{}
	return ch, true
}

func (h *EventHub) unsubscribe(ch chan pipeline.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subscribers, ch)
}

// HandleStream upgrades the request to a websocket and streams pipeline
// events as JSON until the client disconnects or the hub closes.
func (h *EventHub) HandleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.log.Warn().Err(err).Msg("Websocket accept failed")
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	ch, ok := h.subscribe()
	if !ok {
		conn.Close(websocket.StatusGoingAway, "shutting down")
		return
	}
	defer h.unsubscribe(ch)

	h.log.Debug().Msg("Event stream subscriber connected")

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case event, open := <-ch:
			if !open {
				return
			}
			if err := wsjson.Write(ctx, conn, event); err != nil {
				h.log.Debug().Err(err).Msg("Event stream subscriber gone")
				return
			}
		}
	}
}

// Close stops accepting subscribers and disconnects existing ones.
func (h *EventHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for ch := range h.subscribers {
		close(ch)
	}
	h.subscribers = make(map[chan pipeline.Event]struct{})
}
