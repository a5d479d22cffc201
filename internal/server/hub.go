package server

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/qkdlab/bb84sim/bb84"
)

// An envelope is the wire form of every message sent to observers.
type envelope struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

func envelopeFor(e bb84.Event) envelope {
	return envelope{Type: string(e.Kind()), Data: e}
}

// A hub fans a session's events out to its observers. Emit never blocks: an
// observer whose buffer is full misses the event.
type hub struct {
	buffer int
	log    zerolog.Logger

	mu   sync.Mutex
	subs map[chan envelope]struct{}
}

func newHub(buffer int, log zerolog.Logger) *hub {
	return &hub{
		buffer: buffer,
		log:    log.With().Str("component", "hub").Logger(),
		subs:   make(map[chan envelope]struct{}),
	}
}

// subscribe registers a new observer. The returned channel is closed by
// cancel or when the hub shuts down.
func (h *hub) subscribe() (<-chan envelope, func()) {
	ch := make(chan envelope, h.buffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subs[ch]; ok {
			delete(h.subs, ch)
			close(ch)
		}
	}
}

// Emit implements bb84.Sink.
func (h *hub) Emit(e bb84.Event) {
	env := envelopeFor(e)
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- env:
		default:
			h.log.Warn().
				Str("event_type", env.Type).
				Msg("Event channel full, dropping event")
		}
	}
}

func (h *hub) subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		delete(h.subs, ch)
		close(ch)
	}
}
