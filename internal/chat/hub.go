package chat

import (
	"sync"

	"github.com/anonto42/lost-found/backend/internal/metrics"
	"github.com/anonto42/lost-found/backend/internal/models"
)

// Hub fans stored messages out to live subscribers of the same thread
// within this process. Sends never block: a subscriber whose buffer is full
// misses the message and catches up from the store on reconnect.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[chan models.Message]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[chan models.Message]struct{})}
}

// Subscribe registers a subscriber for threadID. The returned cancel func
// unregisters it and closes the channel; it is safe to call more than once.
func (h *Hub) Subscribe(threadID string, buffer int) (<-chan models.Message, func()) {
	ch := make(chan models.Message, buffer)

	h.mu.Lock()
	set, ok := h.subs[threadID]
	if !ok {
		set = make(map[chan models.Message]struct{})
		h.subs[threadID] = set
	}
	set[ch] = struct{}{}
	h.mu.Unlock()
	metrics.LiveSubscribers.Inc()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[threadID], ch)
			if len(h.subs[threadID]) == 0 {
				delete(h.subs, threadID)
			}
			close(ch)
			h.mu.Unlock()
			metrics.LiveSubscribers.Dec()
		})
	}
	return ch, cancel
}

func (h *Hub) Publish(msg models.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[msg.ThreadID] {
		select {
		case ch <- msg:
		default:
		}
	}
}

// Subscribers reports how many live subscribers threadID has.
func (h *Hub) Subscribers(threadID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[threadID])
}
