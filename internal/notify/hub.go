// Package notify fans job status events out to subscribed websocket clients.
package notify

import (
	"sync"
	"time"

	"github.com/psd401/aistudio-document-service/internal/models"
)

// JobEvent is one job status change, delivered to the owning user only.
type JobEvent struct {
	JobID  string           `json:"job_id"`
	UserID string           `json:"-"`
	Status models.JobStatus `json:"status"`
	At     time.Time        `json:"at"`
}

const subscriberBuffer = 16

// Hub tracks per-user subscriptions. Publish never blocks: a subscriber that
// stops draining its channel loses events rather than stalling the service.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[chan JobEvent]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[chan JobEvent]struct{})}
}

func (h *Hub) Subscribe(userID string) chan JobEvent {
	ch := make(chan JobEvent, subscriberBuffer)

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.subs[userID] == nil {
		h.subs[userID] = make(map[chan JobEvent]struct{})
	}
	h.subs[userID][ch] = struct{}{}
	return ch
}

func (h *Hub) Unsubscribe(userID string, ch chan JobEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if set, ok := h.subs[userID]; ok {
		if _, ok := set[ch]; ok {
			delete(set, ch)
			close(ch)
		}
		if len(set) == 0 {
			delete(h.subs, userID)
		}
	}
}

func (h *Hub) Publish(ev JobEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subs[ev.UserID] {
		select {
		case ch <- ev:
		default:
		}
	}
}

// SubscriberCount reports active subscriptions for a user.
func (h *Hub) SubscriberCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[userID])
}
