package cartstore

import (
	"sync"

	"github.com/example/storefront-cart/internal/domain/cart"
)

// Update is a cart value as delivered to subscribers.
type Update struct {
	Profile string
	Cart    cart.Cart
	Version int64
}

// Hub fans cart updates out to in-process subscribers. Each subscription
// holds only the latest update; a slow reader skips intermediate versions.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[*Subscription]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[*Subscription]struct{})}
}

type Subscription struct {
	C <-chan Update

	ch      chan Update
	hub     *Hub
	profile string
	once    sync.Once
}

func (h *Hub) Subscribe(profile string) *Subscription {
	ch := make(chan Update, 1)
	sub := &Subscription{C: ch, ch: ch, hub: h, profile: profile}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[profile] == nil {
		h.subs[profile] = make(map[*Subscription]struct{})
	}
	h.subs[profile][sub] = struct{}{}
	return sub
}

// Close unsubscribes and closes C. It is safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		defer s.hub.mu.Unlock()
		delete(s.hub.subs[s.profile], s)
		if len(s.hub.subs[s.profile]) == 0 {
			delete(s.hub.subs, s.profile)
		}
		close(s.ch)
	})
}

// Publish never blocks.
func (h *Hub) Publish(u Update) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs[u.Profile] {
		select {
		case sub.ch <- u:
		default:
			// replace the unread update
			select {
			case <-sub.ch:
			default:
			}
			sub.ch <- u
		}
	}
}

func (h *Hub) Subscribers(profile string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[profile])
}
