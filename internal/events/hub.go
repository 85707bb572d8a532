// Package events is the session event bus: every open view of the app (a
// browser tab, a CLI listener) subscribes to a channel, and the server
// publishes login, logout and watchlist_saved events to it. Listeners never
// receive state, only a hint to re-derive their own from the API.
//
// CHANNELS:
// A channel is an id the client picks once per device (a UUID) and sends in
// the X-Client-Channel header. All tabs sharing that id hear each other's
// events, which is what the cross-tab login/logout broadcast needs.
//
// DELIVERY IS BEST EFFORT:
// Publish never blocks. A subscriber whose buffer is full is dropped and its
// channel closed; the listener reconnects and refreshes from the API.
package events

import (
	"sync"
	"time"
)

// Type names what happened.
type Type string

const (
	TypeLogin          Type = "login"
	TypeLogout         Type = "logout"
	TypeWatchlistSaved Type = "watchlist_saved"
)

// Event is the JSON message streamed to listeners.
type Event struct {
	Type     Type      `json:"type"`
	Username string    `json:"username,omitempty"`
	At       time.Time `json:"at"`
}

// subscriberBuffer is how many undelivered events a subscriber may queue
// before it counts as slow.
const subscriberBuffer = 16

// Subscription receives the events of one channel until Close is called or
// the hub drops it.
type Subscription struct {
	C <-chan Event

	hub     *Hub
	channel string
	ch      chan Event
	once    sync.Once
}

// Close unsubscribes. It is safe to call more than once and after the hub
// has already dropped the subscription.
func (s *Subscription) Close() {
	s.hub.remove(s)
}

// Hub routes events to subscribers by channel.
type Hub struct {
	mu       sync.RWMutex
	channels map[string]map[*Subscription]struct{}
}

func NewHub() *Hub {
	return &Hub{channels: make(map[string]map[*Subscription]struct{})}
}

// Subscribe registers a new listener on channel.
func (h *Hub) Subscribe(channel string) *Subscription {
	ch := make(chan Event, subscriberBuffer)
	s := &Subscription{C: ch, hub: h, channel: channel, ch: ch}

	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.channels[channel]
	if !ok {
		subs = make(map[*Subscription]struct{})
		h.channels[channel] = subs
	}
	subs[s] = struct{}{}
	return s
}

// Publish delivers e to every subscriber of channel and reports how many
// received it. An empty channel is ignored.
func (h *Hub) Publish(channel string, e Event) int {
	if channel == "" {
		return 0
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}

	var slow []*Subscription
	delivered := 0

	h.mu.RLock()
	for s := range h.channels[channel] {
		select {
		case s.ch <- e:
			delivered++
		default:
			slow = append(slow, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range slow {
		h.remove(s)
	}
	return delivered
}

// Subscribers reports how many listeners channel has.
func (h *Hub) Subscribers(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[channel])
}

func (h *Hub) remove(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if subs, ok := h.channels[s.channel]; ok {
		delete(subs, s)
		if len(subs) == 0 {
			delete(h.channels, s.channel)
		}
	}
	// Closing under the write lock means no Publish can be sending on it.
	s.once.Do(func() { close(s.ch) })
}
