package presence

import (
	"sync"

	"github.com/google/uuid"

	"github.com/collabware/livecursor/internal/location"
)

type subscriber struct {
	id      Subscription
	groupID string
	matcher location.Location
	opts    ObserveOptions
	fn      UpdateFunc
}

// Hub tracks presence observers and delivers updates to the ones whose
// matcher covers the changed user's locations.
type Hub struct {
	mu   sync.RWMutex
	subs map[Subscription]*subscriber
}

func NewHub() *Hub {
	return &Hub{subs: make(map[Subscription]*subscriber)}
}

func (h *Hub) Subscribe(groupID string, matcher location.Location, fn UpdateFunc, opts ObserveOptions) Subscription {
	sub := &subscriber{
		id:      Subscription(uuid.NewString()),
		groupID: groupID,
		matcher: matcher.Clone(),
		opts:    opts,
		fn:      fn,
	}

	h.mu.Lock()
	h.subs[sub.id] = sub
	h.mu.Unlock()
	return sub.id
}

func (h *Hub) Unsubscribe(id Subscription) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.subs[id]; !ok {
		return false
	}
	delete(h.subs, id)
	return true
}

// Deliver sends one user's presence to every subscriber in the group. The
// build callback produces the update for a given subscriber's matcher; a nil
// return skips that subscriber (nothing relevant ever matched). Subscribers
// are snapshotted before delivery so callbacks cannot deadlock against
// Subscribe/Unsubscribe.
func (h *Hub) Deliver(groupID string, build func(sub Subscription, matcher location.Location, opts ObserveOptions) *UserLocationData) {
	h.mu.RLock()
	targets := make([]*subscriber, 0, len(h.subs))
	for _, sub := range h.subs {
		if sub.groupID == groupID {
			targets = append(targets, sub)
		}
	}
	h.mu.RUnlock()

	for _, sub := range targets {
		if data := build(sub.id, sub.matcher, sub.opts); data != nil {
			sub.fn([]UserLocationData{*data})
		}
	}
}
