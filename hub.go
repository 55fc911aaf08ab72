package signflow

import (
	"slices"
	"sync"
)

// subscriberBuf bounds how far a live observer may lag behind the publisher.
// A job emits at most a handful of events per webpage, so an attached
// subscriber never comes close to filling it.
const subscriberBuf = 256

// Subscriber is one observer's view of a job's event stream.
type Subscriber struct {
	ch chan ProgressEvent
}

// Events returns the subscriber's delivery channel. It is closed when the
// subscriber is removed from the hub.
func (s *Subscriber) Events() <-chan ProgressEvent {
	return s.ch
}

// Hub is a per-job append-only event log plus the live set of observers.
// New subscribers receive the full history before any live event, and
// delivery order always matches publish order.
type Hub struct {
	mu     sync.Mutex
	events []ProgressEvent
	subs   map[*Subscriber]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[*Subscriber]struct{})}
}

// Publish appends ev to the history and delivers it to every live
// subscriber in publish order.
func (h *Hub) Publish(ev ProgressEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, ev)
	for sub := range h.subs {
		select {
		case sub.ch <- ev:
		default:
			// The subscriber stopped draining; treat it like a disconnect
			// rather than stalling the job.
			delete(h.subs, sub)
			close(sub.ch)
		}
	}
}

// Subscribe replays the full history to a new subscriber and joins it to the
// live set. Both steps happen under one lock, so no event can slip between
// the replay and the first live delivery.
func (h *Hub) Subscribe() *Subscriber {
	h.mu.Lock()
	defer h.mu.Unlock()
	sub := &Subscriber{ch: make(chan ProgressEvent, len(h.events)+subscriberBuf)}
	for _, ev := range h.events {
		sub.ch <- ev
	}
	h.subs[sub] = struct{}{}
	return sub
}

// Unsubscribe removes sub from the live set and closes its channel. It is
// safe to call for an already-removed subscriber.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[sub]; ok {
		delete(h.subs, sub)
		close(sub.ch)
	}
}

// Events returns a copy of the history so far.
func (h *Hub) Events() []ProgressEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.events)
}

// Len reports how many events have been published.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.events)
}
