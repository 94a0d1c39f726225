// Package pubsub tracks channel subscriptions for SUBSCRIBE/UNSUBSCRIBE,
// per spec.md §3/§4.6. Delivery itself (writing frames to subscriber
// connections, and the optional NATS cross-instance fan-out of §4's
// domain stack) is the dispatcher's job, since it is the dispatcher that
// holds the registry of live connections.
package pubsub

import "sync"

// Table is the process-wide channel -> subscriber-set index.
type Table struct {
	mu       sync.Mutex
	channels map[string]map[int]bool
}

func NewTable() *Table {
	return &Table{channels: make(map[string]map[int]bool)}
}

// Subscribe adds connID to channel's subscriber set. Returns the new
// subscriber count for that channel.
func (t *Table) Subscribe(channel string, connID int) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	set, ok := t.channels[channel]
	if !ok {
		set = make(map[int]bool)
		t.channels[channel] = set
	}
	set[connID] = true
	return len(set)
}

// Unsubscribe removes connID from channel's subscriber set.
func (t *Table) Unsubscribe(channel string, connID int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	set, ok := t.channels[channel]
	if !ok {
		return
	}
	delete(set, connID)
	if len(set) == 0 {
		delete(t.channels, channel)
	}
}

// UnsubscribeAll removes connID from every channel, used on disconnect.
func (t *Table) UnsubscribeAll(connID int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for channel, set := range t.channels {
		delete(set, connID)
		if len(set) == 0 {
			delete(t.channels, channel)
		}
	}
}

// Subscribers returns a snapshot of the connection IDs subscribed to
// channel.
func (t *Table) Subscribers(channel string) []int {
	t.mu.Lock()
	defer t.mu.Unlock()
	set := t.channels[channel]
	out := make([]int, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}
