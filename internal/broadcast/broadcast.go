// Package broadcast implements the multi-producer/multi-consumer fan-out
// channel described in spec.md §4.5/§5. It is not lock-free: the subscriber
// table is guarded by a sync.RWMutex, and each subscriber gets its own
// buffered Go channel. It is one stream carrying both
// raw encoded write-command frames (consumed by replica-link tasks) and
// internal wake events (DB_UPDATED, DB_UPDATED_LIST<key>) consumed by
// blocking commands. Per spec.md §9, a single implementation may multiplex
// both kinds on one channel; filtering which kind a given consumer cares
// about is left to the consumer.
package broadcast

import (
	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"
	"sync"
)

// Kind tags what a Message carries.
type Kind int

const (
	// KindWrite carries a raw encoded write-command frame, to be forwarded
	// verbatim to replica links.
	KindWrite Kind = iota
	// KindDBUpdated signals "something in the keyspace changed", the event
	// XREAD BLOCK with ms=0 waits on.
	KindDBUpdated
	// KindDBUpdatedList signals a push onto the list named by ListKey, the
	// event BLPOP waits on.
	KindDBUpdatedList
)

// Message is one broadcast unit.
type Message struct {
	Kind    Kind
	Frame   []byte // meaningful for KindWrite
	ListKey string // meaningful for KindDBUpdatedList
}

// bufferSize bounds each subscriber's channel for burst tolerance, per
// spec.md §5 ("bounded buffer sized for burst tolerance (≈1024 messages)").
const bufferSize = 1024

// Hub is the shared broadcast channel. Publish never blocks on a slow
// subscriber: a full subscriber channel drops the new message and logs a
// warning rather than stalling every other task sharing the keyspace lock.
type Hub struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]chan Message
}

func NewHub() *Hub {
	return &Hub{subs: make(map[int]chan Message)}
}

// Subscribe registers a new consumer and returns its id (for Unsubscribe)
// and the channel it should range over.
func (h *Hub) Subscribe() (id int, ch <-chan Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	id = h.nextID
	c := make(chan Message, bufferSize)
	h.subs[id] = c
	return id, c
}

// Unsubscribe removes and closes a subscriber's channel.
func (h *Hub) Unsubscribe(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(c)
	}
}

// Publish fans msg out to every current subscriber. Must be called with no
// keyspace/sorted-set/table lock held, per spec.md §4.4's lock-before-I/O
// discipline.
func (h *Hub) Publish(msg Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, c := range h.subs {
		select {
		case c <- msg:
		default:
			cclog.Warnf("broadcast: dropping message for slow subscriber %d", id)
		}
	}
}
