// Package blocking implements the fair BLPOP wakeup queue and the XREAD
// BLOCK wait loop described in spec.md §4.6. Both ride the same broadcast
// hub that carries replication write frames; each filters for the event
// kind it cares about and ignores the rest.
package blocking

import (
	"context"
	"sync"
	"time"

	"github.com/memnode/memnode/internal/broadcast"
	"github.com/memnode/memnode/internal/store"
)

// maxBlockTimeout caps a zero (infinite) BLPOP timeout at one hour, per
// spec.md §4.6.
const maxBlockTimeout = time.Hour

// Table is the process-wide blocked-client table: a FIFO of connection IDs
// per list key. Only the head of a key's queue wakes on that key's
// DB_UPDATED_LIST event (spec.md §5 BLPOP fairness).
type Table struct {
	mu     sync.Mutex
	queues map[string][]int
}

func NewTable() *Table {
	return &Table{queues: make(map[string][]int)}
}

func (t *Table) enqueue(key string, id int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.queues[key] = append(t.queues[key], id)
}

func (t *Table) isHead(key string, id int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	q := t.queues[key]
	return len(q) > 0 && q[0] == id
}

func (t *Table) remove(key string, id int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	q := t.queues[key]
	for i, v := range q {
		if v == id {
			t.queues[key] = append(q[:i], q[i+1:]...)
			break
		}
	}
	if len(t.queues[key]) == 0 {
		delete(t.queues, key)
	}
}

func tryPopFront(ks *store.Keyspace, key string) (string, bool) {
	list, ok := ks.GetListIfExists(key)
	if !ok {
		return "", false
	}
	vals, ok := list.LPop(1)
	if !ok || len(vals) == 0 {
		return "", false
	}
	return vals[0], true
}

// BLPop blocks connID until key has an element to pop or timeout elapses.
// timeout of zero means "wait up to maxBlockTimeout". Returns ok=false on
// timeout or context cancellation.
func BLPop(ctx context.Context, ks *store.Keyspace, hub *broadcast.Hub, table *Table, connID int, key string, timeout time.Duration) (value string, ok bool) {
	if v, ok := tryPopFront(ks, key); ok {
		return v, true
	}

	if timeout <= 0 {
		timeout = maxBlockTimeout
	}

	subID, ch := hub.Subscribe()
	defer hub.Unsubscribe(subID)

	table.enqueue(key, connID)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case msg, open := <-ch:
			if !open {
				table.remove(key, connID)
				return "", false
			}
			if msg.Kind != broadcast.KindDBUpdatedList || msg.ListKey != key {
				continue
			}
			if !table.isHead(key, connID) {
				continue
			}
			if v, ok := tryPopFront(ks, key); ok {
				table.remove(key, connID)
				if list, ok := ks.GetListIfExists(key); ok && list.Len() > 0 {
					// Hand the remaining value off to the next queued
					// waiter explicitly: by the time it observes this
					// event, table.remove above has already run, so it is
					// guaranteed to see itself as head. Waiting for the
					// next unrelated push to wake it would be a race if
					// that push's event is drained before this goroutine's
					// removal is visible.
					hub.Publish(broadcast.Message{Kind: broadcast.KindDBUpdatedList, ListKey: key})
				}
				return v, true
			}
			// Woken as head but lost the race to another reader (e.g. a
			// non-blocking LPOP from another command); keep waiting.
		case <-timer.C:
			table.remove(key, connID)
			return "", false
		case <-ctx.Done():
			table.remove(key, connID)
			return "", false
		}
	}
}

// XReadBlock waits for any of the given streams to gain an entry newer
// than its corresponding startID, returning per-key new entries. It always
// blocks when nothing is available yet: callers handle the non-blocking
// case themselves with store.Stream.After. ms<=0 waits with no deadline for
// a DB_UPDATED event; ms>0 waits at most that many milliseconds.
func XReadBlock(ctx context.Context, ks *store.Keyspace, hub *broadcast.Hub, keys []string, startIDs []store.StreamID, ms int) map[string][]store.StreamEntry {
	if res := collect(ks, keys, startIDs); len(res) > 0 {
		return res
	}

	subID, ch := hub.Subscribe()
	defer hub.Unsubscribe(subID)

	var timeoutCh <-chan time.Time
	if ms > 0 {
		timer := time.NewTimer(time.Duration(ms) * time.Millisecond)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	for {
		select {
		case msg, open := <-ch:
			if !open {
				return nil
			}
			if msg.Kind != broadcast.KindDBUpdated {
				continue
			}
			if res := collect(ks, keys, startIDs); len(res) > 0 {
				return res
			}
		case <-timeoutCh:
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}

func collect(ks *store.Keyspace, keys []string, startIDs []store.StreamID) map[string][]store.StreamEntry {
	out := make(map[string][]store.StreamEntry)
	for i, key := range keys {
		s, ok := ks.GetStreamIfExists(key)
		if !ok {
			continue
		}
		entries := s.After(startIDs[i])
		if len(entries) > 0 {
			out[key] = entries
		}
	}
	return out
}
