package store

import "sync"

// List is an ordered deque of byte strings supporting push/pop at both
// ends. A per-list mutex (not the keyspace lock) guards its contents so
// that list operations don't serialize against unrelated keys.
type List struct {
	mu   sync.Mutex
	data []string
}

func NewList() *List { return &List{} }

// RPush appends values to the tail and returns the new length.
func (l *List) RPush(values ...string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.data = append(l.data, values...)
	return len(l.data)
}

// LPush prepends values to the head (in argument order, so the last
// argument ends up at the very front) and returns the new length.
func (l *List) LPush(values ...string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.data)+len(values))
	for i := len(values) - 1; i >= 0; i-- {
		out = append(out, values[i])
	}
	l.data = append(out, l.data...)
	return len(l.data)
}

// LPop removes and returns up to count elements from the head. ok is false
// if the list was already empty.
func (l *List) LPop(count int) (values []string, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.data) == 0 {
		return nil, false
	}
	if count > len(l.data) {
		count = len(l.data)
	}
	values = append(values, l.data[:count]...)
	l.data = l.data[count:]
	return values, true
}

// Len returns the current length.
func (l *List) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.data)
}

// Range returns elements in [start, stop] inclusive, after normalizing
// negative indices the same way LRANGE does: negative indices are
// max(size+i, 0), and start>stop yields an empty result.
func (l *List) Range(start, stop int) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	size := len(l.data)
	start = normalizeIndex(start, size)
	stop = normalizeIndex(stop, size)
	if stop >= size {
		stop = size - 1
	}
	if start > stop || size == 0 {
		return []string{}
	}
	out := make([]string, stop-start+1)
	copy(out, l.data[start:stop+1])
	return out
}

// normalizeIndex implements spec.md's "negative indices are max(size+i, 0)"
// rule shared by LRANGE and ZRANGE.
func normalizeIndex(i, size int) int {
	if i < 0 {
		i = size + i
		if i < 0 {
			i = 0
		}
	}
	return i
}
