package speech

import (
	"container/heap"
	"time"
)

// Entry is a pending request waiting for the session slot. Entries exist
// only while a session is active and stop-previous mode is disabled.
type Entry struct {
	Request   Request
	Priority  Priority
	Timestamp time.Time
	seq       uint64
}

// pendingQueue orders entries by priority (high first) then timestamp
// (oldest first); seq breaks exact-timestamp ties FIFO. It is only touched
// under the manager's lock, so it carries no locking of its own.
type pendingQueue struct {
	items []*Entry
	seq   uint64
}

func (q *pendingQueue) Len() int { return len(q.items) }

func (q *pendingQueue) Less(i, j int) bool {
	a, b := q.items[i], q.items[j]
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.Before(b.Timestamp)
	}
	return a.seq < b.seq
}

func (q *pendingQueue) Swap(i, j int) {
	q.items[i], q.items[j] = q.items[j], q.items[i]
}

func (q *pendingQueue) Push(x any) {
	q.items = append(q.items, x.(*Entry))
}

func (q *pendingQueue) Pop() any {
	old := q.items
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	q.items = old[:n-1]
	return item
}

// push adds a request with the given arrival time.
func (q *pendingQueue) push(req Request, now time.Time) {
	q.seq++
	heap.Push(q, &Entry{
		Request:   req,
		Priority:  req.Priority,
		Timestamp: now,
		seq:       q.seq,
	})
}

// pop removes and returns the best entry, or nil when empty.
func (q *pendingQueue) pop() *Entry {
	if len(q.items) == 0 {
		return nil
	}
	return heap.Pop(q).(*Entry)
}

// evictLowest removes and returns the worst entry: lowest priority, newest
// timestamp. Used by the evict overflow policy.
func (q *pendingQueue) evictLowest() *Entry {
	if len(q.items) == 0 {
		return nil
	}
	worst := 0
	for i := 1; i < len(q.items); i++ {
		a, b := q.items[i], q.items[worst]
		switch {
		case a.Priority < b.Priority:
			worst = i
		case a.Priority == b.Priority && a.Timestamp.After(b.Timestamp):
			worst = i
		case a.Priority == b.Priority && a.Timestamp.Equal(b.Timestamp) && a.seq > b.seq:
			worst = i
		}
	}
	return heap.Remove(q, worst).(*Entry)
}

// clear drops all entries.
func (q *pendingQueue) clear() {
	q.items = nil
}
