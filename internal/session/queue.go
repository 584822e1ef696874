package session

import (
	"sync"
	"time"

	"connectfour/internal/types"
)

// Entry is a queued client together with the time it first joined.
type Entry struct {
	Client *types.Client
	Since  time.Time
}

// Queue is the FIFO of clients waiting for an opponent. A client appears
// at most once.
type Queue struct {
	mu      sync.Mutex
	entries []Entry
}

func NewQueue() *Queue {
	return &Queue{}
}

func (q *Queue) indexOf(c *types.Client) int {
	for i, e := range q.entries {
		if e.Client == c {
			return i
		}
	}
	return -1
}

// Enqueue appends c. It returns false if c was already queued, in which
// case its position is unchanged.
func (q *Queue) Enqueue(c *types.Client) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.indexOf(c) >= 0 {
		return false
	}
	q.entries = append(q.entries, Entry{Client: c, Since: time.Now()})
	return true
}

// Requeue puts entries back at the head in the given order, skipping any
// client that is already queued. It is used when a pairing falls through.
func (q *Queue) Requeue(entries ...Entry) {
	q.mu.Lock()
	defer q.mu.Unlock()

	head := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.Client == nil || q.indexOf(e.Client) >= 0 {
			continue
		}
		head = append(head, e)
	}
	q.entries = append(head, q.entries...)
}

func (q *Queue) Remove(c *types.Client) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	i := q.indexOf(c)
	if i < 0 {
		return false
	}
	q.entries = append(q.entries[:i], q.entries[i+1:]...)
	return true
}

// PopPair removes the two oldest entries.
func (q *Queue) PopPair() (Entry, Entry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) < 2 {
		return Entry{}, Entry{}, false
	}
	a, b := q.entries[0], q.entries[1]
	q.entries = q.entries[2:]
	return a, b, true
}

// PopSolo removes the only queued entry when ok accepts it. It does
// nothing when the queue holds zero or several clients.
func (q *Queue) PopSolo(ok func(*types.Client) bool) (Entry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) != 1 || !ok(q.entries[0].Client) {
		return Entry{}, false
	}
	e := q.entries[0]
	q.entries = nil
	return e, true
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Snapshot returns the queued clients in order.
func (q *Queue) Snapshot() []*types.Client {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]*types.Client, len(q.entries))
	for i, e := range q.entries {
		out[i] = e.Client
	}
	return out
}
