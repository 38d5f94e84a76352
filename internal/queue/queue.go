// Package queue is the in-memory hand-off between network goroutines and the
// host main context: a mutex-guarded FIFO of commands, each paired with a
// ResultSlot.
package queue

import (
	"sync"
)

// Queue is safe for concurrent Enqueue from any goroutine. DrainAll belongs
// to the main context.
type Queue struct {
	mu          sync.Mutex
	entries     []Entry
	pending     map[string]*ResultSlot
	closed      bool
	closeReason string
}

func New() *Queue {
	return &Queue{pending: make(map[string]*ResultSlot)}
}

// Enqueue appends cmd and returns its slot. A closed queue does not accept
// the command; the returned slot is already failed with shutting_down.
func (q *Queue) Enqueue(cmd Command) *ResultSlot {
	slot := newSlot(cmd.ID)

	q.mu.Lock()
	if q.closed {
		reason := q.closeReason
		q.mu.Unlock()
		slot.Fail(&Failure{Kind: KindShuttingDown, Message: reason})
		return slot
	}
	q.entries = append(q.entries, Entry{Command: cmd, Slot: slot})
	q.pending[cmd.ID] = slot
	q.mu.Unlock()
	return slot
}

// DrainAll removes and returns every queued entry in arrival order.
func (q *Queue) DrainAll() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.entries) == 0 {
		return nil
	}
	out := q.entries
	q.entries = nil
	for _, e := range out {
		delete(q.pending, e.Command.ID)
	}
	return out
}

// Close stops accepting commands and fails every undispatched entry with
// shutting_down. It returns how many waiters were failed. Closing twice is a
// no-op.
func (q *Queue) Close(reason string) int {
	if reason == "" {
		reason = "listener shutting down"
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return 0
	}
	q.closed = true
	q.closeReason = reason
	dropped := q.entries
	q.entries = nil
	q.pending = make(map[string]*ResultSlot)
	q.mu.Unlock()

	failed := 0
	for _, e := range dropped {
		if e.Slot.Fail(&Failure{Kind: KindShuttingDown, Message: reason}) {
			failed++
		}
	}
	return failed
}

// Reopen lets a closed queue accept commands again.
func (q *Queue) Reopen() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = false
	q.closeReason = ""
}

func (q *Queue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Depth is the number of entries waiting for the next drain.
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Lookup finds the slot of a command that has not been drained yet.
func (q *Queue) Lookup(id string) (*ResultSlot, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	s, ok := q.pending[id]
	return s, ok
}
