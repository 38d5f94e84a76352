package queue

import (
	"context"
	"sync"
	"time"
)

// SlotState is the lifecycle of a ResultSlot. A slot reaches a final state
// (Ready or TimedOut) exactly once. Running is the dispatcher's claim: once
// held, a caller timeout can no longer win.
type SlotState int

const (
	Pending SlotState = iota
	Ready
	TimedOut
	Running
)

func (s SlotState) String() string {
	switch s {
	case Pending:
		return "pending"
	case Ready:
		return "ready"
	case TimedOut:
		return "timed_out"
	case Running:
		return "running"
	default:
		return "unknown"
	}
}

// Outcome is the final view of a slot.
type Outcome struct {
	State SlotState
	Value any
	Err   *Failure
}

// ResultSlot carries one command's result from the main context back to the
// waiting network goroutine. The first transition out of Pending wins; later
// writers are rejected.
type ResultSlot struct {
	id string

	mu    sync.Mutex
	state SlotState
	value any
	err   *Failure
	done  chan struct{}
}

func newSlot(id string) *ResultSlot {
	return &ResultSlot{id: id, done: make(chan struct{})}
}

func (s *ResultSlot) ID() string { return s.id }

func (s *ResultSlot) State() SlotState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Done is closed when the slot reaches a final state.
func (s *ResultSlot) Done() <-chan struct{} { return s.done }

// Claim moves the slot from Pending to Running. It reports false when the
// caller already gave up, in which case the command must not run.
func (s *ResultSlot) Claim() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Pending {
		return false
	}
	s.state = Running
	return true
}

// Resolve stores a successful value. It reports false if the slot was already
// final, in which case value is discarded.
func (s *ResultSlot) Resolve(value any) bool {
	return s.finish(Ready, value, nil)
}

// Fail stores a failure. Same first-writer rule as Resolve.
func (s *ResultSlot) Fail(f *Failure) bool {
	return s.finish(Ready, nil, f)
}

func (s *ResultSlot) finish(state SlotState, value any, f *Failure) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.state == Pending:
	case s.state == Running && state == Ready:
	default:
		return false
	}
	s.state = state
	s.value = value
	s.err = f
	close(s.done)
	return true
}

// Outcome returns the current state and result.
func (s *ResultSlot) Outcome() Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Outcome{State: s.state, Value: s.value, Err: s.err}
}

// Wait blocks until the slot is Ready, timeout elapses or ctx ends. On
// timeout or cancellation it moves the slot to TimedOut so the dispatcher
// skips the command. If the dispatcher has already claimed the slot the
// timeout is ignored and Wait holds out for the result; a cancelled ctx then
// returns a Running outcome and leaves the slot to the dispatcher.
func (s *ResultSlot) Wait(ctx context.Context, timeout time.Duration) Outcome {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var reason *Failure
	select {
	case <-s.done:
		return s.Outcome()
	case <-timer.C:
		reason = Failf(KindTimeout, "command timed out after %s", timeout)
	case <-ctx.Done():
		reason = Failf(KindTimeout, "request cancelled: %v", ctx.Err())
	}

	if s.finish(TimedOut, nil, reason) {
		return s.Outcome()
	}
	select {
	case <-s.done:
		return s.Outcome()
	case <-ctx.Done():
		return Outcome{State: Running, Err: Failf(KindTimeout, "request cancelled while command ran: %v", ctx.Err())}
	}
}
