package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestQueueDrainFIFO(t *testing.T) {
	t.Parallel()

	q := New()
	var ids []string
	for i := 0; i < 3; i++ {
		cmd := NewCommand(fmt.Sprintf("cmd_%d", i), json.RawMessage(`{}`))
		ids = append(ids, cmd.ID)
		q.Enqueue(cmd)
	}
	if got := q.Depth(); got != 3 {
		t.Fatalf("Depth() = %d, want 3", got)
	}

	entries := q.DrainAll()
	if len(entries) != 3 {
		t.Fatalf("DrainAll returned %d entries, want 3", len(entries))
	}
	for i, e := range entries {
		if e.Command.ID != ids[i] {
			t.Fatalf("entry %d = %s, want %s", i, e.Command.ID, ids[i])
		}
	}
	if q.Depth() != 0 {
		t.Fatalf("queue not empty after drain")
	}
	if again := q.DrainAll(); again != nil {
		t.Fatalf("second drain returned %d entries", len(again))
	}
}

func TestQueueConcurrentEnqueue(t *testing.T) {
	t.Parallel()

	q := New()
	const producers, each = 8, 50
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < each; i++ {
				q.Enqueue(NewCommand("noop", nil))
			}
		}()
	}

	drained := 0
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	for {
		drained += len(q.DrainAll())
		select {
		case <-done:
			drained += len(q.DrainAll())
			if drained != producers*each {
				t.Fatalf("drained %d, want %d", drained, producers*each)
			}
			return
		default:
		}
	}
}

func TestLookupUntilDrained(t *testing.T) {
	t.Parallel()

	q := New()
	cmd := NewCommand("noop", nil)
	slot := q.Enqueue(cmd)
	if got, ok := q.Lookup(cmd.ID); !ok || got != slot {
		t.Fatalf("Lookup before drain = %v, %v", got, ok)
	}
	q.DrainAll()
	if _, ok := q.Lookup(cmd.ID); ok {
		t.Fatalf("Lookup after drain should miss")
	}
}

func TestCloseFailsPendingEntries(t *testing.T) {
	t.Parallel()

	q := New()
	slots := make([]*ResultSlot, 10)
	for i := range slots {
		slots[i] = q.Enqueue(NewCommand("noop", nil))
	}

	if n := q.Close("restarting"); n != 10 {
		t.Fatalf("Close failed %d waiters, want 10", n)
	}
	for i, s := range slots {
		out := s.Outcome()
		if out.State != Ready || out.Err == nil || out.Err.Kind != KindShuttingDown {
			t.Fatalf("slot %d outcome = %+v", i, out)
		}
		if out.Err.Message != "restarting" {
			t.Fatalf("slot %d message = %q", i, out.Err.Message)
		}
	}
	if q.DrainAll() != nil {
		t.Fatalf("closed queue should have nothing to drain")
	}
	if n := q.Close("again"); n != 0 {
		t.Fatalf("second Close = %d, want 0", n)
	}
}

func TestEnqueueAfterClose(t *testing.T) {
	t.Parallel()

	q := New()
	q.Close("")
	slot := q.Enqueue(NewCommand("noop", nil))
	out := slot.Outcome()
	if out.State != Ready || out.Err == nil || out.Err.Kind != KindShuttingDown {
		t.Fatalf("outcome = %+v", out)
	}
	if out.Err.Message != "listener shutting down" {
		t.Fatalf("message = %q", out.Err.Message)
	}
	if q.Depth() != 0 {
		t.Fatalf("closed queue accepted a command")
	}

	q.Reopen()
	q.Enqueue(NewCommand("noop", nil))
	if q.Depth() != 1 || q.Closed() {
		t.Fatalf("reopened queue should accept commands")
	}
}

func TestSlotFirstWriterWins(t *testing.T) {
	t.Parallel()

	s := newSlot("x")
	if !s.Resolve("first") {
		t.Fatalf("first Resolve rejected")
	}
	if s.Resolve("second") {
		t.Fatalf("second Resolve accepted")
	}
	if s.Fail(Failf(KindHandlerFailure, "late")) {
		t.Fatalf("Fail after Resolve accepted")
	}
	if out := s.Outcome(); out.Value != "first" || out.Err != nil {
		t.Fatalf("outcome = %+v", out)
	}
}

func TestSlotWaitReturnsResult(t *testing.T) {
	t.Parallel()

	s := newSlot("x")
	go func() {
		time.Sleep(10 * time.Millisecond)
		s.Resolve(42)
	}()
	out := s.Wait(context.Background(), time.Second)
	if out.State != Ready || out.Value != 42 {
		t.Fatalf("outcome = %+v", out)
	}
}

func TestSlotWaitTimesOut(t *testing.T) {
	t.Parallel()

	s := newSlot("x")
	out := s.Wait(context.Background(), 10*time.Millisecond)
	if out.State != TimedOut || out.Err == nil || out.Err.Kind != KindTimeout {
		t.Fatalf("outcome = %+v", out)
	}
	if s.Resolve("late") {
		t.Fatalf("Resolve after timeout accepted")
	}
}

func TestSlotWaitCancelled(t *testing.T) {
	t.Parallel()

	s := newSlot("x")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := s.Wait(ctx, time.Minute)
	if out.State != TimedOut {
		t.Fatalf("state = %s, want timed_out", out.State)
	}
}

func TestSlotClaimHoldsOffTimeout(t *testing.T) {
	t.Parallel()

	s := newSlot("x")
	if !s.Claim() {
		t.Fatalf("Claim on pending slot refused")
	}
	if s.Claim() {
		t.Fatalf("second Claim accepted")
	}
	go func() {
		time.Sleep(20 * time.Millisecond)
		s.Resolve("ran")
	}()
	out := s.Wait(context.Background(), time.Millisecond)
	if out.State != Ready || out.Value != "ran" {
		t.Fatalf("outcome = %+v, want ready/ran", out)
	}
}

func TestSlotClaimAfterTimeout(t *testing.T) {
	t.Parallel()

	s := newSlot("x")
	s.Wait(context.Background(), time.Millisecond)
	if s.Claim() {
		t.Fatalf("Claim after timeout accepted")
	}
	if s.State() != TimedOut {
		t.Fatalf("state = %s, want timed_out", s.State())
	}
}

func TestSlotWaitCancelledWhileRunning(t *testing.T) {
	t.Parallel()

	s := newSlot("x")
	s.Claim()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := s.Wait(ctx, time.Minute)
	if out.State != Running || out.Err == nil || out.Err.Kind != KindTimeout {
		t.Fatalf("outcome = %+v", out)
	}
	if !s.Resolve("late") {
		t.Fatalf("dispatcher result refused after caller left")
	}
}

func TestAsFailure(t *testing.T) {
	t.Parallel()

	if AsFailure(nil, KindHandlerFailure) != nil {
		t.Fatalf("nil error should stay nil")
	}
	wrapped := fmt.Errorf("outer: %w", Failf(KindLifecycle, "port busy"))
	if f := AsFailure(wrapped, KindHandlerFailure); f.Kind != KindLifecycle {
		t.Fatalf("kind = %s, want lifecycle", f.Kind)
	}
	if f := AsFailure(errors.New("boom"), KindHandlerFailure); f.Kind != KindHandlerFailure || f.Message != "boom" {
		t.Fatalf("failure = %+v", f)
	}
}
