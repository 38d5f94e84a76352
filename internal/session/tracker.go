package session

import (
	"sort"
	"sync"
)

// Releaser is a live listener that can be forced to give up its port.
type Releaser interface {
	Generation() uint64
	Release() error
}

// Tracker records live listeners by generation so a newer session can force
// older ones to release their port, even when the manager that created them
// is gone (for example after a host reload).
type Tracker struct {
	mu   sync.Mutex
	live map[uint64]Releaser
}

func NewTracker() *Tracker {
	return &Tracker{live: make(map[uint64]Releaser)}
}

var defaultTracker = NewTracker()

// DefaultTracker is the process-wide tracker.
func DefaultTracker() *Tracker { return defaultTracker }

func (t *Tracker) Track(r Releaser) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.live[r.Generation()] = r
}

func (t *Tracker) Untrack(gen uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.live, gen)
}

// ReleaseOlderThan releases and forgets every listener older than gen. It
// returns the released generations and the first release error.
func (t *Tracker) ReleaseOlderThan(gen uint64) ([]uint64, error) {
	t.mu.Lock()
	var stale []Releaser
	for g, r := range t.live {
		if g < gen {
			stale = append(stale, r)
			delete(t.live, g)
		}
	}
	t.mu.Unlock()

	sort.Slice(stale, func(i, j int) bool { return stale[i].Generation() < stale[j].Generation() })

	var firstErr error
	released := make([]uint64, 0, len(stale))
	for _, r := range stale {
		if err := r.Release(); err != nil && firstErr == nil {
			firstErr = err
		}
		released = append(released, r.Generation())
	}
	return released, firstErr
}

// Live lists tracked generations in ascending order.
func (t *Tracker) Live() []uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]uint64, 0, len(t.live))
	for g := range t.live {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
