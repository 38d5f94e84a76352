package watch

import (
	"strings"
	"time"
)

// pulseSlots is how many one-second buckets the activity pulse shows.
const pulseSlots = 8

// Pulse records how many events arrived in each of the last pulseSlots
// seconds, newest last.
type Pulse struct {
	buckets [pulseSlots]int
	last    time.Time
}

// Observe counts one event at t.
func (p *Pulse) Observe(t time.Time) {
	p.advance(t)
	p.buckets[pulseSlots-1]++
}

// Advance shifts the window to now without counting anything.
func (p *Pulse) Advance(now time.Time) { p.advance(now) }

func (p *Pulse) advance(now time.Time) {
	now = now.Truncate(time.Second)
	if p.last.IsZero() {
		p.last = now
		return
	}
	steps := int(now.Sub(p.last) / time.Second)
	if steps <= 0 {
		return
	}
	if steps >= pulseSlots {
		p.buckets = [pulseSlots]int{}
	} else {
		copy(p.buckets[:], p.buckets[steps:])
		for i := pulseSlots - steps; i < pulseSlots; i++ {
			p.buckets[i] = 0
		}
	}
	p.last = now
}

// Total is the event count across the window.
func (p Pulse) Total() int {
	n := 0
	for _, b := range p.buckets {
		n += b
	}
	return n
}

func (p Pulse) Render(theme Theme) string {
	var b strings.Builder
	for _, n := range p.buckets {
		if n > 0 {
			b.WriteString(theme.PulseOn.Render("▮"))
		} else {
			b.WriteString(theme.PulseOff.Render("▯"))
		}
	}
	return b.String()
}
