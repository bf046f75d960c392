package hal

import "time"

// IntervalGate reproduces the original hardware modules' recurring
// next_time = time.time(); ... ; next_time += interval pattern: Due reports
// whether the interval has elapsed, and Advance moves the deadline forward
// by exactly one interval (not to now+interval), so a tick that runs late
// does not accumulate drift.
type IntervalGate struct {
	next     time.Time
	interval time.Duration
}

// NewIntervalGate starts a gate already due on its first Due call, matching
// next_time = time.time() at construction.
func NewIntervalGate(interval time.Duration) *IntervalGate {
	return &IntervalGate{next: time.Now(), interval: interval}
}

// SetInterval updates the interval without resetting the current deadline,
// matching set_config's config swap (which never resets next_time either).
func (g *IntervalGate) SetInterval(interval time.Duration) {
	g.interval = interval
}

// Due reports whether it is time to run again.
func (g *IntervalGate) Due(now time.Time) bool {
	return !g.next.After(now)
}

// Advance moves the deadline one interval forward.
func (g *IntervalGate) Advance() {
	g.next = g.next.Add(g.interval)
}
