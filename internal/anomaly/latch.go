package anomaly

import "time"

// Latch is a debounced boolean signal. Raise sets it high immediately and
// pushes the clear deadline out; Expire lowers it once the deadline passes.
type Latch struct {
	clearAfter time.Duration
	high       bool
	deadline   time.Time
}

// NewLatch creates a low latch.
func NewLatch(clearAfter time.Duration) *Latch {
	return &Latch{clearAfter: clearAfter}
}

// SetClearAfter changes the quiet period for subsequent raises.
func (l *Latch) SetClearAfter(d time.Duration) {
	l.clearAfter = d
}

// Raise sets the latch high and restarts the clear deadline. It reports
// whether the latch changed from low to high.
func (l *Latch) Raise(now time.Time) bool {
	l.deadline = now.Add(l.clearAfter)
	if l.high {
		return false
	}
	l.high = true
	return true
}

// Expire lowers the latch when its deadline has passed. It reports whether
// the latch changed from high to low.
func (l *Latch) Expire(now time.Time) bool {
	if !l.high || now.Before(l.deadline) {
		return false
	}
	l.high = false
	return true
}

// High reports the current state.
func (l *Latch) High() bool {
	return l.high
}

// Deadline returns the pending clear deadline while the latch is high.
func (l *Latch) Deadline() (time.Time, bool) {
	return l.deadline, l.high
}
