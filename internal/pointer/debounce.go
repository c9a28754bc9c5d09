package pointer

import "time"

// Debouncer drops a click that lands within radius device pixels of the
// previous accepted click less than window after it. Input hooks often
// report a press and a release for one click. Commands always pass.
type Debouncer struct {
	window time.Duration
	radius float64
	last   Event
	seen   bool
}

// NewDebouncer creates a Debouncer. A zero window disables it.
func NewDebouncer(window time.Duration, radiusPx float64) *Debouncer {
	return &Debouncer{window: window, radius: radiusPx}
}

// Accept reports whether ev should be delivered.
func (d *Debouncer) Accept(ev Event) bool {
	if d == nil || d.window <= 0 || ev.Kind != KindClick {
		return true
	}
	if d.seen && ev.At.Sub(d.last.At) < d.window && ev.Point().Dist(d.last.Point()) <= d.radius {
		return false
	}
	d.last, d.seen = ev, true
	return true
}
