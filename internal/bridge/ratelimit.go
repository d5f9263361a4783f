package bridge

import "time"

// rateWindow is the fixed one-second request window applied to skill
// invocations.
//
// Load-bearing invariant: the window is mutated exclusively from the
// consumer's logical thread. That single-threaded access is what makes
// it lock-free; touching it from any other goroutine is a bug, not a
// missing mutex.
type rateWindow struct {
	clock       func() time.Time
	windowStart time.Time
	count       int
	limit       int
}

func newRateWindow(limit int, clock func() time.Time) *rateWindow {
	if clock == nil {
		clock = time.Now
	}
	return &rateWindow{clock: clock, limit: limit}
}

// allow accounts one invocation against the current window and reports
// whether it fits. The window is fixed, not sliding: once a full second
// has elapsed since windowStart the counter resets outright.
func (r *rateWindow) allow() bool {
	now := r.clock()
	if now.Sub(r.windowStart) >= time.Second {
		r.windowStart = now
		r.count = 0
	}
	r.count++
	return r.count <= r.limit
}
