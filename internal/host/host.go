// Package host models the application main thread the bridge cooperates
// with. The bridge never decides when its consumer runs; it registers a
// tick callback and the host invokes it on the host's one logical thread.
package host

import (
	"sync"
	"sync/atomic"
	"time"
)

// TickFunc is invoked by a host on its logical main thread.
type TickFunc func()

// Host is the cooperative scheduler contract. RegisterTick may be called
// at most once per registration slot; Nudge is safe from any goroutine
// and asks the host to run its tick callbacks promptly even when idle.
type Host interface {
	RegisterTick(fn TickFunc)
	Nudge()
}

// LoopHost is the default host: a dedicated goroutine that owns all
// side-effecting state and invokes registered ticks on an interval, or
// immediately when nudged. It stands in for an editor's update loop in
// environments that do not provide one.
type LoopHost struct {
	interval time.Duration

	mu    sync.Mutex
	ticks []TickFunc

	nudge   chan struct{}
	stop    chan struct{}
	done    chan struct{}
	started atomic.Bool
	once    sync.Once
}

// NewLoopHost creates a host that fires ticks every interval. An
// interval of zero defaults to 10ms.
func NewLoopHost(interval time.Duration) *LoopHost {
	if interval <= 0 {
		interval = 10 * time.Millisecond
	}
	return &LoopHost{
		interval: interval,
		nudge:    make(chan struct{}, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// RegisterTick adds a callback to the tick list. Callbacks run in
// registration order on the host goroutine.
func (h *LoopHost) RegisterTick(fn TickFunc) {
	if fn == nil {
		return
	}
	h.mu.Lock()
	h.ticks = append(h.ticks, fn)
	h.mu.Unlock()
}

// Nudge wakes the host goroutine without waiting for the next interval.
// Coalesces: multiple nudges before a tick produce a single early tick.
func (h *LoopHost) Nudge() {
	select {
	case h.nudge <- struct{}{}:
	default:
	}
}

// Run starts the host goroutine. It returns immediately; Stop ends the
// loop and waits for the final tick to finish.
func (h *LoopHost) Run() {
	h.started.Store(true)
	go func() {
		defer close(h.done)
		timer := time.NewTimer(h.interval)
		defer timer.Stop()
		for {
			select {
			case <-h.stop:
				return
			case <-h.nudge:
			case <-timer.C:
			}
			h.fire()
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(h.interval)
		}
	}()
}

// Stop terminates the loop. Safe to call more than once, and a no-op
// when Run was never called.
func (h *LoopHost) Stop() {
	h.once.Do(func() { close(h.stop) })
	if !h.started.Load() {
		return
	}
	<-h.done
}

func (h *LoopHost) fire() {
	h.mu.Lock()
	ticks := make([]TickFunc, len(h.ticks))
	copy(ticks, h.ticks)
	h.mu.Unlock()

	for _, fn := range ticks {
		fn()
	}
}

// ManualHost is a test host whose ticks run only when Tick is called,
// giving tests full control over consumer scheduling.
type ManualHost struct {
	mu     sync.Mutex
	ticks  []TickFunc
	nudged int
}

// RegisterTick adds a callback.
func (h *ManualHost) RegisterTick(fn TickFunc) {
	if fn == nil {
		return
	}
	h.mu.Lock()
	h.ticks = append(h.ticks, fn)
	h.mu.Unlock()
}

// Nudge records the nudge; ManualHost never runs ticks on its own.
func (h *ManualHost) Nudge() {
	h.mu.Lock()
	h.nudged++
	h.mu.Unlock()
}

// Nudges reports how many times Nudge was called.
func (h *ManualHost) Nudges() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.nudged
}

// Tick runs every registered callback once, on the caller's goroutine.
// The caller's goroutine plays the role of the host main thread.
func (h *ManualHost) Tick() {
	h.mu.Lock()
	ticks := make([]TickFunc, len(h.ticks))
	copy(ticks, h.ticks)
	h.mu.Unlock()

	for _, fn := range ticks {
		fn()
	}
}
