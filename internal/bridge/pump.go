package bridge

import "time"

// pumpInterval is how often the keep-alive pump checks for pending work.
const pumpInterval = 50 * time.Millisecond

// runPump nudges the host whenever jobs are pending, so an otherwise
// idle host (unfocused window, long frame gaps) still ticks the consumer
// promptly. Purely a liveness aid: correctness never depends on it.
func (b *Bridge) runPump(stop <-chan struct{}) {
	ticker := time.NewTicker(pumpInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if b.queue.Len() > 0 {
				b.sched.Nudge()
			}
		}
	}
}
