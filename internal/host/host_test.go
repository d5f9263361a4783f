package host

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoopHostTicksOnInterval(t *testing.T) {
	h := NewLoopHost(5 * time.Millisecond)

	var count atomic.Int64
	h.RegisterTick(func() { count.Add(1) })

	h.Run()
	defer h.Stop()

	require.Eventually(t, func() bool {
		return count.Load() >= 3
	}, time.Second, time.Millisecond)
}

func TestLoopHostNudgeWakesIdleLoop(t *testing.T) {
	// Long interval so only a nudge can explain a prompt tick.
	h := NewLoopHost(time.Hour)

	ticked := make(chan struct{}, 1)
	h.RegisterTick(func() {
		select {
		case ticked <- struct{}{}:
		default:
		}
	})

	h.Run()
	defer h.Stop()

	h.Nudge()

	select {
	case <-ticked:
	case <-time.After(time.Second):
		t.Fatal("nudge did not wake the host loop")
	}
}

func TestLoopHostStopIsIdempotent(t *testing.T) {
	h := NewLoopHost(time.Millisecond)
	h.Run()
	h.Stop()
	h.Stop()
}

func TestLoopHostStopWithoutRunReturns(t *testing.T) {
	h := NewLoopHost(time.Millisecond)

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.Stop()
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked without a running loop")
	}
}

func TestManualHostRunsTicksOnDemand(t *testing.T) {
	h := &ManualHost{}

	count := 0
	h.RegisterTick(func() { count++ })

	require.Equal(t, 0, count)
	h.Tick()
	h.Tick()
	require.Equal(t, 2, count)

	h.Nudge()
	require.Equal(t, 2, count, "nudge must not run ticks")
	require.Equal(t, 1, h.Nudges())
}
