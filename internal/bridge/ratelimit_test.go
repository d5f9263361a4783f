package bridge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRateWindowSplitsBurstAtLimit(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rw := newRateWindow(100, func() time.Time { return now })

	accepted, rejected := 0, 0
	for i := 0; i < 150; i++ {
		if rw.allow() {
			accepted++
		} else {
			rejected++
		}
	}

	require.Equal(t, 100, accepted)
	require.Equal(t, 50, rejected)
}

func TestRateWindowResetsAfterOneSecond(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rw := newRateWindow(2, func() time.Time { return now })

	require.True(t, rw.allow())
	require.True(t, rw.allow())
	require.False(t, rw.allow())

	// Fixed window: 999ms in, still the same window.
	now = now.Add(999 * time.Millisecond)
	require.False(t, rw.allow())

	now = now.Add(time.Millisecond)
	require.True(t, rw.allow())
	require.True(t, rw.allow())
	require.False(t, rw.allow())
}

func TestRateWindowDefaultClock(t *testing.T) {
	rw := newRateWindow(1, nil)
	require.True(t, rw.allow())
	require.False(t, rw.allow())
}
