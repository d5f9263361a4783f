package bridge

import (
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func occupy(t *testing.T, port int) {
	t.Helper()
	l, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	require.NoError(t, err, "test needs port %d free to occupy it", port)
	t.Cleanup(func() { _ = l.Close() })
}

func TestNegotiateAutoSkipsOccupiedPorts(t *testing.T) {
	for port := 8090; port <= 8094; port++ {
		occupy(t, port)
	}

	bound, err := negotiatePort(0)
	require.NoError(t, err)
	defer bound.closeAll()

	require.Equal(t, 8095, bound.port)
}

func TestNegotiatePreferredBindsExactly(t *testing.T) {
	bound, err := negotiatePort(8093)
	require.NoError(t, err)
	defer bound.closeAll()

	require.Equal(t, 8093, bound.port)
	require.NotEmpty(t, bound.listeners)
}

func TestNegotiatePreferredOccupiedFailsFast(t *testing.T) {
	occupy(t, 8091)

	_, err := negotiatePort(8091)
	require.Error(t, err)
	require.Contains(t, err.Error(), "8091")
	// No silent fallback to another port.
	require.Contains(t, err.Error(), "preferred_port: 0")
}

func TestNegotiatePreferredOutsideRange(t *testing.T) {
	_, err := negotiatePort(9000)
	require.Error(t, err)
	require.Contains(t, err.Error(), "supported range")
}

func TestNegotiateExhaustedRange(t *testing.T) {
	for port := PortRangeStart; port <= PortRangeEnd; port++ {
		occupy(t, port)
	}

	_, err := negotiatePort(0)
	require.Error(t, err)
	require.Contains(t, err.Error(), "no free port")
}
