package bridge

import (
	"fmt"
	"net"
)

// Supported port range for the bridge. Agent clients scan this range
// when discovering instances, so the bridge never binds outside it.
const (
	PortRangeStart = 8090
	PortRangeEnd   = 8099
)

// boundListeners is the result of port negotiation. The IPv4 loopback
// listener is authoritative; the IPv6 loopback one is best effort so
// clients whose "localhost" resolves to ::1 still connect.
type boundListeners struct {
	port      int
	listeners []net.Listener
}

func (b *boundListeners) closeAll() {
	for _, l := range b.listeners {
		_ = l.Close()
	}
}

// negotiatePort binds a port for the bridge. A non-zero preferred port
// is attempted alone and failure is fatal: the operator chose that port
// explicitly, so silently drifting to another one would strand clients.
// Zero means auto: scan the supported range and take the first free
// port, failing only when the whole range is exhausted.
func negotiatePort(preferred int) (*boundListeners, error) {
	if preferred != 0 {
		if preferred < PortRangeStart || preferred > PortRangeEnd {
			return nil, fmt.Errorf("preferred port %d is outside the supported range %d-%d",
				preferred, PortRangeStart, PortRangeEnd)
		}
		bound, err := bindPort(preferred)
		if err != nil {
			return nil, fmt.Errorf("preferred port %d is not bindable (already in use?): %w; "+
				"free the port or configure preferred_port: 0 for automatic selection", preferred, err)
		}
		return bound, nil
	}

	for port := PortRangeStart; port <= PortRangeEnd; port++ {
		bound, err := bindPort(port)
		if err == nil {
			return bound, nil
		}
	}
	return nil, fmt.Errorf("no free port in range %d-%d", PortRangeStart, PortRangeEnd)
}

func bindPort(port int) (*boundListeners, error) {
	primary, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return nil, err
	}

	bound := &boundListeners{port: port, listeners: []net.Listener{primary}}

	// Best effort: some clients resolve localhost to ::1.
	if secondary, err := net.Listen("tcp", fmt.Sprintf("[::1]:%d", port)); err == nil {
		bound.listeners = append(bound.listeners, secondary)
	}

	return bound, nil
}
