package enum

// ConnectionState mirrors the connection:state channel payload.
type ConnectionState uint8

const (
	_connection_state_beg ConnectionState = iota
	ConnectionStateConnected
	ConnectionStateDegraded
	ConnectionStateDisconnected
	ConnectionStateReconnecting
	_connection_state_end
)

func (s ConnectionState) IsAvailable() bool {
	return s > _connection_state_beg && s < _connection_state_end
}

func (s ConnectionState) String() string {
	switch s {
	case ConnectionStateConnected:
		return "CONNECTED"
	case ConnectionStateDegraded:
		return "DEGRADED"
	case ConnectionStateDisconnected:
		return "DISCONNECTED"
	case ConnectionStateReconnecting:
		return "RECONNECTING"
	default:
		return "UNKNOWN"
	}
}

func ParseConnectionState(s string) (ConnectionState, bool) {
	switch s {
	case "CONNECTED":
		return ConnectionStateConnected, true
	case "DEGRADED":
		return ConnectionStateDegraded, true
	case "DISCONNECTED":
		return ConnectionStateDisconnected, true
	case "RECONNECTING":
		return ConnectionStateReconnecting, true
	default:
		return 0, false
	}
}

// Usable reports whether the link is good enough to dispatch an order.
func (s ConnectionState) Usable() bool {
	return s == ConnectionStateConnected
}
