package mqtt

// State is the bus connection state.
//
//	Disconnected -> Connecting -> Connected
//	Connected -> Reconnecting -> Connected
//	Reconnecting -> Failed (retry bound reached)
//	Connecting -> Failed (credentials rejected or retries exhausted)
//
// Failed is terminal. The client never leaves it.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateFailed
)

// String returns the lower-case state name used in logs and the status API.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
