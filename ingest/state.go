package ingest

// State is the ingester's connection lifecycle state.
type State int32

const (
	// StateDisconnected is the initial state and the state after an
	// explicit Disconnect.
	StateDisconnected State = iota
	// StateConnecting covers dialing and the subscription handshake.
	StateConnecting
	// StateConnected means the socket is up and messages are flowing.
	StateConnected
	// StateRetrying means the connection dropped and a bounded reconnect
	// budget is being spent.
	StateRetrying
	// StateExhausted is terminal: the retry budget ran out and only an
	// explicit Reconnect leaves this state.
	StateExhausted
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateRetrying:
		return "retrying"
	case StateExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}
