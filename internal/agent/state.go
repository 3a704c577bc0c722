package agent

// ConnectivityState is the scheduler's view of device reachability.
// SessionUp implies LinkUp.
type ConnectivityState int

const (
	Disconnected ConnectivityState = iota
	LinkUp
	SessionUp
)

// String returns the state name.
func (s ConnectivityState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case LinkUp:
		return "link_up"
	case SessionUp:
		return "session_up"
	default:
		return "unknown"
	}
}
