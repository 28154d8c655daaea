package session

// State is the position of a session in its connection lifecycle. A session
// starts Disconnected and only ever moves forward: there is no transition out
// of Closed or Failed — reconnecting means building a new session.
type State uint32

const (
	Disconnected State = iota
	Connecting
	Active
	Closed
	Failed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Active:
		return "active"
	case Closed:
		return "closed"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}
