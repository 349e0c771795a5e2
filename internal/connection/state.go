package connection

// ReadyState mirrors the lifecycle of one WebSocket.
type ReadyState int32

const (
	Connecting ReadyState = iota
	Open
	Closing
	Closed
)

// String returns the string representation of ReadyState.
func (s ReadyState) String() string {
	switch s {
	case Connecting:
		return "CONNECTING"
	case Open:
		return "OPEN"
	case Closing:
		return "CLOSING"
	case Closed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// EventType identifies a lifecycle notification.
type EventType int

const (
	EventOpened EventType = iota + 1
	EventMessage
	EventClosed
)

// String returns the string representation of EventType.
func (t EventType) String() string {
	switch t {
	case EventOpened:
		return "opened"
	case EventMessage:
		return "message"
	case EventClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Event is emitted by a Handle. Data is set for EventMessage. Err is set on
// EventClosed when the connection failed or ended abnormally.
type Event struct {
	Type   EventType
	ConnID string
	Data   []byte
	Err    error
}
