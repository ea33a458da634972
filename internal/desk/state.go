package desk

import "time"

// State is the latest known snapshot of the desk. When Connected is false
// the height and speed are stale leftovers from the previous link and must
// not be used for control decisions.
type State struct {
	HeightMM  float64
	SpeedMMS  float64
	Connected bool
	UpdatedAt time.Time
}

// EventKind discriminates state-change events pushed to subscribers.
type EventKind int

const (
	// EventState is a fresh height/speed sample from the device.
	EventState EventKind = iota
	// EventConnected signals a (re)established link; subscriptions are
	// valid again.
	EventConnected
	// EventDisconnected signals link loss. Terminal for the current
	// notification sequence; a fresh sequence begins on reconnect.
	EventDisconnected
	// EventMoveStalled signals that an active move produced no height
	// change and was aborted. Event.Err carries the *StallError.
	EventMoveStalled
)

func (k EventKind) String() string {
	switch k {
	case EventState:
		return "state"
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventMoveStalled:
		return "move_stalled"
	default:
		return "unknown"
	}
}

// Event is a state-change notification delivered to subscribers in arrival
// order.
type Event struct {
	Kind  EventKind
	State State
	Err   error
}
