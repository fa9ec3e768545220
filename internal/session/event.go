package session

import "time"

// EventType classifies what caused a reconcile pass.
type EventType int

const (
	EventInitial EventType = iota // session enumerated or newly created
	EventStatus                   // status stream yielded
	EventToken                    // delivery-token stream yielded
	EventContent                  // content stream yielded
	EventUnseen                   // persisted but no longer live at startup
)

var eventNames = map[EventType]string{
	EventInitial: "initial",
	EventStatus:  "status",
	EventToken:   "token",
	EventContent: "content",
	EventUnseen:  "unseen",
}

func (e EventType) String() string {
	if s, ok := eventNames[e]; ok {
		return s
	}
	return "unknown"
}

// Event records one trigger for a session.
type Event struct {
	Type      EventType
	SessionID string
	Kind      Kind
	At        time.Time
}
