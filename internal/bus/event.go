package bus

import "time"

// Event kinds published inside the daemon.
const (
	KindStatusChanged   = "session.status_changed"
	KindWAMessage       = "wa.message"
	KindWAHistoryBatch  = "wa.history_batch"
	KindScheduledResult = "scheduler.dispatched"
	KindMirrorStored    = "mirror.message_stored"
)

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// NewEvent stamps an event of the given kind with the current time.
func NewEvent(kind string, payload any) Event {
	return Event{Kind: kind, Timestamp: time.Now(), Payload: payload}
}
