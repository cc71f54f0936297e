package status

// Status is the connection status reported to clients.
type Status string

const (
	Disconnected Status = "disconnected"
	Connecting   Status = "connecting"
	Ready        Status = "ready"
)

// State is the connection snapshot. QR holds the rendered image as a data
// URL; Code holds the raw pairing payload it was rendered from. Both are
// set and cleared together.
type State struct {
	Status Status `json:"status"`
	QR     string `json:"qr,omitempty"`
	Code   string `json:"code,omitempty"`
}

// EventKind is the input alphabet of the connection state machine.
type EventKind string

const (
	EventStarting      EventKind = "starting"
	EventQR            EventKind = "qr"
	EventReady         EventKind = "ready"
	EventAuthenticated EventKind = "authenticated"
	EventAuthFailure   EventKind = "auth_failure"
	EventDisconnected  EventKind = "disconnected"
	EventInitFailed    EventKind = "init_failed"
)

// Event drives a transition. QR and Code are only read for EventQR.
type Event struct {
	Kind EventKind
	QR   string
	Code string
}

// Apply returns the state that follows cur after ev. Unknown events leave
// the state unchanged.
func Apply(cur State, ev Event) State {
	switch ev.Kind {
	case EventStarting:
		cur.Status = Connecting
	case EventQR:
		cur.Status = Connecting
		cur.QR, cur.Code = ev.QR, ev.Code
		if cur.QR == "" {
			cur.Code = ""
		}
	case EventReady:
		return State{Status: Ready}
	case EventAuthenticated:
		cur.Status = Connecting
	case EventAuthFailure, EventInitFailed:
		return State{Status: Disconnected}
	case EventDisconnected:
		// A transient drop keeps the last QR so a user still looking at it can retry.
		cur.Status = Disconnected
	}
	return cur
}
