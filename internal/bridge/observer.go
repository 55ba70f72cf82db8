package bridge

import (
	"time"

	"github.com/google/uuid"

	"voice-bridge/internal/telephony"
)

type Direction string

const (
	DirectionOutgoing Direction = "outgoing"
	DirectionIncoming Direction = "incoming"
)

type EventType string

const (
	EventCallRequested    EventType = "call_requested"
	EventCallStarted      EventType = "call_started"
	EventCallRinging      EventType = "call_ringing"
	EventCallConnected    EventType = "call_connected"
	EventCallReconnecting EventType = "call_reconnecting"
	EventCallReconnected  EventType = "call_reconnected"
	EventCallFailed       EventType = "call_failed"
	EventCallEnded        EventType = "call_ended"
	EventRequestFailed    EventType = "native_request_failed"
)

// Event is a lifecycle notification for journaling.
type Event struct {
	Type        EventType
	CallID      uuid.UUID
	Direction   Direction
	Destination string

	// Reason is set on call_ended; "local" when the user hung up.
	Reason string
	Err    error

	At time.Time
}

// Observer receives lifecycle events. Observe is called outside the bridge lock
// and must not block.
type Observer interface {
	Observe(ev Event)
}

// EndReasonLocal marks a call the user ended through a native end action.
const EndReasonLocal = "local"

func endReasonLabel(userEnded bool, r telephony.EndReason) string {
	if userEnded {
		return EndReasonLocal
	}
	return string(r)
}
