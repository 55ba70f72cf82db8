package telephony

import (
	"fmt"

	"github.com/google/uuid"
)

// ParamTo is the connect parameter the voice application reads the dialed destination from.
const ParamTo = "to"

// VoiceClient is the voice SDK boundary.
//
// Rules:
// - Connect returns immediately; progress is delivered to the sink as CallEvents.
// - No SDK types leak past this package.
type VoiceClient interface {
	Connect(opts ConnectOptions, sink CallEventSink) (VoiceCall, error)
}

// ConnectOptions carries what the SDK needs to place an outgoing call.
type ConnectOptions struct {
	AccessToken string
	Params      map[string]string

	// CallID correlates the SDK call with the native call.
	CallID uuid.UUID
}

// VoiceCall is a live call handle owned by the bridge.
type VoiceCall interface {
	ID() uuid.UUID
	Disconnect()

	SetOnHold(onHold bool)
	IsOnHold() bool

	SetMuted(muted bool)
	IsMuted() bool
}

// CallEventSink receives remote call state transitions.
// Events may arrive on any goroutine.
type CallEventSink interface {
	HandleCallEvent(ev CallEvent)
}

type CallEventKind string

const (
	CallEventRinging         CallEventKind = "ringing"
	CallEventConnected       CallEventKind = "connected"
	CallEventReconnecting    CallEventKind = "reconnecting"
	CallEventReconnected     CallEventKind = "reconnected"
	CallEventFailedToConnect CallEventKind = "failed_to_connect"
	CallEventDisconnected    CallEventKind = "disconnected"
)

// CallEvent is a single remote call state transition.
// Err is set for failed_to_connect, optional for disconnected and reconnecting.
type CallEvent struct {
	Kind   CallEventKind
	CallID uuid.UUID
	Err    error
}

func (e CallEvent) String() string {
	if e.Err != nil {
		return fmt.Sprintf("%s(%s): %v", e.Kind, e.CallID, e.Err)
	}
	return fmt.Sprintf("%s(%s)", e.Kind, e.CallID)
}
