package telephony

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// CallProvider is the native call-management reporting surface.
//
// The platform owns native call state; the bridge only reports remote progress into it.
type CallProvider interface {
	ReportOutgoingStartedConnecting(callID uuid.UUID, at time.Time)
	ReportOutgoingConnected(callID uuid.UUID, at time.Time)
	ReportCallEnded(callID uuid.UUID, at time.Time, reason EndReason)
	ReportCallUpdated(callID uuid.UUID, update CallUpdate)

	// ReportNewIncomingCall asks the platform to present an incoming call.
	ReportNewIncomingCall(ctx context.Context, callID uuid.UUID, update CallUpdate) error
}

// CallController submits user intents to the platform.
// A nil error only means the transaction was accepted; the platform performs
// its actions later through the provider delegate.
type CallController interface {
	RequestTransaction(ctx context.Context, tx Transaction) error
}

// ProviderDelegate is implemented by whoever performs native actions.
type ProviderDelegate interface {
	HandleProviderEvent(ev ProviderEvent)
	PerformAction(a *Action)
}

// Transaction groups actions submitted together.
type Transaction struct {
	Actions []*Action
}

func NewTransaction(actions ...*Action) Transaction {
	return Transaction{Actions: actions}
}

// EndReason is why a call ended, as reported to the platform.
type EndReason string

const (
	EndReasonFailed      EndReason = "failed"
	EndReasonRemoteEnded EndReason = "remote_ended"
)

// HandleType mirrors the native handle kinds.
type HandleType string

const (
	HandleGeneric     HandleType = "generic"
	HandlePhoneNumber HandleType = "phone_number"
)

// Handle identifies the remote party on the native call screen.
type Handle struct {
	Type  HandleType `json:"type"`
	Value string     `json:"value"`
}

// HandleFor types an E.164 number as a phone number; clients, SIP URIs and
// anything else stay generic.
func HandleFor(remote string) Handle {
	if isE164(remote) {
		return Handle{Type: HandlePhoneNumber, Value: remote}
	}
	return Handle{Type: HandleGeneric, Value: remote}
}

func isE164(s string) bool {
	if len(s) < 3 || len(s) > 16 || s[0] != '+' || s[1] == '0' {
		return false
	}
	for _, r := range s[1:] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// CallUpdate describes call capabilities shown by the native UI.
type CallUpdate struct {
	RemoteHandle       Handle `json:"remote_handle"`
	SupportsDTMF       bool   `json:"supports_dtmf"`
	SupportsHolding    bool   `json:"supports_holding"`
	SupportsGrouping   bool   `json:"supports_grouping"`
	SupportsUngrouping bool   `json:"supports_ungrouping"`
	HasVideo           bool   `json:"has_video"`
}

// VoiceCallUpdate is the single-call, audio-only capability set.
func VoiceCallUpdate(remote string) CallUpdate {
	return CallUpdate{
		RemoteHandle:    HandleFor(remote),
		SupportsDTMF:    true,
		SupportsHolding: true,
	}
}

type ProviderEventKind string

const (
	ProviderEventReset                   ProviderEventKind = "reset"
	ProviderEventBegin                   ProviderEventKind = "begin"
	ProviderEventAudioSessionActivated   ProviderEventKind = "audio_session_activated"
	ProviderEventAudioSessionDeactivated ProviderEventKind = "audio_session_deactivated"
	ProviderEventActionTimedOut          ProviderEventKind = "action_timed_out"
)

// ProviderEvent is a native lifecycle notification that is not an action.
// Action is set only for action_timed_out.
type ProviderEvent struct {
	Kind   ProviderEventKind
	Action *Action
}

// AudioDevice is the custom audio engine switch.
type AudioDevice interface {
	SetEnabled(enabled bool)
}

// AudioRouter overrides the output port.
type AudioRouter interface {
	RouteToSpeaker(on bool) error
}
