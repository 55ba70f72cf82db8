package presenter

import (
	"github.com/google/uuid"

	"voice-bridge/internal/bridge"
)

// Button titles shown on the single call button.
const (
	TitleCall         = "Call"
	TitleRinging      = "Ringing"
	TitleReconnecting = "Reconnecting"
	TitleHangUp       = "Hang Up"
	TitleHangingUp    = "Hanging Up"
)

// View is what the call screen renders for one bridge snapshot.
type View struct {
	CallID          *uuid.UUID   `json:"call_id,omitempty"`
	Phase           bridge.Phase `json:"phase"`
	ButtonTitle     string       `json:"button_title"`
	ButtonEnabled   bool         `json:"button_enabled"`
	ControlsVisible bool         `json:"controls_visible"`
	MuteOn          bool         `json:"mute_on"`
	HoldOn          bool         `json:"hold_on"`
	SpeakerOn       bool         `json:"speaker_on"`
	Destination     string       `json:"destination,omitempty"`
}

// Render maps bridge state to the call screen.
//
// The button is disabled while a start, a reconnect or a hang-up is in flight.
// Mute, hold and speaker controls only show while the call is connected.
func Render(s bridge.Snapshot) View {
	v := View{Phase: s.Phase, Destination: s.Destination}
	if s.CallID != uuid.Nil {
		id := s.CallID
		v.CallID = &id
	}

	switch s.Phase {
	case bridge.PhaseConnecting, bridge.PhaseRinging:
		v.ButtonTitle = TitleRinging
	case bridge.PhaseReconnecting:
		v.ButtonTitle = TitleReconnecting
	case bridge.PhaseConnected:
		v.ButtonTitle = TitleHangUp
		v.ButtonEnabled = true
		v.ControlsVisible = true
	case bridge.PhaseHangingUp:
		v.ButtonTitle = TitleHangingUp
	default:
		v.ButtonTitle = TitleCall
		v.ButtonEnabled = true
		v.Destination = ""
		return v
	}

	// An incoming call can be declined from the button before it connects.
	if s.Direction == bridge.DirectionIncoming && s.Phase == bridge.PhaseRinging {
		v.ButtonTitle = TitleHangUp
		v.ButtonEnabled = true
	}

	if v.ControlsVisible {
		v.MuteOn = s.Muted
		v.HoldOn = s.OnHold
		v.SpeakerOn = s.Speaker
	}
	return v
}
