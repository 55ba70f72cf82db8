package calls

import (
	"voice-bridge/internal/bridge"
)

// Apply folds one bridge event into a call record and returns the result.
// Events for a terminal record leave it unchanged.
func Apply(c Call, ev bridge.Event) Call {
	if c.CallID == ev.CallID && c.Status.Terminal() {
		return c
	}
	at := ev.At.UTC()
	if c.CallID != ev.CallID {
		c = Call{CallID: ev.CallID, CreatedAt: at, Status: CallStatusRequested}
	}
	if c.Direction == "" && ev.Direction != "" {
		c.Direction = string(ev.Direction)
	}
	if c.Remote == "" && ev.Destination != "" {
		c.Remote = ev.Destination
	}
	c.UpdatedAt = at

	switch ev.Type {
	case bridge.EventCallRequested:
		if ev.Direction == bridge.DirectionIncoming {
			c.Status = CallStatusRinging
		}
	case bridge.EventCallStarted:
		if c.Status == CallStatusRequested {
			c.Status = CallStatusConnecting
		}
	case bridge.EventCallRinging:
		c.Status = CallStatusRinging
	case bridge.EventCallConnected:
		c.Status = CallStatusInProgress
		if c.ConnectedAt == nil {
			c.ConnectedAt = &at
		}
	case bridge.EventCallReconnecting:
		c.Status = CallStatusReconnecting
	case bridge.EventCallReconnected:
		c.Status = CallStatusInProgress
	case bridge.EventCallFailed:
		c.Status = CallStatusFailed
		c.EndReason = "failed"
		c.EndedAt = &at
	case bridge.EventCallEnded:
		c.EndReason = ev.Reason
		c.EndedAt = &at
		switch {
		case ev.Reason == "failed":
			c.Status = CallStatusFailed
		case c.ConnectedAt == nil:
			c.Status = CallStatusCanceled
		default:
			c.Status = CallStatusCompleted
		}
	case bridge.EventRequestFailed:
		// Only a refused start leaves the identity without a call.
		if c.Status == CallStatusRequested {
			c.Status = CallStatusFailed
			c.EndReason = "native_request_failed"
			c.EndedAt = &at
		}
	}
	return c
}
