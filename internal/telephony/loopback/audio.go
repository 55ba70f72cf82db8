package loopback

import (
	"sync/atomic"

	"voice-bridge/internal/telephony"
)

// Audio stands in for the custom audio engine.
type Audio struct {
	enabled atomic.Bool
}

func (a *Audio) SetEnabled(enabled bool) { a.enabled.Store(enabled) }

func (a *Audio) Enabled() bool { return a.enabled.Load() }

// Router records the requested output port.
type Router struct {
	speaker atomic.Bool
}

func (r *Router) RouteToSpeaker(on bool) error {
	r.speaker.Store(on)
	return nil
}

func (r *Router) Speaker() bool { return r.speaker.Load() }

var _ telephony.AudioDevice = (*Audio)(nil)
var _ telephony.AudioRouter = (*Router)(nil)
