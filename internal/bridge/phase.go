package bridge

import (
	"context"
	"errors"
	"log/slog"

	"github.com/looplab/fsm"
)

// Phase is the bridge-observable call phase. It is derived from remote and
// native events; neither side's state is owned here.
type Phase string

const (
	PhaseIdle         Phase = "idle"
	PhaseConnecting   Phase = "connecting"
	PhaseRinging      Phase = "ringing"
	PhaseConnected    Phase = "connected"
	PhaseReconnecting Phase = "reconnecting"
	PhaseHangingUp    Phase = "hanging_up"
)

const (
	evStart        = "start"
	evIncoming     = "incoming"
	evRing         = "ring"
	evConnect      = "connect"
	evReconnecting = "reconnecting"
	evReconnected  = "reconnected"
	evHangup       = "hangup"
	evReset        = "reset"
)

func newPhaseFSM() *fsm.FSM {
	live := []string{string(PhaseConnecting), string(PhaseRinging), string(PhaseConnected), string(PhaseReconnecting)}
	return fsm.NewFSM(
		string(PhaseIdle),
		fsm.Events{
			{Name: evStart, Src: []string{string(PhaseIdle)}, Dst: string(PhaseConnecting)},
			{Name: evIncoming, Src: []string{string(PhaseIdle)}, Dst: string(PhaseRinging)},
			{Name: evRing, Src: []string{string(PhaseConnecting)}, Dst: string(PhaseRinging)},
			{Name: evConnect, Src: []string{string(PhaseConnecting), string(PhaseRinging)}, Dst: string(PhaseConnected)},
			{Name: evReconnecting, Src: []string{string(PhaseConnected)}, Dst: string(PhaseReconnecting)},
			{Name: evReconnected, Src: []string{string(PhaseReconnecting)}, Dst: string(PhaseConnected)},
			{Name: evHangup, Src: live, Dst: string(PhaseHangingUp)},
			{Name: evReset, Src: append(live, string(PhaseIdle), string(PhaseHangingUp)), Dst: string(PhaseIdle)},
		},
		nil,
	)
}

// advance applies ev, ignoring transitions the current phase does not allow.
// Remote and native events can interleave, so a skipped transition is expected.
func advance(f *fsm.FSM, ev string, log *slog.Logger) {
	err := f.Event(context.Background(), ev)
	if err == nil {
		return
	}
	var noop fsm.NoTransitionError
	if errors.As(err, &noop) {
		return
	}
	log.Debug("phase transition skipped", "event", ev, "phase", f.Current(), "err", err)
}
