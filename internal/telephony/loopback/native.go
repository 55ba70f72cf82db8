package loopback

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"voice-bridge/internal/telephony"
)

var (
	ErrNoDelegate    = errors.New("loopback: provider delegate is not set")
	ErrMaxCallGroups = errors.New("loopback: maximum call groups reached")
	ErrEmptyTx       = errors.New("loopback: transaction has no actions")
)

type NativeStatus string

const (
	NativeConnecting NativeStatus = "connecting"
	NativeRinging    NativeStatus = "ringing"
	NativeActive     NativeStatus = "active"
	NativeEnded      NativeStatus = "ended"
)

// NativeCall is the platform's view of one call.
type NativeCall struct {
	ID        uuid.UUID
	Incoming  bool
	Status    NativeStatus
	OnHold    bool
	Muted     bool
	Update    telephony.CallUpdate
	EndReason telephony.EndReason
	// EndedByUser is set when the call ended through a fulfilled end action.
	EndedByUser bool
}

type NativeConfig struct {
	ActionTimeout time.Duration
}

// Native is an in-process call-management platform. It accepts transactions,
// performs their actions on the delegate asynchronously and tracks the
// resulting native call state.
//
// Native consumes each action's Done channel; callers must not wait on
// actions they hand to it.
type Native struct {
	cfg NativeConfig
	log *slog.Logger

	mu       sync.Mutex
	delegate telephony.ProviderDelegate
	calls    map[uuid.UUID]*NativeCall
	audioOn  bool
	timeouts int
}

func NewNative(cfg NativeConfig, log *slog.Logger) *Native {
	if cfg.ActionTimeout <= 0 {
		cfg.ActionTimeout = 10 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Native{
		cfg:   cfg,
		log:   log.With("component", "loopback_native"),
		calls: make(map[uuid.UUID]*NativeCall),
	}
}

// SetDelegate installs the action performer and signals that the provider began.
func (n *Native) SetDelegate(d telephony.ProviderDelegate) {
	n.mu.Lock()
	n.delegate = d
	n.mu.Unlock()
	if d != nil {
		go d.HandleProviderEvent(telephony.ProviderEvent{Kind: telephony.ProviderEventBegin})
	}
}

// Reset drops every call, as the platform does when its daemon restarts.
func (n *Native) Reset() {
	n.mu.Lock()
	n.calls = make(map[uuid.UUID]*NativeCall)
	n.audioOn = false
	d := n.delegate
	n.mu.Unlock()
	if d != nil {
		d.HandleProviderEvent(telephony.ProviderEvent{Kind: telephony.ProviderEventReset})
	}
}

func (n *Native) RequestTransaction(ctx context.Context, tx telephony.Transaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(tx.Actions) == 0 {
		return ErrEmptyTx
	}

	n.mu.Lock()
	d := n.delegate
	if d == nil {
		n.mu.Unlock()
		return ErrNoDelegate
	}
	for _, a := range tx.Actions {
		if err := n.admitLocked(a); err != nil {
			n.mu.Unlock()
			n.log.Warn("transaction rejected", "action", a.Kind, "call_id", a.CallID, "err", err)
			return err
		}
	}
	for _, a := range tx.Actions {
		if a.Kind == telephony.ActionStartCall {
			n.pruneLocked()
			n.calls[a.CallID] = &NativeCall{
				ID:     a.CallID,
				Status: NativeConnecting,
				Update: telephony.VoiceCallUpdate(a.Handle.Value),
			}
		}
	}
	n.mu.Unlock()

	go func() {
		for _, a := range tx.Actions {
			n.perform(d, a)
		}
	}()
	return nil
}

func (n *Native) admitLocked(a *telephony.Action) error {
	switch a.Kind {
	case telephony.ActionStartCall:
		if _, exists := n.calls[a.CallID]; exists {
			return errors.New("loopback: call already exists")
		}
		if n.liveLocked() > 0 {
			return ErrMaxCallGroups
		}
	case telephony.ActionEndCall:
		if _, ok := n.calls[a.CallID]; !ok {
			return ErrUnknownCall
		}
	case telephony.ActionSetHeld, telephony.ActionSetMuted:
		c, ok := n.calls[a.CallID]
		if !ok || c.Status == NativeEnded {
			return ErrUnknownCall
		}
	default:
		return errors.New("loopback: unsupported action")
	}
	return nil
}

func (n *Native) liveLocked() int {
	live := 0
	for _, c := range n.calls {
		if c.Status != NativeEnded {
			live++
		}
	}
	return live
}

// pruneLocked forgets ended calls before a new one is added.
func (n *Native) pruneLocked() {
	for id, c := range n.calls {
		if c.Status == NativeEnded {
			delete(n.calls, id)
		}
	}
}

func (n *Native) perform(d telephony.ProviderDelegate, a *telephony.Action) {
	timer := time.AfterFunc(n.cfg.ActionTimeout, func() {
		if a.Resolved() {
			return
		}
		n.mu.Lock()
		n.timeouts++
		n.mu.Unlock()
		d.HandleProviderEvent(telephony.ProviderEvent{Kind: telephony.ProviderEventActionTimedOut, Action: a})
	})

	d.PerformAction(a)

	go func() {
		defer timer.Stop()
		res, ok := <-a.Done()
		if !ok {
			return
		}
		n.applyResult(d, a, res)
	}()
}

func (n *Native) applyResult(d telephony.ProviderDelegate, a *telephony.Action, res telephony.ActionResult) {
	var audio *telephony.ProviderEventKind

	n.mu.Lock()
	c := n.calls[a.CallID]
	switch {
	case c == nil:
	case res == telephony.ActionFailed:
		if a.Kind == telephony.ActionStartCall {
			c.Status = NativeEnded
			c.EndReason = telephony.EndReasonFailed
		}
	case a.Kind == telephony.ActionStartCall:
		if !n.audioOn {
			n.audioOn = true
			k := telephony.ProviderEventAudioSessionActivated
			audio = &k
		}
	case a.Kind == telephony.ActionEndCall:
		if c.Status != NativeEnded {
			c.Status = NativeEnded
			c.EndedByUser = true
		}
		if n.audioOn && n.liveLocked() == 0 {
			n.audioOn = false
			k := telephony.ProviderEventAudioSessionDeactivated
			audio = &k
		}
	case a.Kind == telephony.ActionSetHeld:
		c.OnHold = a.OnHold
	case a.Kind == telephony.ActionSetMuted:
		c.Muted = a.Muted
	}
	n.mu.Unlock()

	n.log.Debug("action resolved", "action", a.Kind, "call_id", a.CallID, "result", res)
	if audio != nil {
		d.HandleProviderEvent(telephony.ProviderEvent{Kind: *audio})
	}
}

func (n *Native) ReportOutgoingStartedConnecting(id uuid.UUID, _ time.Time) {
	n.setStatus(id, NativeConnecting)
}

func (n *Native) ReportOutgoingConnected(id uuid.UUID, _ time.Time) {
	n.setStatus(id, NativeActive)
}

func (n *Native) ReportCallEnded(id uuid.UUID, _ time.Time, reason telephony.EndReason) {
	n.mu.Lock()
	c, ok := n.calls[id]
	if ok {
		c.Status = NativeEnded
		c.EndReason = reason
	}
	deactivate := n.audioOn && n.liveLocked() == 0
	if deactivate {
		n.audioOn = false
	}
	d := n.delegate
	n.mu.Unlock()

	if !ok {
		n.log.Warn("end reported for unknown call", "call_id", id)
	}
	if deactivate && d != nil {
		go d.HandleProviderEvent(telephony.ProviderEvent{Kind: telephony.ProviderEventAudioSessionDeactivated})
	}
}

func (n *Native) ReportCallUpdated(id uuid.UUID, update telephony.CallUpdate) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if c, ok := n.calls[id]; ok {
		c.Update = update
	}
}

func (n *Native) ReportNewIncomingCall(ctx context.Context, id uuid.UUID, update telephony.CallUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.liveLocked() > 0 {
		return ErrMaxCallGroups
	}
	n.pruneLocked()
	n.calls[id] = &NativeCall{ID: id, Incoming: true, Status: NativeRinging, Update: update}
	return nil
}

func (n *Native) setStatus(id uuid.UUID, s NativeStatus) {
	n.mu.Lock()
	defer n.mu.Unlock()
	c, ok := n.calls[id]
	if !ok || c.Status == NativeEnded {
		return
	}
	c.Status = s
}

// Call returns a copy of the platform's state for id.
func (n *Native) Call(id uuid.UUID) (NativeCall, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	c, ok := n.calls[id]
	if !ok {
		return NativeCall{}, false
	}
	return *c, true
}

// AudioActive reports whether the platform audio session is active.
func (n *Native) AudioActive() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.audioOn
}

func (n *Native) Timeouts() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.timeouts
}

var _ telephony.CallProvider = (*Native)(nil)
var _ telephony.CallController = (*Native)(nil)
