package bridge

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/looplab/fsm"

	"voice-bridge/internal/telephony"
)

// CredentialSource supplies the access token the voice SDK connects with.
type CredentialSource interface {
	AccessToken() (string, error)
}

// CallGroupLimiter caps concurrent calls for this client across devices.
// Implementations decide the key; the bridge only acquires and releases.
type CallGroupLimiter interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

type Options struct {
	Voice       telephony.VoiceClient
	Provider    telephony.CallProvider
	Controller  telephony.CallController
	Audio       telephony.AudioDevice
	Router      telephony.AudioRouter
	Credentials CredentialSource

	// Optional.
	Limiter  CallGroupLimiter
	Observer Observer
	Metrics  *Metrics
	Logger   *slog.Logger

	SpeakerOnConnect bool
	Now              func() time.Time
}

// Bridge keeps the native call screen and the voice SDK in agreement about
// the single active call.
//
// All state below mu is touched only with mu held. Collaborators are always
// called with mu released so they may call back into the bridge synchronously.
type Bridge struct {
	voice      telephony.VoiceClient
	provider   telephony.CallProvider
	controller telephony.CallController
	audio      telephony.AudioDevice
	router     telephony.AudioRouter
	creds      CredentialSource
	limiter    CallGroupLimiter
	observer   Observer
	metrics    *Metrics
	log        *slog.Logger
	now        func() time.Time

	speakerOnConnect bool

	mu          sync.Mutex
	callID      uuid.UUID
	direction   Direction
	destination string
	call        telephony.VoiceCall
	pending     *startCompletion
	// userEnded is the identity whose end came from a native end action.
	userEnded uuid.UUID
	// lastEnded is the most recently torn down identity; a late start for it is refused.
	lastEnded   uuid.UUID
	speaker     bool
	limiterHeld bool
	phase       *fsm.FSM
}

func New(opts Options) (*Bridge, error) {
	switch {
	case opts.Voice == nil:
		return nil, errors.New("bridge: voice client is required")
	case opts.Provider == nil:
		return nil, errors.New("bridge: call provider is required")
	case opts.Controller == nil:
		return nil, errors.New("bridge: call controller is required")
	case opts.Audio == nil:
		return nil, errors.New("bridge: audio device is required")
	case opts.Router == nil:
		return nil, errors.New("bridge: audio router is required")
	case opts.Credentials == nil:
		return nil, errors.New("bridge: credential source is required")
	}

	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Bridge{
		voice:            opts.Voice,
		provider:         opts.Provider,
		controller:       opts.Controller,
		audio:            opts.Audio,
		router:           opts.Router,
		creds:            opts.Credentials,
		limiter:          opts.Limiter,
		observer:         opts.Observer,
		metrics:          opts.Metrics,
		log:              log.With("component", "bridge"),
		now:              now,
		speakerOnConnect: opts.SpeakerOnConnect,
		phase:            newPhaseFSM(),
	}, nil
}

/* ===================== USER INTENTS ===================== */

// StartCall requests a native outgoing call to destination.
// The call is placed when the platform performs the start action.
func (b *Bridge) StartCall(ctx context.Context, destination string) (uuid.UUID, error) {
	destination = strings.TrimSpace(destination)

	id, err := b.reserve(ctx, DirectionOutgoing, destination, evStart)
	if err != nil {
		return uuid.Nil, err
	}
	log := b.log.With("call_id", id)

	handle := telephony.HandleFor(destination)
	tx := telephony.NewTransaction(telephony.NewStartCallAction(id, handle))
	if err := b.controller.RequestTransaction(ctx, tx); err != nil {
		log.Error("start call transaction request failed", "err", err)
		b.releaseReservation(id)
		return uuid.Nil, b.requestFailed("start_call", id, err)
	}
	log.Info("start call transaction request successful", "to", destination)

	b.provider.ReportCallUpdated(id, telephony.VoiceCallUpdate(destination))
	b.emit(Event{Type: EventCallRequested, CallID: id, Direction: DirectionOutgoing, Destination: destination})
	return id, nil
}

// ReportIncomingCall asks the platform to present an incoming call from a remote party.
func (b *Bridge) ReportIncomingCall(ctx context.Context, from string) (uuid.UUID, error) {
	from = strings.TrimSpace(from)

	id, err := b.reserve(ctx, DirectionIncoming, from, evIncoming)
	if err != nil {
		return uuid.Nil, err
	}

	if err := b.provider.ReportNewIncomingCall(ctx, id, telephony.VoiceCallUpdate(from)); err != nil {
		b.log.Error("failed to report incoming call", "call_id", id, "err", err)
		b.releaseReservation(id)
		return uuid.Nil, b.requestFailed("report_incoming", id, err)
	}
	b.log.Info("incoming call reported", "call_id", id, "from", from)
	b.emit(Event{Type: EventCallRequested, CallID: id, Direction: DirectionIncoming, Destination: from})
	return id, nil
}

// EndCall requests a native end action for the active call.
func (b *Bridge) EndCall(ctx context.Context) error {
	id := b.activeID()
	if id == uuid.Nil {
		return ErrNoActiveCall
	}
	if err := b.controller.RequestTransaction(ctx, telephony.NewTransaction(telephony.NewEndCallAction(id))); err != nil {
		b.log.Error("end call transaction request failed", "call_id", id, "err", err)
		return b.requestFailed("end_call", id, err)
	}
	return nil
}

// SetMuted requests a native mute change for the active call.
func (b *Bridge) SetMuted(ctx context.Context, muted bool) error {
	id := b.activeID()
	if id == uuid.Nil {
		return ErrNoActiveCall
	}
	if err := b.controller.RequestTransaction(ctx, telephony.NewTransaction(telephony.NewSetMutedAction(id, muted))); err != nil {
		b.log.Error("set muted transaction request failed", "call_id", id, "err", err)
		return b.requestFailed("set_muted", id, err)
	}
	return nil
}

// SetHeld requests a native hold change for the active call.
func (b *Bridge) SetHeld(ctx context.Context, onHold bool) error {
	id := b.activeID()
	if id == uuid.Nil {
		return ErrNoActiveCall
	}
	if err := b.controller.RequestTransaction(ctx, telephony.NewTransaction(telephony.NewSetHeldAction(id, onHold))); err != nil {
		b.log.Error("set held transaction request failed", "call_id", id, "err", err)
		return b.requestFailed("set_held", id, err)
	}
	return nil
}

// SetSpeaker switches the output between loudspeaker and receiver.
func (b *Bridge) SetSpeaker(on bool) error {
	if b.activeID() == uuid.Nil {
		return ErrNoActiveCall
	}
	if err := b.router.RouteToSpeaker(on); err != nil {
		return err
	}
	b.mu.Lock()
	b.speaker = on
	b.mu.Unlock()
	return nil
}

/* ===================== NATIVE → REMOTE ===================== */

// PerformAction resolves a native action. Every action is fulfilled or failed
// exactly once, possibly later for start_call.
func (b *Bridge) PerformAction(a *telephony.Action) {
	b.log.Debug("perform action", "action", a.Kind, "call_id", a.CallID)

	switch a.Kind {
	case telephony.ActionStartCall:
		b.performStart(a)
	case telephony.ActionEndCall:
		b.performEnd(a)
	case telephony.ActionSetHeld:
		b.performSetHeld(a)
	case telephony.ActionSetMuted:
		b.performSetMuted(a)
	default:
		b.log.Warn("unsupported native action", "action", a.Kind)
		b.fail(a)
	}
}

func (b *Bridge) performStart(a *telephony.Action) {
	id := a.CallID
	log := b.log.With("call_id", id)

	b.mu.Lock()
	switch {
	case b.callID == uuid.Nil && id == b.lastEnded:
		b.mu.Unlock()
		log.Info("start action for an ended call rejected")
		b.fail(a)
		return
	case b.callID == uuid.Nil:
		// Started by the platform without a prior request from us.
		b.adoptLocked(id, DirectionOutgoing, a.Handle.Value, evStart)
	case b.callID != id || b.call != nil || b.pending != nil:
		b.mu.Unlock()
		log.Warn("start action rejected, another call is active", "active_call_id", b.activeID())
		b.fail(a)
		return
	}
	destination := a.Handle.Value
	b.mu.Unlock()

	// The platform activates its own audio session; keep the engine off until it does.
	b.audio.SetEnabled(false)
	b.provider.ReportOutgoingStartedConnecting(id, b.now())

	token, err := b.creds.AccessToken()
	if err == nil && token == "" {
		err = ErrNoCredential
	}
	if err != nil {
		if !errors.Is(err, ErrNoCredential) {
			err = errors.Join(ErrNoCredential, err)
		}
		log.Warn("start call failed, no access token", "err", err)
		b.releaseReservation(id)
		b.fail(a)
		b.emit(Event{Type: EventCallFailed, CallID: id, Direction: DirectionOutgoing, Destination: destination, Err: err})
		return
	}

	comp := newStartCompletion(id, func(ok bool) {
		if ok {
			b.provider.ReportOutgoingConnected(id, b.now())
			b.fulfill(a)
			return
		}
		b.fail(a)
	})

	b.mu.Lock()
	if b.callID != id {
		b.mu.Unlock()
		comp.resolve(false)
		return
	}
	b.pending = comp
	b.mu.Unlock()

	call, err := b.voice.Connect(telephony.ConnectOptions{
		AccessToken: token,
		Params:      map[string]string{telephony.ParamTo: destination},
		CallID:      id,
	}, b)
	if err != nil {
		log.Error("voice connect failed", "err", err)
		b.HandleCallEvent(telephony.CallEvent{Kind: telephony.CallEventFailedToConnect, CallID: id, Err: err})
		return
	}

	b.mu.Lock()
	stale := b.callID != id
	if !stale {
		b.call = call
	}
	b.mu.Unlock()
	if stale {
		// Torn down while connecting; the SDK call must not outlive its identity.
		log.Info("call ended before connect returned, disconnecting")
		call.Disconnect()
		return
	}

	b.emit(Event{Type: EventCallStarted, CallID: id, Direction: DirectionOutgoing, Destination: destination})
}

func (b *Bridge) performEnd(a *telephony.Action) {
	var (
		call     telephony.VoiceCall
		pending  *startCompletion
		ended    *Event
		released bool
	)

	b.mu.Lock()
	if a.CallID != uuid.Nil && b.callID == a.CallID {
		if b.call != nil {
			call = b.call
			b.userEnded = a.CallID
			advance(b.phase, evHangup, b.log)
		} else {
			// Reserved but no SDK call yet: nothing remote will report the end.
			pending = b.pending
			ended = &Event{Type: EventCallEnded, CallID: a.CallID, Direction: b.direction, Destination: b.destination, Reason: EndReasonLocal}
			released = b.clearLocked()
		}
	}
	b.mu.Unlock()

	if pending != nil {
		pending.resolve(false)
	}
	if released {
		b.releaseLimiter()
	}
	if ended != nil {
		b.metrics.ended(EndReasonLocal)
		b.emit(*ended)
	}
	if call != nil {
		call.Disconnect()
	}
	b.fulfill(a)
}

func (b *Bridge) performSetHeld(a *telephony.Action) {
	call := b.callFor(a.CallID)
	if call == nil {
		b.fail(a)
		return
	}
	call.SetOnHold(a.OnHold)
	b.fulfill(a)
}

func (b *Bridge) performSetMuted(a *telephony.Action) {
	call := b.callFor(a.CallID)
	if call == nil {
		b.fail(a)
		return
	}
	call.SetMuted(a.Muted)
	b.fulfill(a)
}

// HandleProviderEvent reacts to native lifecycle notifications.
func (b *Bridge) HandleProviderEvent(ev telephony.ProviderEvent) {
	switch ev.Kind {
	case telephony.ProviderEventReset, telephony.ProviderEventAudioSessionActivated:
		// The platform may reset or reactivate audio at any time relative to call state.
		b.log.Info("provider audio available", "event", ev.Kind)
		b.audio.SetEnabled(true)
	case telephony.ProviderEventActionTimedOut:
		if ev.Action != nil {
			b.log.Warn("native action timed out", "action", ev.Action.Kind, "call_id", ev.Action.CallID)
		} else {
			b.log.Warn("native action timed out")
		}
		b.metrics.timedOut()
	default:
		b.log.Info("provider event", "event", ev.Kind)
	}
}

/* ===================== REMOTE → NATIVE ===================== */

// HandleCallEvent reconciles a remote call transition into native state.
func (b *Bridge) HandleCallEvent(ev telephony.CallEvent) {
	b.metrics.remoteEvent(ev.Kind)
	log := b.log.With("call_id", ev.CallID)

	switch ev.Kind {
	case telephony.CallEventRinging:
		log.Info("call did start ringing")
		b.step(ev, evRing, EventCallRinging)
	case telephony.CallEventConnected:
		log.Info("call did connect")
		b.onConnected(ev)
	case telephony.CallEventReconnecting:
		log.Warn("call is reconnecting", "err", ev.Err)
		b.step(ev, evReconnecting, EventCallReconnecting)
	case telephony.CallEventReconnected:
		log.Info("call did reconnect")
		b.step(ev, evReconnected, EventCallReconnected)
	case telephony.CallEventFailedToConnect:
		log.Warn("call failed to connect", "err", ev.Err)
		b.onFailedToConnect(ev)
	case telephony.CallEventDisconnected:
		if ev.Err != nil {
			log.Warn("call failed", "err", ev.Err)
		} else {
			log.Info("call disconnected")
		}
		b.onDisconnected(ev)
	default:
		log.Warn("unknown call event", "kind", ev.Kind)
	}
}

func (b *Bridge) step(ev telephony.CallEvent, transition string, typ EventType) {
	b.mu.Lock()
	if b.callID != ev.CallID {
		b.mu.Unlock()
		return
	}
	advance(b.phase, transition, b.log)
	out := Event{Type: typ, CallID: ev.CallID, Direction: b.direction, Destination: b.destination, Err: ev.Err}
	b.mu.Unlock()
	b.emit(out)
}

func (b *Bridge) onConnected(ev telephony.CallEvent) {
	b.mu.Lock()
	if b.callID != ev.CallID {
		b.mu.Unlock()
		b.log.Debug("connect for inactive call ignored", "call_id", ev.CallID)
		return
	}
	pending := b.pending
	b.pending = nil
	advance(b.phase, evConnect, b.log)
	out := Event{Type: EventCallConnected, CallID: ev.CallID, Direction: b.direction, Destination: b.destination}
	b.mu.Unlock()

	if pending != nil {
		pending.resolve(true)
	}
	if b.speakerOnConnect {
		if err := b.router.RouteToSpeaker(true); err != nil {
			b.log.Error("audio route override failed", "err", err)
		} else {
			b.mu.Lock()
			if b.callID == ev.CallID {
				b.speaker = true
			}
			b.mu.Unlock()
		}
	}
	b.emit(out)
}

func (b *Bridge) onFailedToConnect(ev telephony.CallEvent) {
	b.mu.Lock()
	if b.callID != ev.CallID {
		b.mu.Unlock()
		b.log.Debug("connect failure for inactive call ignored", "call_id", ev.CallID)
		return
	}
	pending := b.pending
	out := Event{Type: EventCallFailed, CallID: ev.CallID, Direction: b.direction, Destination: b.destination, Err: ev.Err}
	released := b.clearLocked()
	b.mu.Unlock()

	if pending != nil {
		pending.resolve(false)
	}

	// The call never connected; make sure the native side stops showing it.
	if err := b.controller.RequestTransaction(context.Background(), telephony.NewTransaction(telephony.NewEndCallAction(ev.CallID))); err != nil {
		b.log.Error("end call transaction request failed", "call_id", ev.CallID, "err", err)
		_ = b.requestFailed("end_call", ev.CallID, err)
	}

	if released {
		b.releaseLimiter()
	}
	b.metrics.ended(string(telephony.EndReasonFailed))
	b.emit(out)
}

func (b *Bridge) onDisconnected(ev telephony.CallEvent) {
	b.mu.Lock()
	if b.callID != ev.CallID {
		b.mu.Unlock()
		b.log.Debug("disconnect for inactive call ignored", "call_id", ev.CallID)
		return
	}
	userEnded := b.userEnded == ev.CallID
	pending := b.pending
	out := Event{Type: EventCallEnded, CallID: ev.CallID, Direction: b.direction, Destination: b.destination, Err: ev.Err}
	released := b.clearLocked()
	b.mu.Unlock()

	if pending != nil {
		pending.resolve(false)
	}

	reason := telephony.EndReasonRemoteEnded
	if ev.Err != nil {
		reason = telephony.EndReasonFailed
	}
	if !userEnded {
		b.provider.ReportCallEnded(ev.CallID, b.now(), reason)
	}

	if released {
		b.releaseLimiter()
	}
	out.Reason = endReasonLabel(userEnded, reason)
	b.metrics.ended(out.Reason)
	b.emit(out)
}

/* ===================== STATE ===================== */

// Snapshot is the bridge state the presenter renders.
type Snapshot struct {
	Phase       Phase     `json:"phase"`
	CallID      uuid.UUID `json:"call_id"`
	Direction   Direction `json:"direction,omitempty"`
	Destination string    `json:"destination,omitempty"`
	Muted       bool      `json:"muted"`
	OnHold      bool      `json:"on_hold"`
	Speaker     bool      `json:"speaker"`
}

func (b *Bridge) Snapshot() Snapshot {
	b.mu.Lock()
	s := Snapshot{
		Phase:       Phase(b.phase.Current()),
		CallID:      b.callID,
		Direction:   b.direction,
		Destination: b.destination,
		Speaker:     b.speaker,
	}
	call := b.call
	b.mu.Unlock()

	if call != nil {
		s.Muted = call.IsMuted()
		s.OnHold = call.IsOnHold()
	}
	return s
}

func (b *Bridge) activeID() uuid.UUID {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.callID
}

func (b *Bridge) callFor(id uuid.UUID) telephony.VoiceCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.call == nil || b.callID != id {
		return nil
	}
	return b.call
}

// reserve creates a new identity and takes the shared call-group slot.
func (b *Bridge) reserve(ctx context.Context, dir Direction, remote, transition string) (uuid.UUID, error) {
	id := uuid.New()

	b.mu.Lock()
	if b.callID != uuid.Nil {
		b.mu.Unlock()
		return uuid.Nil, ErrCallActive
	}
	b.adoptLocked(id, dir, remote, transition)
	b.mu.Unlock()

	if b.limiter == nil {
		return id, nil
	}
	ok, err := b.limiter.Acquire(ctx)
	if err == nil && !ok {
		err = ErrCallGroupBusy
	}
	if err != nil {
		b.releaseReservation(id)
		return uuid.Nil, err
	}

	b.mu.Lock()
	held := b.callID == id
	if held {
		b.limiterHeld = true
	}
	b.mu.Unlock()
	if !held {
		// The reservation was dropped while acquiring.
		b.releaseLimiter()
		return uuid.Nil, ErrReservationLost
	}
	return id, nil
}

func (b *Bridge) adoptLocked(id uuid.UUID, dir Direction, remote, transition string) {
	b.callID = id
	b.direction = dir
	b.destination = remote
	advance(b.phase, transition, b.log)
	b.metrics.setActive(1)
}

// releaseReservation drops an identity that never got an SDK call.
func (b *Bridge) releaseReservation(id uuid.UUID) {
	b.mu.Lock()
	released := false
	if b.callID == id && b.call == nil {
		released = b.clearLocked()
	}
	b.mu.Unlock()
	if released {
		b.releaseLimiter()
	}
}

// clearLocked returns the bridge to idle and reports whether a limiter slot must be released.
func (b *Bridge) clearLocked() bool {
	held := b.limiterHeld
	b.lastEnded = b.callID
	b.callID = uuid.Nil
	b.direction = ""
	b.destination = ""
	b.call = nil
	b.pending = nil
	b.userEnded = uuid.Nil
	b.speaker = false
	b.limiterHeld = false
	advance(b.phase, evReset, b.log)
	b.metrics.setActive(0)
	return held
}

const limiterReleaseTimeout = 5 * time.Second

func (b *Bridge) releaseLimiter() {
	if b.limiter == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), limiterReleaseTimeout)
		defer cancel()
		if err := b.limiter.Release(ctx); err != nil {
			b.log.Warn("call group release failed", "err", err)
		}
	}()
}

func (b *Bridge) requestFailed(op string, id uuid.UUID, err error) error {
	b.metrics.requestFailed(op)
	rerr := &NativeRequestError{Op: op, CallID: id, Err: err}
	b.emit(Event{Type: EventRequestFailed, CallID: id, Err: rerr})
	return rerr
}

func (b *Bridge) fulfill(a *telephony.Action) {
	if a.Fulfill() {
		b.metrics.action(a.Kind, telephony.ActionFulfilled)
	}
}

func (b *Bridge) fail(a *telephony.Action) {
	if a.Fail() {
		b.metrics.action(a.Kind, telephony.ActionFailed)
	}
}

func (b *Bridge) emit(ev Event) {
	if b.observer == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = b.now()
	}
	b.observer.Observe(ev)
}

var _ telephony.CallEventSink = (*Bridge)(nil)
var _ telephony.ProviderDelegate = (*Bridge)(nil)
