package loopback

import (
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"voice-bridge/internal/telephony"
)

var (
	ErrUnauthorized        = errors.New("loopback: access token is required")
	ErrDestinationRejected = errors.New("loopback: destination rejected")
	ErrUnknownCall         = errors.New("loopback: unknown call")
)

type VoiceConfig struct {
	RingDelay   time.Duration
	AnswerDelay time.Duration
}

// Voice is an in-process voice client. Outgoing calls ring after RingDelay and
// are answered AnswerDelay later unless the destination is empty or blocked.
type Voice struct {
	cfg VoiceConfig
	log *slog.Logger

	mu      sync.Mutex
	calls   map[uuid.UUID]*Call
	blocked map[string]struct{}
}

func NewVoice(cfg VoiceConfig, log *slog.Logger) *Voice {
	if log == nil {
		log = slog.Default()
	}
	return &Voice{
		cfg:     cfg,
		log:     log.With("component", "loopback_voice"),
		calls:   make(map[uuid.UUID]*Call),
		blocked: make(map[string]struct{}),
	}
}

// Block makes calls to destination fail to connect.
func (v *Voice) Block(destination string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.blocked[strings.TrimSpace(destination)] = struct{}{}
}

func (v *Voice) Connect(opts telephony.ConnectOptions, sink telephony.CallEventSink) (telephony.VoiceCall, error) {
	if opts.AccessToken == "" {
		return nil, ErrUnauthorized
	}
	if sink == nil {
		return nil, errors.New("loopback: event sink is required")
	}
	id := opts.CallID
	if id == uuid.Nil {
		id = uuid.New()
	}
	dest := strings.TrimSpace(opts.Params[telephony.ParamTo])

	v.mu.Lock()
	if _, dup := v.calls[id]; dup {
		v.mu.Unlock()
		return nil, errors.New("loopback: call id already in use")
	}
	_, blocked := v.blocked[dest]
	c := newCall(id, dest, sink, v)
	v.calls[id] = c
	v.mu.Unlock()

	v.log.Info("connect", "call_id", id, "to", dest)

	c.schedule(v.cfg.RingDelay, func() { c.emitIf(callDialing, callDialing, telephony.CallEventRinging, nil) })
	c.schedule(v.cfg.RingDelay+v.cfg.AnswerDelay, func() {
		if dest == "" || blocked {
			c.finish(telephony.CallEventFailedToConnect, ErrDestinationRejected)
			return
		}
		c.emitIf(callDialing, callActive, telephony.CallEventConnected, nil)
	})
	return c, nil
}

// HangupRemote ends a call from the far side. A non-nil cause reports a failure.
func (v *Voice) HangupRemote(id uuid.UUID, cause error) error {
	c := v.lookup(id)
	if c == nil {
		return ErrUnknownCall
	}
	c.finish(telephony.CallEventDisconnected, cause)
	return nil
}

// DropMedia simulates a network blip: reconnecting now, reconnected after RingDelay.
func (v *Voice) DropMedia(id uuid.UUID) error {
	c := v.lookup(id)
	if c == nil {
		return ErrUnknownCall
	}
	if !c.emitIf(callActive, callReconnecting, telephony.CallEventReconnecting, errors.New("loopback: media path lost")) {
		return errors.New("loopback: call is not active")
	}
	c.schedule(v.cfg.RingDelay, func() { c.emitIf(callReconnecting, callActive, telephony.CallEventReconnected, nil) })
	return nil
}

// Active lists calls that have not ended.
func (v *Voice) Active() []uuid.UUID {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]uuid.UUID, 0, len(v.calls))
	for id := range v.calls {
		out = append(out, id)
	}
	return out
}

func (v *Voice) lookup(id uuid.UUID) *Call {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.calls[id]
}

func (v *Voice) forget(id uuid.UUID) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.calls, id)
}

type callState int

const (
	callDialing callState = iota
	callActive
	callReconnecting
	callEnded
)

// Call is a loopback voice call. Events are delivered to the sink in order on
// a dedicated goroutine, never on the caller's.
type Call struct {
	id    uuid.UUID
	dest  string
	voice *Voice

	mu     sync.Mutex
	state  callState
	onHold bool
	muted  bool
	timers []*time.Timer
	events chan telephony.CallEvent
}

func newCall(id uuid.UUID, dest string, sink telephony.CallEventSink, v *Voice) *Call {
	c := &Call{id: id, dest: dest, voice: v, events: make(chan telephony.CallEvent, 16)}
	go func() {
		for ev := range c.events {
			sink.HandleCallEvent(ev)
		}
	}()
	return c
}

func (c *Call) ID() uuid.UUID { return c.id }

func (c *Call) Disconnect() {
	c.finish(telephony.CallEventDisconnected, nil)
}

func (c *Call) SetOnHold(onHold bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onHold = onHold
}

func (c *Call) IsOnHold() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.onHold
}

func (c *Call) SetMuted(muted bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.muted = muted
}

func (c *Call) IsMuted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.muted
}

func (c *Call) schedule(after time.Duration, fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == callEnded {
		return
	}
	c.timers = append(c.timers, time.AfterFunc(after, fn))
}

// emitIf moves from one state to another and queues ev, or does nothing.
func (c *Call) emitIf(from, to callState, kind telephony.CallEventKind, err error) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != from {
		return false
	}
	c.state = to
	c.events <- telephony.CallEvent{Kind: kind, CallID: c.id, Err: err}
	return true
}

// finish queues the terminal event once and stops the call's timers.
func (c *Call) finish(kind telephony.CallEventKind, err error) {
	c.mu.Lock()
	if c.state == callEnded {
		c.mu.Unlock()
		return
	}
	c.state = callEnded
	for _, t := range c.timers {
		t.Stop()
	}
	c.timers = nil
	c.events <- telephony.CallEvent{Kind: kind, CallID: c.id, Err: err}
	close(c.events)
	c.mu.Unlock()

	c.voice.forget(c.id)
	c.voice.log.Info("call finished", "call_id", c.id, "event", kind, "err", err)
}

var _ telephony.VoiceClient = (*Voice)(nil)
var _ telephony.VoiceCall = (*Call)(nil)
