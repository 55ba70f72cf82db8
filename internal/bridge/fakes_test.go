package bridge

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"voice-bridge/internal/telephony"
)

type fakeCall struct {
	id uuid.UUID

	mu          sync.Mutex
	onHold      bool
	muted       bool
	disconnects int
}

func (c *fakeCall) ID() uuid.UUID { return c.id }

func (c *fakeCall) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnects++
}

func (c *fakeCall) SetOnHold(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onHold = v
}

func (c *fakeCall) IsOnHold() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.onHold
}

func (c *fakeCall) SetMuted(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.muted = v
}

func (c *fakeCall) IsMuted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.muted
}

func (c *fakeCall) disconnectCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnects
}

type fakeVoice struct {
	mu       sync.Mutex
	err      error
	connects []telephony.ConnectOptions
	calls    []*fakeCall
}

func (v *fakeVoice) Connect(opts telephony.ConnectOptions, sink telephony.CallEventSink) (telephony.VoiceCall, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.connects = append(v.connects, opts)
	if v.err != nil {
		return nil, v.err
	}
	c := &fakeCall{id: opts.CallID}
	v.calls = append(v.calls, c)
	return c, nil
}

func (v *fakeVoice) connectCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.connects)
}

func (v *fakeVoice) lastCall() *fakeCall {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.calls) == 0 {
		return nil
	}
	return v.calls[len(v.calls)-1]
}

type endReport struct {
	callID uuid.UUID
	reason telephony.EndReason
}

// fakeNative records provider reports and controller requests. When delegate
// is set, requested actions are performed synchronously like a cooperative platform.
type fakeNative struct {
	mu           sync.Mutex
	delegate     telephony.ProviderDelegate
	requestErr   error
	incomingErr  error
	transactions []telephony.Transaction
	ended        []endReport
	connecting   []uuid.UUID
	connected    []uuid.UUID
	updates      []telephony.CallUpdate
	incoming     []uuid.UUID
}

func (n *fakeNative) RequestTransaction(ctx context.Context, tx telephony.Transaction) error {
	n.mu.Lock()
	if n.requestErr != nil {
		n.mu.Unlock()
		return n.requestErr
	}
	n.transactions = append(n.transactions, tx)
	d := n.delegate
	n.mu.Unlock()

	if d != nil {
		for _, a := range tx.Actions {
			d.PerformAction(a)
		}
	}
	return nil
}

func (n *fakeNative) ReportOutgoingStartedConnecting(id uuid.UUID, _ time.Time) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.connecting = append(n.connecting, id)
}

func (n *fakeNative) ReportOutgoingConnected(id uuid.UUID, _ time.Time) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.connected = append(n.connected, id)
}

func (n *fakeNative) ReportCallEnded(id uuid.UUID, _ time.Time, reason telephony.EndReason) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ended = append(n.ended, endReport{callID: id, reason: reason})
}

func (n *fakeNative) ReportCallUpdated(_ uuid.UUID, u telephony.CallUpdate) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.updates = append(n.updates, u)
}

func (n *fakeNative) ReportNewIncomingCall(_ context.Context, id uuid.UUID, u telephony.CallUpdate) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.incomingErr != nil {
		return n.incomingErr
	}
	n.incoming = append(n.incoming, id)
	n.updates = append(n.updates, u)
	return nil
}

func (n *fakeNative) endReports() []endReport {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]endReport(nil), n.ended...)
}

func (n *fakeNative) requestedActions(kind telephony.ActionKind) []*telephony.Action {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []*telephony.Action
	for _, tx := range n.transactions {
		for _, a := range tx.Actions {
			if a.Kind == kind {
				out = append(out, a)
			}
		}
	}
	return out
}

type fakeAudio struct {
	mu      sync.Mutex
	history []bool
}

func (a *fakeAudio) SetEnabled(v bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.history = append(a.history, v)
}

func (a *fakeAudio) last() (bool, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.history) == 0 {
		return false, false
	}
	return a.history[len(a.history)-1], true
}

type fakeRouter struct {
	mu     sync.Mutex
	err    error
	routes []bool
}

func (r *fakeRouter) RouteToSpeaker(on bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.routes = append(r.routes, on)
	return nil
}

type fakeCreds struct {
	token string
	err   error
}

func (c fakeCreds) AccessToken() (string, error) { return c.token, c.err }

type fakeLimiter struct {
	ok       bool
	err      error
	acquired atomic.Int32
	released atomic.Int32
	// onAcquire runs while Acquire is in flight.
	onAcquire func()
}

func (l *fakeLimiter) Acquire(context.Context) (bool, error) {
	if l.onAcquire != nil {
		l.onAcquire()
	}
	if l.err != nil {
		return false, l.err
	}
	if l.ok {
		l.acquired.Add(1)
	}
	return l.ok, nil
}

func (l *fakeLimiter) Release(context.Context) error {
	l.released.Add(1)
	return nil
}

type recordingObserver struct {
	mu     sync.Mutex
	events []Event
}

func (o *recordingObserver) Observe(ev Event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, ev)
}

func (o *recordingObserver) types() []EventType {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]EventType, 0, len(o.events))
	for _, e := range o.events {
		out = append(out, e.Type)
	}
	return out
}

func (o *recordingObserver) last(t EventType) (Event, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i := len(o.events) - 1; i >= 0; i-- {
		if o.events[i].Type == t {
			return o.events[i], true
		}
	}
	return Event{}, false
}

var errSignalling = errors.New("signalling failure")
