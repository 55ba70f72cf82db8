package loopback_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voice-bridge/internal/bridge"
	"voice-bridge/internal/telephony"
	"voice-bridge/internal/telephony/loopback"
)

type staticToken string

func (s staticToken) AccessToken() (string, error) { return string(s), nil }

type rig struct {
	b      *bridge.Bridge
	voice  *loopback.Voice
	native *loopback.Native
	audio  *loopback.Audio
	router *loopback.Router
}

func newRig(t *testing.T) *rig {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := &rig{
		voice:  loopback.NewVoice(loopback.VoiceConfig{RingDelay: 5 * time.Millisecond, AnswerDelay: 10 * time.Millisecond}, log),
		native: loopback.NewNative(loopback.NativeConfig{ActionTimeout: time.Second}, log),
		audio:  &loopback.Audio{},
		router: &loopback.Router{},
	}
	b, err := bridge.New(bridge.Options{
		Voice:            r.voice,
		Provider:         r.native,
		Controller:       r.native,
		Audio:            r.audio,
		Router:           r.router,
		Credentials:      staticToken("token"),
		Metrics:          bridge.NewMetrics(prometheus.NewRegistry()),
		Logger:           log,
		SpeakerOnConnect: true,
	})
	require.NoError(t, err)
	r.native.SetDelegate(b)
	r.b = b
	return r
}

func (r *rig) phase() bridge.Phase { return r.b.Snapshot().Phase }

func (r *rig) nativeStatus(id uuid.UUID) loopback.NativeStatus {
	c, _ := r.native.Call(id)
	return c.Status
}

func TestOutgoingCallRemoteHangup(t *testing.T) {
	r := newRig(t)

	id, err := r.b.StartCall(context.Background(), "+15551234567")
	require.NoError(t, err)

	require.Eventually(t, func() bool { return r.phase() == bridge.PhaseConnected }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return r.nativeStatus(id) == loopback.NativeActive }, time.Second, 5*time.Millisecond)
	require.Eventually(t, r.audio.Enabled, time.Second, 5*time.Millisecond)
	assert.True(t, r.router.Speaker())

	require.NoError(t, r.voice.HangupRemote(id, nil))
	require.Eventually(t, func() bool { return r.phase() == bridge.PhaseIdle }, time.Second, 5*time.Millisecond)

	c, ok := r.native.Call(id)
	require.True(t, ok)
	assert.Equal(t, loopback.NativeEnded, c.Status)
	assert.Equal(t, telephony.EndReasonRemoteEnded, c.EndReason)
	assert.False(t, c.EndedByUser)
}

func TestOutgoingCallUserHangup(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()

	id, err := r.b.StartCall(ctx, "client:bob")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return r.phase() == bridge.PhaseConnected }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, r.b.SetMuted(ctx, true))
	require.Eventually(t, func() bool { return r.b.Snapshot().Muted }, time.Second, 5*time.Millisecond)

	require.NoError(t, r.b.EndCall(ctx))
	require.Eventually(t, func() bool { return r.phase() == bridge.PhaseIdle }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return r.nativeStatus(id) == loopback.NativeEnded }, time.Second, 5*time.Millisecond)

	c, _ := r.native.Call(id)
	assert.True(t, c.EndedByUser)
	assert.Empty(t, c.EndReason, "a user hangup is not reported back as an end")
	assert.Empty(t, r.voice.Active())
}

func TestOutgoingCallFailsToConnect(t *testing.T) {
	r := newRig(t)
	r.voice.Block("+1999")

	id, err := r.b.StartCall(context.Background(), "+1999")
	require.NoError(t, err)

	require.Eventually(t, func() bool { return r.nativeStatus(id) == loopback.NativeEnded }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return r.b.Snapshot().CallID == uuid.Nil }, time.Second, 5*time.Millisecond)

	c, _ := r.native.Call(id)
	assert.Equal(t, telephony.EndReasonFailed, c.EndReason)

	// The bridge is free for the next call.
	_, err = r.b.StartCall(context.Background(), "+1555")
	require.NoError(t, err)
}

func TestIncomingCallDeclined(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()

	id, err := r.b.ReportIncomingCall(ctx, "client:carol")
	require.NoError(t, err)
	assert.Equal(t, loopback.NativeRinging, r.nativeStatus(id))

	require.NoError(t, r.b.EndCall(ctx))
	require.Eventually(t, func() bool { return r.nativeStatus(id) == loopback.NativeEnded }, time.Second, 5*time.Millisecond)
	assert.Equal(t, uuid.Nil, r.b.Snapshot().CallID)
}
