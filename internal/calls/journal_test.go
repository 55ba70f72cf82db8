package calls

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voice-bridge/internal/audit"
	"voice-bridge/internal/bridge"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestJournalRecordsLifecycle(t *testing.T) {
	repo := NewMemoryRepo()
	events := audit.NewMemoryRepo()
	j := NewJournal(repo, audit.NewService(events), quietLogger(), 16)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		j.Run(ctx)
		close(done)
	}()

	id := uuid.New()
	now := time.Now()
	for i, typ := range []bridge.EventType{bridge.EventCallStarted, bridge.EventCallRequested, bridge.EventCallConnected} {
		j.Observe(bridge.Event{Type: typ, CallID: id, Direction: bridge.DirectionOutgoing, Destination: "+1555", At: now.Add(time.Duration(i) * time.Millisecond)})
	}
	j.Observe(bridge.Event{Type: bridge.EventCallEnded, CallID: id, Direction: bridge.DirectionOutgoing, Reason: "remote_ended", Err: errors.New("bye"), At: now.Add(time.Second)})

	require.Eventually(t, func() bool {
		c, err := j.Get(context.Background(), id)
		return err == nil && c.Status == CallStatusCompleted
	}, time.Second, 5*time.Millisecond)

	c, err := j.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "remote_ended", c.EndReason)
	assert.Equal(t, "+1555", c.Remote)
	require.NotNil(t, c.ConnectedAt)

	timeline, err := j.Timeline(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, timeline, 4)
	assert.Equal(t, audit.EventTypeEnded, timeline[3].Type)
	assert.Equal(t, "bye", timeline[3].Message)

	recent, err := j.Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, recent, 1)

	cancel()
	<-done
}

func TestJournalDropsWhenFull(t *testing.T) {
	j := NewJournal(NewMemoryRepo(), nil, quietLogger(), 1)
	id := uuid.New()

	j.Observe(bridge.Event{Type: bridge.EventCallRequested, CallID: id, At: time.Now()})
	j.Observe(bridge.Event{Type: bridge.EventCallStarted, CallID: id, At: time.Now()})
	assert.Equal(t, int64(1), j.Dropped())
}

func TestJournalDrainsOnShutdown(t *testing.T) {
	repo := NewMemoryRepo()
	j := NewJournal(repo, nil, quietLogger(), 4)
	id := uuid.New()
	j.Observe(bridge.Event{Type: bridge.EventCallRequested, CallID: id, Direction: bridge.DirectionIncoming, At: time.Now()})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	j.Run(ctx)

	c, err := repo.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, CallStatusRinging, c.Status)
}

func TestJournalIgnoresAnonymousEvents(t *testing.T) {
	repo := NewMemoryRepo()
	j := NewJournal(repo, nil, quietLogger(), 4)
	j.record(context.Background(), bridge.Event{Type: bridge.EventRequestFailed})

	recent, err := repo.Recent(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, recent)
}

func TestMemoryRepoRecentOrder(t *testing.T) {
	repo := NewMemoryRepo()
	base := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, repo.Save(context.Background(), Call{CallID: uuid.New(), CreatedAt: base.Add(time.Duration(i) * time.Minute)}))
	}

	out, err := repo.Recent(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.True(t, out[0].CreatedAt.After(out[1].CreatedAt))

	_, err = repo.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}
