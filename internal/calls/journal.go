package calls

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"voice-bridge/internal/audit"
	"voice-bridge/internal/bridge"
)

const (
	defaultJournalBuffer = 64
	drainTimeout         = 2 * time.Second
)

// Journal records bridge lifecycle events off the call path.
//
// Observe never blocks: events are queued and written by Run. When the queue
// is full the event is dropped and counted.
type Journal struct {
	repo  Repository
	audit *audit.Service
	log   *slog.Logger

	events  chan bridge.Event
	dropped atomic.Int64

	mu   sync.Mutex
	open map[uuid.UUID]Call
}

func NewJournal(repo Repository, auditSvc *audit.Service, log *slog.Logger, buffer int) *Journal {
	if buffer <= 0 {
		buffer = defaultJournalBuffer
	}
	if log == nil {
		log = slog.Default()
	}
	return &Journal{
		repo:   repo,
		audit:  auditSvc,
		log:    log.With("component", "journal"),
		events: make(chan bridge.Event, buffer),
		open:   make(map[uuid.UUID]Call),
	}
}

func (j *Journal) Observe(ev bridge.Event) {
	select {
	case j.events <- ev:
	default:
		j.dropped.Add(1)
		j.log.Warn("journal queue full, event dropped", "type", ev.Type, "call_id", ev.CallID)
	}
}

// Dropped is the number of events lost to a full queue.
func (j *Journal) Dropped() int64 { return j.dropped.Load() }

// Run writes queued events until ctx ends, then drains what is left.
func (j *Journal) Run(ctx context.Context) {
	for {
		select {
		case ev := <-j.events:
			j.record(ctx, ev)
		case <-ctx.Done():
			j.drain()
			return
		}
	}
}

func (j *Journal) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	for {
		select {
		case ev := <-j.events:
			j.record(ctx, ev)
		default:
			return
		}
	}
}

func (j *Journal) record(ctx context.Context, ev bridge.Event) {
	if ev.CallID == uuid.Nil {
		return
	}
	log := j.log.With("call_id", ev.CallID, "type", ev.Type)

	j.mu.Lock()
	prev, ok := j.open[ev.CallID]
	j.mu.Unlock()
	if !ok {
		if stored, err := j.repo.Get(ctx, ev.CallID); err == nil {
			prev = stored
		}
	}

	next := Apply(prev, ev)

	j.mu.Lock()
	if next.Status.Terminal() {
		delete(j.open, ev.CallID)
	} else {
		j.open[ev.CallID] = next
	}
	j.mu.Unlock()

	if next != prev {
		if err := j.repo.Save(ctx, next); err != nil {
			log.Error("journal save failed", "err", err)
		}
	}

	if j.audit == nil {
		return
	}
	ae := audit.Event{
		CallID:    ev.CallID,
		Type:      audit.EventType(ev.Type),
		Direction: string(ev.Direction),
		Remote:    ev.Destination,
		Reason:    ev.Reason,
		CreatedAt: ev.At,
	}
	if ev.Err != nil {
		ae.Message = ev.Err.Error()
	}
	if err := j.audit.Append(ctx, ae); err != nil {
		log.Warn("audit append failed", "err", err)
	}
}

// Recent lists journal records, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Call, error) {
	return j.repo.Recent(ctx, limit)
}

func (j *Journal) Get(ctx context.Context, id uuid.UUID) (Call, error) {
	return j.repo.Get(ctx, id)
}

// Timeline returns the audit events of one call.
func (j *Journal) Timeline(ctx context.Context, id uuid.UUID) ([]audit.Event, error) {
	if j.audit == nil {
		return nil, nil
	}
	return j.audit.Timeline(ctx, id)
}

var _ bridge.Observer = (*Journal)(nil)
