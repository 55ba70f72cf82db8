package audit

import (
	"time"

	"github.com/google/uuid"
)

// Event is an immutable, append-only record of one call lifecycle change.
//
// Invariants:
// - Events are never updated or deleted.
// - call_id is required; every event belongs to exactly one call identity.
// - audit failures are logged by callers and never block call handling.
//
// Storage (Postgres):
// - Table call_events with an INSERT-only policy.
// - Index on (call_id, created_at) for per-call timelines.
type Event struct {
	ID     string    `json:"id" db:"id"`
	CallID uuid.UUID `json:"call_id" db:"call_id"`

	Type EventType `json:"type" db:"type"`

	Direction string `json:"direction,omitempty" db:"direction"`
	Remote    string `json:"remote,omitempty" db:"remote"`

	// Reason is the end reason for terminal events.
	Reason string `json:"reason,omitempty" db:"reason"`
	// Message is a short human-readable description for ops; it carries error text.
	Message string `json:"message,omitempty" db:"message"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeRequested     EventType = "call_requested"
	EventTypeStarted       EventType = "call_started"
	EventTypeRinging       EventType = "call_ringing"
	EventTypeConnected     EventType = "call_connected"
	EventTypeReconnecting  EventType = "call_reconnecting"
	EventTypeReconnected   EventType = "call_reconnected"
	EventTypeFailed        EventType = "call_failed"
	EventTypeEnded         EventType = "call_ended"
	EventTypeRequestFailed EventType = "native_request_failed"
)
