package calls

import (
	"time"

	"github.com/google/uuid"
)

// Call is the journal record for one call identity.
//
// NOTE: This is a history model only. The bridge owns live call state; a
// record is written after the fact and never read back into the bridge.
type Call struct {
	CallID    uuid.UUID `json:"call_id" db:"call_id"`
	Direction string    `json:"direction" db:"direction"`

	// Remote is the dialed destination for outgoing calls and the caller for incoming ones.
	Remote string `json:"remote" db:"remote"`

	Status    CallStatus `json:"status" db:"status"`
	EndReason string     `json:"end_reason,omitempty" db:"end_reason"`

	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	ConnectedAt *time.Time `json:"connected_at,omitempty" db:"connected_at"`
	EndedAt     *time.Time `json:"ended_at,omitempty" db:"ended_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// DurationSeconds is the connected talk time, zero if the call never connected.
func (c Call) DurationSeconds() int {
	if c.ConnectedAt == nil || c.EndedAt == nil {
		return 0
	}
	return int(c.EndedAt.Sub(*c.ConnectedAt).Seconds())
}

type CallStatus string

const (
	CallStatusRequested    CallStatus = "requested"
	CallStatusConnecting   CallStatus = "connecting"
	CallStatusRinging      CallStatus = "ringing"
	CallStatusInProgress   CallStatus = "in_progress"
	CallStatusReconnecting CallStatus = "reconnecting"
	CallStatusCompleted    CallStatus = "completed"
	CallStatusFailed       CallStatus = "failed"
	CallStatusCanceled     CallStatus = "canceled"
)

// Terminal reports whether no further transitions are expected.
func (s CallStatus) Terminal() bool {
	switch s {
	case CallStatusCompleted, CallStatusFailed, CallStatusCanceled:
		return true
	default:
		return false
	}
}
