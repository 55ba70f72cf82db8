package telephony

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

type ActionKind string

const (
	ActionStartCall ActionKind = "start_call"
	ActionEndCall   ActionKind = "end_call"
	ActionSetHeld   ActionKind = "set_held"
	ActionSetMuted  ActionKind = "set_muted"
)

type ActionResult string

const (
	ActionFulfilled ActionResult = "fulfilled"
	ActionFailed    ActionResult = "failed"
)

// Action is a native imperative request that must be resolved exactly once.
//
// Fulfill and Fail are safe to call from any goroutine; only the first call counts.
type Action struct {
	ID     uuid.UUID
	Kind   ActionKind
	CallID uuid.UUID

	// Handle is the dialed destination for start_call.
	Handle Handle
	// OnHold is the requested state for set_held.
	OnHold bool
	// Muted is the requested state for set_muted.
	Muted bool

	resolved atomic.Bool
	done     chan ActionResult
}

func newAction(kind ActionKind, callID uuid.UUID) *Action {
	return &Action{
		ID:     uuid.New(),
		Kind:   kind,
		CallID: callID,
		done:   make(chan ActionResult, 1),
	}
}

func NewStartCallAction(callID uuid.UUID, handle Handle) *Action {
	a := newAction(ActionStartCall, callID)
	a.Handle = handle
	return a
}

func NewEndCallAction(callID uuid.UUID) *Action {
	return newAction(ActionEndCall, callID)
}

func NewSetHeldAction(callID uuid.UUID, onHold bool) *Action {
	a := newAction(ActionSetHeld, callID)
	a.OnHold = onHold
	return a
}

func NewSetMutedAction(callID uuid.UUID, muted bool) *Action {
	a := newAction(ActionSetMuted, callID)
	a.Muted = muted
	return a
}

// Fulfill reports success. It returns false if the action was already resolved.
func (a *Action) Fulfill() bool { return a.resolve(ActionFulfilled) }

// Fail reports failure. It returns false if the action was already resolved.
func (a *Action) Fail() bool { return a.resolve(ActionFailed) }

func (a *Action) resolve(r ActionResult) bool {
	if !a.resolved.CompareAndSwap(false, true) {
		return false
	}
	// Actions built without a constructor have no result channel.
	if a.done != nil {
		a.done <- r
		close(a.done)
	}
	return true
}

// Resolved reports whether Fulfill or Fail has been called.
func (a *Action) Resolved() bool { return a.resolved.Load() }

// Done yields the result once, then is closed.
func (a *Action) Done() <-chan ActionResult { return a.done }

// Wait blocks until the action is resolved or ctx ends.
func (a *Action) Wait(ctx context.Context) (ActionResult, error) {
	select {
	case r, ok := <-a.done:
		if !ok {
			return "", fmt.Errorf("telephony: action %s result already consumed", a.ID)
		}
		return r, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (a *Action) String() string {
	return fmt.Sprintf("%s(%s)", a.Kind, a.CallID)
}
