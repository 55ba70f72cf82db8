package bridge

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrNoCredential means no usable access token was available for a connect attempt.
	ErrNoCredential = errors.New("bridge: no access token available")
	// ErrNoActiveCall is returned by user controls when there is nothing to act on.
	ErrNoActiveCall = errors.New("bridge: no active call")
	// ErrCallActive enforces the single call group.
	ErrCallActive = errors.New("bridge: another call is active")
	// ErrCallGroupBusy means the shared call-group cap rejected a new call.
	ErrCallGroupBusy = errors.New("bridge: call group limit reached")
	// ErrReservationLost means the new call was ended before its call-group slot was taken.
	ErrReservationLost = errors.New("bridge: call ended while reserving")
)

// NativeRequestError reports that the platform refused a request.
// It is scoped to one operation and never changes bridge state beyond releasing a reservation.
type NativeRequestError struct {
	Op     string
	CallID uuid.UUID
	Err    error
}

func (e *NativeRequestError) Error() string {
	return fmt.Sprintf("bridge: native %s request for %s failed: %v", e.Op, e.CallID, e.Err)
}

func (e *NativeRequestError) Unwrap() error { return e.Err }
