package bridge

import (
	"sync/atomic"

	"github.com/google/uuid"
)

// startCompletion is the one-shot outcome of a native start action.
// resolve runs fn at most once no matter how many terminal events race for it.
type startCompletion struct {
	callID   uuid.UUID
	resolved atomic.Bool
	fn       func(ok bool)
}

func newStartCompletion(callID uuid.UUID, fn func(ok bool)) *startCompletion {
	return &startCompletion{callID: callID, fn: fn}
}

func (c *startCompletion) resolve(ok bool) bool {
	if !c.resolved.CompareAndSwap(false, true) {
		return false
	}
	c.fn(ok)
	return true
}
