package reporting

import (
	"context"
	"errors"
	"time"

	"voice-bridge/internal/bridge"
	"voice-bridge/internal/calls"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// MaxRange bounds a single summary query.
const MaxRange = 31 * 24 * time.Hour

// Repository abstracts journal reads for reporting.
// Both calls.MemoryRepo and calls.PostgresRepo satisfy it.
type Repository interface {
	Between(ctx context.Context, from, to time.Time) ([]calls.Call, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

func (s *Service) CallsSummary(ctx context.Context, req CallsSummaryRequest) (CallsSummary, error) {
	if req.Range.From.IsZero() || req.Range.To.IsZero() || !req.Range.To.After(req.Range.From) {
		return CallsSummary{}, ErrInvalidRequest
	}
	if req.Range.To.Sub(req.Range.From) > MaxRange {
		return CallsSummary{}, ErrInvalidRequest
	}
	switch bridge.Direction(req.Direction) {
	case "", bridge.DirectionOutgoing, bridge.DirectionIncoming:
	default:
		return CallsSummary{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return CallsSummary{}, errors.New("reporting: repository not configured")
	}

	rows, err := s.repo.Between(ctx, req.Range.From, req.Range.To)
	if err != nil {
		return CallsSummary{}, err
	}

	out := CallsSummary{Range: req.Range, Direction: req.Direction}
	timed := 0
	for _, c := range rows {
		if req.Direction != "" && c.Direction != req.Direction {
			continue
		}
		out.TotalCalls++
		switch bridge.Direction(c.Direction) {
		case bridge.DirectionOutgoing:
			out.OutgoingCalls++
		case bridge.DirectionIncoming:
			out.IncomingCalls++
		}
		if c.ConnectedAt != nil {
			out.ConnectedCalls++
			if c.EndedAt != nil {
				timed++
				out.TotalDurationSeconds += c.DurationSeconds()
			}
		}
		switch c.Status {
		case calls.CallStatusCompleted:
			out.CompletedCalls++
		case calls.CallStatusFailed:
			out.FailedCalls++
		case calls.CallStatusCanceled:
			out.CanceledCalls++
		case calls.CallStatusInProgress, calls.CallStatusReconnecting:
			out.InProgressCalls++
		case calls.CallStatusRequested, calls.CallStatusConnecting, calls.CallStatusRinging:
			out.PendingCalls++
		}
	}
	if timed > 0 {
		out.AverageDurationSeconds = out.TotalDurationSeconds / timed
	}
	if out.TotalCalls > 0 {
		out.ConnectionRate = float64(out.ConnectedCalls) / float64(out.TotalCalls)
	}
	return out, nil
}
