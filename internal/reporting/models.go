package reporting

import "time"

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// CallsSummaryRequest requests aggregated journal metrics for calls created in Range.
// Direction optionally narrows to "outgoing" or "incoming".
type CallsSummaryRequest struct {
	Range     TimeRange `json:"range"`
	Direction string    `json:"direction,omitempty"`
}

type CallsSummary struct {
	Range     TimeRange `json:"range"`
	Direction string    `json:"direction,omitempty"`

	TotalCalls     int `json:"total_calls"`
	OutgoingCalls  int `json:"outgoing_calls"`
	IncomingCalls  int `json:"incoming_calls"`
	ConnectedCalls int `json:"connected_calls"`

	CompletedCalls  int `json:"completed_calls"`
	FailedCalls     int `json:"failed_calls"`
	CanceledCalls   int `json:"canceled_calls"`
	InProgressCalls int `json:"in_progress_calls"`
	PendingCalls    int `json:"pending_calls"`

	TotalDurationSeconds   int `json:"total_duration_seconds"`
	AverageDurationSeconds int `json:"average_duration_seconds"`

	// ConnectionRate is ConnectedCalls over TotalCalls.
	ConnectionRate float64 `json:"connection_rate"`
}
