package domain

// EventType tags progress-stream events.
type EventType string

const (
	EventProgress EventType = "progress"
	EventComplete EventType = "complete"
	EventError    EventType = "error"
)

// Progress is a point-in-time throughput snapshot pushed to subscribers.
type Progress struct {
	JobID         string  `json:"taskId"`
	Processed     int     `json:"processed"`
	Total         int     `json:"total"`
	Speed         int     `json:"speed"`
	RemainingTime float64 `json:"remainingTime"`
}

// Summary is the terminal event payload carrying final statistics, the
// accepted items, and a bounded sample of rejections.
type Summary struct {
	JobID          string               `json:"taskId"`
	Stats          Stats                `json:"stats"`
	Accepted       []VerificationResult `json:"accepted"`
	RejectedCount  int                  `json:"rejectedCount"`
	RejectedSample []VerificationResult `json:"rejectedSample"`
	ProcessingTime string               `json:"processingTime"`
}

// Event is one message on a job's progress stream.
type Event struct {
	Type     EventType `json:"type"`
	Progress *Progress `json:"progress,omitempty"`
	Summary  *Summary  `json:"summary,omitempty"`
	Message  string    `json:"message,omitempty"`
}
