package models

import "time"

// EventType names a progress stream message
type EventType string

const (
	EventProgress         EventType = "progress"
	EventServiceStarted   EventType = "service_started"
	EventServiceCompleted EventType = "service_completed"
	EventStatusChanged    EventType = "status_changed"
)

// ProgressUpdate is what an adapter reports while running
type ProgressUpdate struct {
	Line    string          `json:"line,omitempty"`
	Percent *float64        `json:"percent,omitempty"`
	Finding *ServiceFinding `json:"finding,omitempty"`
}

// Event is one message on the progress stream
type Event struct {
	Type      EventType       `json:"type"`
	RunID     string          `json:"run_id,omitempty"`
	ServiceID string          `json:"service_id,omitempty"`
	Progress  *ProgressUpdate `json:"progress,omitempty"`
	Result    *ServiceResult  `json:"result,omitempty"`
	Status    RunStatus       `json:"status,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}
