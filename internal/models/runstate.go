package models

import "time"

// RunStatus is the state of the run state machine
type RunStatus string

const (
	RunIdle      RunStatus = "idle"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunCancelled RunStatus = "cancelled"
	RunFailed    RunStatus = "failed"
)

// Terminal reports whether the status ends a run
func (s RunStatus) Terminal() bool {
	return s == RunCompleted || s == RunCancelled || s == RunFailed
}

// ServiceRunState is the single mutable record of the active run
type ServiceRunState struct {
	RunID           string          `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	PresetID        string          `json:"preset_id,omitempty" yaml:"preset_id,omitempty"`
	Status          RunStatus       `json:"status" yaml:"status"`
	Queue           []PlanItem      `json:"queue" yaml:"queue"`
	Current         string          `json:"current,omitempty" yaml:"current,omitempty"`
	Completed       []ServiceResult `json:"completed" yaml:"completed"`
	CancelRequested bool            `json:"cancel_requested,omitempty" yaml:"cancel_requested,omitempty"`
	StartedAt       time.Time       `json:"started_at,omitempty" yaml:"started_at,omitempty"`
	EndedAt         time.Time       `json:"ended_at,omitempty" yaml:"ended_at,omitempty"`
}

// Clone returns a deep copy safe to hand out to readers
func (s ServiceRunState) Clone() ServiceRunState {
	out := s
	out.Queue = make([]PlanItem, len(s.Queue))
	for i, item := range s.Queue {
		out.Queue[i] = PlanItem{ServiceID: item.ServiceID, Options: item.Options.Clone()}
	}
	out.Completed = make([]ServiceResult, len(s.Completed))
	for i, r := range s.Completed {
		out.Completed[i] = r.Clone()
	}
	return out
}
