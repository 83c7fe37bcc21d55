package models

import "time"

// ResultStatus is the outcome of one adapter invocation
type ResultStatus string

const (
	ResultSuccess ResultStatus = "success"
	ResultFailure ResultStatus = "failure"
	ResultWarning ResultStatus = "warning"
)

// ServiceResult represents the outcome of one service run.
// It is produced exactly once per adapter invocation and never mutated afterwards.
type ServiceResult struct {
	ServiceID string           `json:"service_id" yaml:"service_id"`
	Status    ResultStatus     `json:"status" yaml:"status"`
	Findings  []ServiceFinding `json:"findings" yaml:"findings"`
	Duration  time.Duration    `json:"duration_ns" yaml:"duration"`
	Output    string           `json:"output,omitempty" yaml:"output,omitempty"`
	StartedAt time.Time        `json:"started_at" yaml:"started_at"`
	EndedAt   time.Time        `json:"ended_at" yaml:"ended_at"`
}

// Clone returns a deep copy of the result
func (r ServiceResult) Clone() ServiceResult {
	out := r
	if r.Findings != nil {
		out.Findings = make([]ServiceFinding, len(r.Findings))
		copy(out.Findings, r.Findings)
	}
	return out
}

// FailureResult builds a failure result carrying one critical diagnostic finding
func FailureResult(serviceID string, startedAt time.Time, message string) ServiceResult {
	now := time.Now()
	return ServiceResult{
		ServiceID: serviceID,
		Status:    ResultFailure,
		Findings:  []ServiceFinding{NewFinding(SeverityCritical, message)},
		Duration:  now.Sub(startedAt),
		StartedAt: startedAt,
		EndedAt:   now,
	}
}
