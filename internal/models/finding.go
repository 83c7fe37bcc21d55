package models

// Severity classifies a single finding. The order is used for display only.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
	SeveritySuccess  Severity = "success"
)

// ServiceFinding represents one reported observation produced by a service run
type ServiceFinding struct {
	Severity Severity       `json:"severity" yaml:"severity"`
	Message  string         `json:"message" yaml:"message"`
	Detail   map[string]any `json:"detail,omitempty" yaml:"detail,omitempty"`
}

// NewFinding builds a finding without structured detail
func NewFinding(severity Severity, message string) ServiceFinding {
	return ServiceFinding{Severity: severity, Message: message}
}
