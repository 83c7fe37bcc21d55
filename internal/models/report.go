package models

import "time"

// HostInfo is the read-only machine context attached to reports
type HostInfo struct {
	Hostname        string `json:"hostname"`
	OS              string `json:"os"`
	Platform        string `json:"platform"`
	PlatformVersion string `json:"platform_version"`
	KernelArch      string `json:"kernel_arch"`
	CPUModel        string `json:"cpu_model,omitempty"`
}

// MachineContext describes the machine a report was produced on
type MachineContext struct {
	Host        HostInfo      `json:"host"`
	Fingerprint PcFingerprint `json:"fingerprint"`
}

// ServiceReport represents a finalized, persisted snapshot of a run
type ServiceReport struct {
	ID           string          `json:"id"`
	Run          ServiceRunState `json:"run"`
	Machine      MachineContext  `json:"machine"`
	IncludesLogs bool            `json:"includes_logs"`
	CreatedAt    time.Time       `json:"created_at"`
}

// ReportSummary is a listing entry for persisted reports
type ReportSummary struct {
	ID        string    `json:"id"`
	RunID     string    `json:"run_id"`
	PresetID  string    `json:"preset_id,omitempty"`
	Status    RunStatus `json:"status"`
	Services  int       `json:"services"`
	CreatedAt time.Time `json:"created_at"`
	Location  string    `json:"location"`
}
