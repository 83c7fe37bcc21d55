package models

// FeatureNames is the order of PcFingerprint.Vector
var FeatureNames = []string{
	"cpu_cores",
	"cpu_threads",
	"cpu_mhz",
	"ram_gb",
	"disk_ssd",
	"gpu_present",
}

// PcFingerprint represents the numeric hardware features of a machine
type PcFingerprint struct {
	CPUCores   float64 `json:"cpu_cores"`
	CPUThreads float64 `json:"cpu_threads"`
	CPUMHz     float64 `json:"cpu_mhz"`
	RAMGB      float64 `json:"ram_gb"`
	DiskSSD    float64 `json:"disk_ssd"`
	GPUPresent float64 `json:"gpu_present"`
}

// Vector returns the features in FeatureNames order
func (f PcFingerprint) Vector() []float64 {
	return []float64{f.CPUCores, f.CPUThreads, f.CPUMHz, f.RAMGB, f.DiskSSD, f.GPUPresent}
}
