package services

import (
	"autoservice/internal/models"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shirou/gopsutil/v3/disk"
)

// criticalDiskPercent is the usage at which a volume is reported as critical
const criticalDiskPercent = 98.0

// DiskSpaceCheck reports usage of every physical partition, in process
func DiskSpaceCheck(ctx context.Context, opts models.OptionValues, progress ProgressFunc) models.ServiceResult {
	started := time.Now()
	warnAt := float64(opts.Int("warn_percent"))

	partitions, err := disk.PartitionsWithContext(ctx, false)
	if err != nil {
		return models.FailureResult("disk_space", started, fmt.Sprintf("listing partitions: %v", err))
	}

	status := models.ResultSuccess
	var findings []models.ServiceFinding
	for i, p := range partitions {
		if ctx.Err() != nil {
			return models.FailureResult("disk_space", started, "cancelled")
		}
		usage, err := disk.UsageWithContext(ctx, p.Mountpoint)
		if err != nil {
			slog.DebugContext(ctx, "disk usage", "mountpoint", p.Mountpoint, "error", err)
			continue
		}
		if usage.Total == 0 {
			continue
		}
		detail := map[string]any{
			"mountpoint":    p.Mountpoint,
			"filesystem":    usage.Fstype,
			"total_gb":      float64(usage.Total) / GB,
			"free_gb":       float64(usage.Free) / GB,
			"usage_percent": usage.UsedPercent,
		}
		finding := models.ServiceFinding{
			Severity: models.SeverityInfo,
			Message:  fmt.Sprintf("%s: %.1f%% used, %.1f GB free", p.Mountpoint, usage.UsedPercent, float64(usage.Free)/GB),
			Detail:   detail,
		}
		switch {
		case usage.UsedPercent >= criticalDiskPercent:
			finding.Severity = models.SeverityCritical
			status = models.ResultWarning
		case usage.UsedPercent >= warnAt:
			finding.Severity = models.SeverityWarning
			status = models.ResultWarning
		}
		findings = append(findings, finding)

		pct := float64(i+1) * 100 / float64(len(partitions))
		progress(models.ProgressUpdate{Line: finding.Message, Percent: &pct})
	}
	if len(findings) == 0 {
		return models.FailureResult("disk_space", started, "no volumes with usage information")
	}

	ended := time.Now()
	return models.ServiceResult{
		ServiceID: "disk_space",
		Status:    status,
		Findings:  findings,
		Duration:  ended.Sub(started),
		StartedAt: started,
		EndedAt:   ended,
	}
}
