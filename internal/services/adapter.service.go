package services

import (
	"autoservice/internal/models"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"time"
)

// ProgressFunc receives adapter progress. Calls must not block.
type ProgressFunc func(models.ProgressUpdate)

// Adapter is the uniform contract every tool wrapper implements.
// Run always returns a result; internal failures become a Failure result
// with a diagnostic finding.
type Adapter interface {
	Run(ctx context.Context, opts models.OptionValues, progress ProgressFunc) models.ServiceResult
	Requirements() []string
}

// ProgressParser extracts a completion percentage from one output line
type ProgressParser func(line string) (float64, bool)

// OutputParser maps the full output of a tool to a status and findings.
// An empty status lets ExecAdapter decide from the exit code.
type OutputParser func(output string, exitCode int, opts models.OptionValues) (models.ResultStatus, []models.ServiceFinding)

// ExecAdapter wraps an external command-line tool
type ExecAdapter struct {
	ServiceID string
	Program   string
	Locator   ProgramResolver
	Args      func(opts models.OptionValues) ([]string, error)
	// Progress is called once per run to build a line parser
	Progress func(opts models.OptionValues) ProgressParser
	Parse    OutputParser
	Timeout  time.Duration
	// TimeoutFor overrides Timeout when the limit depends on options
	TimeoutFor func(opts models.OptionValues) time.Duration
}

func (a *ExecAdapter) Requirements() []string {
	return []string{a.Program}
}

func (a *ExecAdapter) Run(ctx context.Context, opts models.OptionValues, progress ProgressFunc) models.ServiceResult {
	started := time.Now()
	if progress == nil {
		progress = func(models.ProgressUpdate) {}
	}

	path, err := a.Locator.Resolve(a.Program)
	if err != nil {
		return models.FailureResult(a.ServiceID, started, err.Error())
	}
	var args []string
	if a.Args != nil {
		args, err = a.Args(opts)
		if err != nil {
			return models.FailureResult(a.ServiceID, started, err.Error())
		}
	}
	timeout := a.Timeout
	if a.TimeoutFor != nil {
		timeout = a.TimeoutFor(opts)
	}

	var parsePercent ProgressParser
	if a.Progress != nil {
		parsePercent = a.Progress(opts)
	}
	onLine := func(line string) {
		update := models.ProgressUpdate{Line: line}
		if parsePercent != nil {
			if pct, ok := parsePercent(line); ok {
				update.Percent = &pct
			}
		}
		progress(update)
	}

	proc := RunProcess(ctx, Command{Path: path, Args: args, Timeout: timeout}, onLine)
	result := models.ServiceResult{
		ServiceID: a.ServiceID,
		Output:    proc.Output,
		StartedAt: started,
		EndedAt:   time.Now(),
	}
	result.Duration = result.EndedAt.Sub(started)

	var execErr *exec.Error
	switch {
	case errors.As(proc.Err, &execErr):
		return failWith(result, fmt.Sprintf("cannot start %s: %v", path, execErr.Err))
	case proc.TimedOut:
		return failWith(result, fmt.Sprintf("timed out after %s", timeout))
	case proc.Cancelled:
		return failWith(result, "cancelled")
	case proc.ExitCode < 0 && proc.Err != nil:
		return failWith(result, fmt.Sprintf("%s: %v", a.ServiceID, proc.Err))
	}

	var status models.ResultStatus
	var findings []models.ServiceFinding
	if a.Parse != nil {
		status, findings = a.Parse(proc.Output, proc.ExitCode, opts)
	}
	if status == "" {
		if proc.ExitCode == 0 {
			status = models.ResultSuccess
		} else {
			status = models.ResultFailure
		}
	}
	if status == models.ResultFailure && len(findings) == 0 {
		findings = append(findings, models.NewFinding(models.SeverityCritical,
			"exited with code "+strconv.Itoa(proc.ExitCode)))
	}
	if proc.Truncated {
		findings = append(findings, models.NewFinding(models.SeverityInfo, "output truncated to the last "+
			strconv.Itoa(maxOutputBytes/1024)+" KiB"))
	}
	result.Status = status
	result.Findings = findings
	return result
}

func failWith(result models.ServiceResult, message string) models.ServiceResult {
	result.Status = models.ResultFailure
	result.Findings = []models.ServiceFinding{models.NewFinding(models.SeverityCritical, message)}
	return result
}

// AdapterFunc adapts an in-process check to the Adapter contract
type AdapterFunc func(ctx context.Context, opts models.OptionValues, progress ProgressFunc) models.ServiceResult

func (f AdapterFunc) Run(ctx context.Context, opts models.OptionValues, progress ProgressFunc) models.ServiceResult {
	if progress == nil {
		progress = func(models.ProgressUpdate) {}
	}
	return f(ctx, opts, progress)
}

func (AdapterFunc) Requirements() []string { return nil }
