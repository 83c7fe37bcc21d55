package services

import (
	"autoservice/internal/log"
	"autoservice/internal/models"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventPublisher accepts progress events without blocking
type EventPublisher interface {
	Publish(event models.Event)
}

// SampleRecorder receives the duration samples of a finished run
type SampleRecorder interface {
	RecordBatch(ctx context.Context, samples []models.ServiceTimeSample) error
}

// MachineInfo describes the machine runs execute on
type MachineInfo interface {
	Fingerprint(ctx context.Context) (models.PcFingerprint, error)
	Machine(ctx context.Context) (models.MachineContext, error)
}

// ReportSaver persists finished run reports
type ReportSaver interface {
	Save(ctx context.Context, report models.ServiceReport) (string, error)
}

// SettingsSource supplies the current user settings
type SettingsSource interface {
	Settings() models.Settings
}

// RunObserver is told about finished services and runs, for metrics
type RunObserver interface {
	ServiceFinished(result models.ServiceResult)
	RunFinished(state models.ServiceRunState)
}

// CoordinatorDeps are the collaborators of a Coordinator. Only Registry is required.
type CoordinatorDeps struct {
	Registry *Registry
	Events   EventPublisher
	Samples  SampleRecorder
	Machine  MachineInfo
	Reports  ReportSaver
	Settings SettingsSource
	Observer RunObserver
	History  *RunHistory
}

// Coordinator owns the single run state and executes plans one service at a time
type Coordinator struct {
	deps CoordinatorDeps

	mu     sync.Mutex
	state  models.ServiceRunState
	cancel context.CancelFunc
	done   chan struct{}
	now    func() time.Time
}

func NewCoordinator(deps CoordinatorDeps) *Coordinator {
	return &Coordinator{
		deps:  deps,
		state: idleState(),
		now:   time.Now,
	}
}

func idleState() models.ServiceRunState {
	return models.ServiceRunState{
		Status:    models.RunIdle,
		Queue:     []models.PlanItem{},
		Completed: []models.ServiceResult{},
	}
}

// Start replaces the run state with a fresh running state for plan and
// executes it in the background. It fails with ErrAlreadyRunning while a run
// is active, leaving that run untouched.
func (c *Coordinator) Start(ctx context.Context, plan models.RunPlan) (models.ServiceRunState, error) {
	if len(plan.Items) == 0 {
		return models.ServiceRunState{}, fmt.Errorf("%w: empty plan", ErrInvalidPreset)
	}
	for _, item := range plan.Items {
		if _, err := c.deps.Registry.AdapterFor(item.ServiceID); err != nil {
			return models.ServiceRunState{}, err
		}
	}

	c.mu.Lock()
	if c.state.Status == models.RunRunning {
		c.mu.Unlock()
		return models.ServiceRunState{}, ErrAlreadyRunning
	}

	queue := make([]models.PlanItem, len(plan.Items))
	for i, item := range plan.Items {
		queue[i] = models.PlanItem{ServiceID: item.ServiceID, Options: item.Options.Clone()}
	}
	runID := uuid.NewString()
	c.state = models.ServiceRunState{
		RunID:     runID,
		PresetID:  plan.PresetID,
		Status:    models.RunRunning,
		Queue:     queue,
		Completed: []models.ServiceResult{},
		StartedAt: c.now().UTC(),
	}
	runCtx, cancel := context.WithCancel(log.ContextAttrs(context.WithoutCancel(ctx), slog.String("run_id", runID)))
	done := make(chan struct{})
	c.cancel = cancel
	c.done = done
	snapshot := c.state.Clone()
	c.mu.Unlock()

	slog.InfoContext(runCtx, "run started", "preset_id", plan.PresetID, "services", len(queue))
	c.publish(models.Event{Type: models.EventStatusChanged, RunID: runID, Status: models.RunRunning})
	go c.execute(runCtx, cancel, done)
	return snapshot, nil
}

// Cancel stops the active run: the queue is drained, the in-flight adapter is
// told to stop and its result discarded. Results already completed are kept.
// It reports false when nothing is running.
func (c *Coordinator) Cancel() bool {
	c.mu.Lock()
	if c.state.Status != models.RunRunning {
		c.mu.Unlock()
		return false
	}
	c.state.CancelRequested = true
	c.state.Queue = []models.PlanItem{}
	cancel := c.cancel
	runID := c.state.RunID
	c.mu.Unlock()

	slog.Info("run cancellation requested", "run_id", runID)
	if cancel != nil {
		cancel()
	}
	return true
}

// CurrentState returns a snapshot of the run state
func (c *Coordinator) CurrentState() models.ServiceRunState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Clone()
}

// Reset moves a finished run back to idle
func (c *Coordinator) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Status == models.RunRunning {
		return ErrAlreadyRunning
	}
	c.state = idleState()
	return nil
}

// Wait blocks until the most recently started run has finished
func (c *Coordinator) Wait(ctx context.Context) error {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown cancels the active run, if any, and waits for it to wind down
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.Cancel()
	return c.Wait(ctx)
}

func (c *Coordinator) execute(ctx context.Context, cancel context.CancelFunc, done chan struct{}) {
	defer close(done)
	defer cancel()

	for {
		c.mu.Lock()
		if c.state.CancelRequested || len(c.state.Queue) == 0 {
			c.mu.Unlock()
			break
		}
		item := c.state.Queue[0]
		c.state.Queue = c.state.Queue[1:]
		c.state.Current = item.ServiceID
		runID := c.state.RunID
		c.mu.Unlock()

		c.publish(models.Event{Type: models.EventServiceStarted, RunID: runID, ServiceID: item.ServiceID})
		result := c.invoke(ctx, runID, item)

		c.mu.Lock()
		c.state.Current = ""
		if c.state.CancelRequested {
			c.mu.Unlock()
			slog.InfoContext(ctx, "discarding result of cancelled service", "service_id", item.ServiceID)
			break
		}
		c.state.Completed = append(c.state.Completed, result)
		c.mu.Unlock()

		if c.deps.Observer != nil {
			c.deps.Observer.ServiceFinished(result)
		}
		completed := result.Clone()
		c.publish(models.Event{Type: models.EventServiceCompleted, RunID: runID, ServiceID: item.ServiceID, Result: &completed})
	}
	c.finish(context.WithoutCancel(ctx))
}

// invoke runs one plan item. It always yields a result: missing programs,
// unknown adapters and adapter panics become Failure results.
func (c *Coordinator) invoke(ctx context.Context, runID string, item models.PlanItem) (result models.ServiceResult) {
	ctx = log.ContextAttrs(ctx, slog.String("service_id", item.ServiceID))
	started := c.now()
	slog.InfoContext(ctx, "service started")

	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "adapter panicked", "panic", r)
			result = models.FailureResult(item.ServiceID, started, fmt.Sprintf("%v: panic: %v", ErrAdapterFailure, r))
		}
		result = normalizeResult(result, item.ServiceID, started, c.now())
		slog.InfoContext(ctx, "service finished", "status", result.Status, "duration", result.Duration)
	}()

	if err := c.deps.Registry.CheckRequirements(item.ServiceID); err != nil {
		slog.WarnContext(ctx, "requirement missing", "error", err)
		res := models.FailureResult(item.ServiceID, started, err.Error())
		res.Findings[0].Detail = map[string]any{"reason": "requirement missing"}
		return res
	}
	adapter, err := c.deps.Registry.AdapterFor(item.ServiceID)
	if err != nil {
		return models.FailureResult(item.ServiceID, started, err.Error())
	}

	progress := func(update models.ProgressUpdate) {
		c.publish(models.Event{Type: models.EventProgress, RunID: runID, ServiceID: item.ServiceID, Progress: &update})
	}
	return adapter.Run(ctx, item.Options.Clone(), progress)
}

// normalizeResult fills what a careless adapter left empty
func normalizeResult(r models.ServiceResult, serviceID string, started, ended time.Time) models.ServiceResult {
	r.ServiceID = serviceID
	if r.StartedAt.IsZero() {
		r.StartedAt = started
	}
	if r.EndedAt.IsZero() {
		r.EndedAt = ended
	}
	if r.Duration <= 0 {
		r.Duration = r.EndedAt.Sub(r.StartedAt)
	}
	switch r.Status {
	case models.ResultSuccess, models.ResultWarning, models.ResultFailure:
	default:
		r.Status = models.ResultFailure
		r.Findings = append(r.Findings, models.NewFinding(models.SeverityCritical,
			fmt.Sprintf("%v: adapter returned no status", ErrAdapterFailure)))
	}
	if r.Findings == nil {
		r.Findings = []models.ServiceFinding{}
	}
	return r
}

func (c *Coordinator) finish(ctx context.Context) {
	c.mu.Lock()
	status := models.RunCompleted
	if c.state.CancelRequested {
		status = models.RunCancelled
	} else {
		for _, r := range c.state.Completed {
			if r.Status == models.ResultFailure {
				status = models.RunFailed
				break
			}
		}
	}
	c.state.Status = status
	c.state.Current = ""
	c.state.Queue = []models.PlanItem{}
	c.state.EndedAt = c.now().UTC()
	c.cancel = nil
	final := c.state.Clone()
	c.mu.Unlock()

	slog.InfoContext(ctx, "run finished", "status", status, "completed", len(final.Completed))
	c.publish(models.Event{Type: models.EventStatusChanged, RunID: final.RunID, Status: status})

	if c.deps.History != nil {
		c.deps.History.Add(final)
	}
	if c.deps.Observer != nil {
		c.deps.Observer.RunFinished(final)
	}
	c.recordSamples(ctx, final)
	c.saveReport(ctx, final)
}

func (c *Coordinator) recordSamples(ctx context.Context, final models.ServiceRunState) {
	if c.deps.Samples == nil || c.deps.Machine == nil {
		return
	}
	fp, err := c.deps.Machine.Fingerprint(ctx)
	if err != nil {
		slog.WarnContext(ctx, "fingerprint unavailable, samples not recorded", "error", err)
		return
	}
	samples := RunSamples(final, fp)
	if len(samples) == 0 {
		return
	}
	if err := c.deps.Samples.RecordBatch(ctx, samples); err != nil {
		slog.WarnContext(ctx, "recording duration samples", "error", err)
	}
}

// RunSamples derives estimator samples from a finished run: one per
// Success or Warning result, and one for the preset when the run was not
// cancelled.
func RunSamples(final models.ServiceRunState, fp models.PcFingerprint) []models.ServiceTimeSample {
	var samples []models.ServiceTimeSample
	for _, r := range final.Completed {
		if r.Status == models.ResultFailure || r.Duration <= 0 {
			continue
		}
		samples = append(samples, models.ServiceTimeSample{
			TargetID:    r.ServiceID,
			Fingerprint: fp,
			Duration:    r.Duration,
			RecordedAt:  r.EndedAt.UTC(),
		})
	}
	if final.Status != models.RunCancelled && final.PresetID != "" && len(final.Completed) > 0 {
		if d := final.EndedAt.Sub(final.StartedAt); d > 0 {
			samples = append(samples, models.ServiceTimeSample{
				TargetID:    PresetTargetID(final.PresetID),
				Fingerprint: fp,
				Duration:    d,
				RecordedAt:  final.EndedAt.UTC(),
			})
		}
	}
	return samples
}

// PresetTargetID is the estimator id of a whole preset
func PresetTargetID(presetID string) string {
	return "preset:" + presetID
}

func (c *Coordinator) saveReport(ctx context.Context, final models.ServiceRunState) {
	if c.deps.Reports == nil || c.deps.Settings == nil {
		return
	}
	settings := c.deps.Settings.Settings()
	if !settings.AutoSave {
		return
	}
	report := BuildReport(ctx, final, c.deps.Machine, settings.IncludeLogs)
	location, err := c.deps.Reports.Save(ctx, report)
	if err != nil {
		slog.ErrorContext(ctx, "saving report", "error", err)
		return
	}
	slog.InfoContext(ctx, "report saved", "report_id", report.ID, "location", location)
}

// BuildReport snapshots a finished run with machine context. Raw tool output
// is kept only when includeLogs is set.
func BuildReport(ctx context.Context, final models.ServiceRunState, machine MachineInfo, includeLogs bool) models.ServiceReport {
	run := final.Clone()
	if !includeLogs {
		for i := range run.Completed {
			run.Completed[i].Output = ""
		}
	}
	report := models.ServiceReport{
		ID:           uuid.NewString(),
		Run:          run,
		IncludesLogs: includeLogs,
		CreatedAt:    time.Now().UTC(),
	}
	if machine != nil {
		mc, err := machine.Machine(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			slog.WarnContext(ctx, "machine context unavailable", "error", err)
		}
		report.Machine = mc
	}
	return report
}

func (c *Coordinator) publish(event models.Event) {
	if c.deps.Events == nil {
		return
	}
	c.deps.Events.Publish(event)
}
