package services

import (
	"autoservice/internal/models"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var testFingerprint = models.PcFingerprint{
	CPUCores: 8, CPUThreads: 16, CPUMHz: 3600, RAMGB: 32, DiskSSD: 1, GPUPresent: 1,
}

func stubAdapter(status models.ResultStatus) AdapterFunc {
	return func(_ context.Context, _ models.OptionValues, progress ProgressFunc) models.ServiceResult {
		progress(models.ProgressUpdate{Line: "working"})
		return models.ServiceResult{
			Status:   status,
			Findings: []models.ServiceFinding{models.NewFinding(models.SeverityInfo, "done")},
			Duration: 2 * time.Second,
			Output:   "raw output",
		}
	}
}

// blockingAdapter runs until ctx is cancelled and signals started when entered
func blockingAdapter(started chan<- struct{}) AdapterFunc {
	return func(ctx context.Context, _ models.OptionValues, _ ProgressFunc) models.ServiceResult {
		close(started)
		<-ctx.Done()
		return models.ServiceResult{Status: models.ResultSuccess}
	}
}

// stubRegistry is the built-in catalog with every adapter replaced by a
// succeeding stub, except those given in overrides
func stubRegistry(t *testing.T, overrides map[string]Adapter) *Registry {
	t.Helper()
	locator, err := NewProgramLocator(BuiltinPrograms(), nil)
	require.NoError(t, err)
	entries := BuiltinCatalog(locator)
	for i := range entries {
		entries[i].Adapter = stubAdapter(models.ResultSuccess)
		if a, ok := overrides[entries[i].Definition.ID]; ok {
			entries[i].Adapter = a
		}
	}
	registry, err := NewRegistry(locator, entries...)
	require.NoError(t, err)
	return registry
}

type eventRecorder struct {
	mu     sync.Mutex
	events []models.Event
}

func (r *eventRecorder) Publish(event models.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *eventRecorder) ofType(t models.EventType) []models.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type fakeMachine struct {
	fp models.PcFingerprint
}

func (m fakeMachine) Fingerprint(context.Context) (models.PcFingerprint, error) {
	return m.fp, nil
}

func (m fakeMachine) Machine(context.Context) (models.MachineContext, error) {
	return models.MachineContext{Fingerprint: m.fp}, nil
}

type sampleRecorder struct {
	mu      sync.Mutex
	samples []models.ServiceTimeSample
}

func (r *sampleRecorder) RecordBatch(_ context.Context, samples []models.ServiceTimeSample) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = append(r.samples, samples...)
	return nil
}

type reportRecorder struct {
	mu      sync.Mutex
	reports []models.ServiceReport
}

func (r *reportRecorder) Save(_ context.Context, report models.ServiceReport) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, report)
	return "memory://" + report.ID, nil
}

type staticSettings models.Settings

func (s staticSettings) Settings() models.Settings {
	return models.Settings(s)
}

// memorySampleStore is an in-memory SampleStore
type memorySampleStore struct {
	mu      sync.Mutex
	samples []models.ServiceTimeSample
}

func (m *memorySampleStore) Append(_ context.Context, samples []models.ServiceTimeSample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples = append(m.samples, samples...)
	return nil
}

func (m *memorySampleStore) Load(context.Context) ([]models.ServiceTimeSample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.ServiceTimeSample(nil), m.samples...), nil
}

func (m *memorySampleStore) Prune(_ context.Context, before time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.samples[:0]
	for _, s := range m.samples {
		if !s.RecordedAt.Before(before) {
			kept = append(kept, s)
		}
	}
	removed := len(m.samples) - len(kept)
	m.samples = kept
	return removed, nil
}

func waitRun(t *testing.T, c *Coordinator) models.ServiceRunState {
	t.Helper()
	ctx, cancel := context.WithTimeout(testContext(t), 10*time.Second)
	defer cancel()
	require.NoError(t, c.Wait(ctx))
	return c.CurrentState()
}
