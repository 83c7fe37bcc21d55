package services

import (
	"autoservice/internal/models"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestFileSampleStore(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "data", "samples.jsonl")
	store, err := NewFileSampleStore(path)
	require.NoError(t, err)

	loaded, err := store.Load(testContext(t))
	require.NoError(t, err)
	require.Empty(t, loaded)

	old := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	recent := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.Append(testContext(t), []models.ServiceTimeSample{
		{TargetID: "disk_space", Fingerprint: testFingerprint, Duration: 3 * time.Second, RecordedAt: old},
		{TargetID: "ping_test", Fingerprint: testFingerprint, Duration: 5 * time.Second, RecordedAt: recent},
	}))

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("{not json\n\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, store.Append(testContext(t), []models.ServiceTimeSample{
		{TargetID: "preset:diagnostics", Fingerprint: testFingerprint, Duration: 9 * time.Second, RecordedAt: recent},
	}))

	loaded, err = store.Load(testContext(t))
	require.NoError(t, err)
	require.Len(t, loaded, 3)
	require.Equal(t, "disk_space", loaded[0].TargetID)
	require.Equal(t, 3*time.Second, loaded[0].Duration)
	require.Equal(t, testFingerprint, loaded[0].Fingerprint)
	require.True(t, old.Equal(loaded[0].RecordedAt))

	removed, err := store.Prune(testContext(t), time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	loaded, err = store.Load(testContext(t))
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	require.Equal(t, "ping_test", loaded[0].TargetID)
}

func newReport(created time.Time, runID string) models.ServiceReport {
	return models.ServiceReport{
		ID:        uuid.NewString(),
		CreatedAt: created,
		Run: models.ServiceRunState{
			RunID:     runID,
			PresetID:  "diagnostics",
			Status:    models.RunCompleted,
			Completed: []models.ServiceResult{{ServiceID: "disk_space", Status: models.ResultSuccess}},
		},
	}
}

func TestFileReportStore(t *testing.T) {
	t.Parallel()

	store, err := NewFileReportStore(filepath.Join(t.TempDir(), "reports"))
	require.NoError(t, err)

	first := newReport(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), "run-1")
	second := newReport(time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), "run-2")
	for _, r := range []models.ServiceReport{first, second} {
		location, err := store.Save(testContext(t), r)
		require.NoError(t, err)
		require.FileExists(t, location)
	}

	got, err := store.Get(testContext(t), second.ID)
	require.NoError(t, err)
	require.Equal(t, "run-2", got.Run.RunID)

	_, err = store.Get(testContext(t), uuid.NewString())
	require.ErrorIs(t, err, ErrNotFound)
	_, err = store.Get(testContext(t), "../settings")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = store.Save(testContext(t), models.ServiceReport{ID: "not-a-uuid"})
	require.Error(t, err)

	list, err := store.List(testContext(t))
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, second.ID, list[0].ID)
	require.Equal(t, 1, list[0].Services)
	require.Equal(t, models.RunCompleted, list[0].Status)

	removed, err := store.Prune(testContext(t), time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, 1, removed)
	list, err = store.List(testContext(t))
	require.NoError(t, err)
	require.Len(t, list, 1)
}

type failingSaver struct{}

func (failingSaver) Save(context.Context, models.ServiceReport) (string, error) {
	return "", errors.New("bucket unavailable")
}

func TestMirroredReportStore(t *testing.T) {
	t.Parallel()

	primary, err := NewFileReportStore(t.TempDir())
	require.NoError(t, err)
	mirror := &reportRecorder{}
	store := NewMirroredReportStore(primary, failingSaver{}, mirror)

	report := newReport(time.Now().UTC(), "run-1")
	location, err := store.Save(testContext(t), report)
	require.NoError(t, err)
	require.FileExists(t, location)
	require.Len(t, mirror.reports, 1)

	got, err := store.Get(testContext(t), report.ID)
	require.NoError(t, err)
	require.Equal(t, report.ID, got.ID)
}
