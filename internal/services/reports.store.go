package services

import (
	"autoservice/internal/models"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ReportStore persists finished run reports as JSON documents
type ReportStore interface {
	ReportSaver
	Get(ctx context.Context, id string) (models.ServiceReport, error)
	List(ctx context.Context) ([]models.ReportSummary, error)
	Prune(ctx context.Context, before time.Time) (int, error)
}

// FileReportStore writes one indented JSON file per report into a directory
type FileReportStore struct {
	dir string
}

func NewFileReportStore(dir string) (*FileReportStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating report directory: %w", err)
	}
	return &FileReportStore{dir: dir}, nil
}

func (s *FileReportStore) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// Save writes report atomically and returns its file path
func (s *FileReportStore) Save(_ context.Context, report models.ServiceReport) (string, error) {
	if _, err := uuid.Parse(report.ID); err != nil {
		return "", fmt.Errorf("report id %q: %w", report.ID, err)
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding report: %w", err)
	}
	path := s.path(report.ID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("writing report: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("writing report: %w", err)
	}
	return path, nil
}

func (s *FileReportStore) Get(_ context.Context, id string) (models.ServiceReport, error) {
	if _, err := uuid.Parse(id); err != nil {
		return models.ServiceReport{}, fmt.Errorf("%w: report %q", ErrNotFound, id)
	}
	data, err := os.ReadFile(s.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return models.ServiceReport{}, fmt.Errorf("%w: report %q", ErrNotFound, id)
	}
	if err != nil {
		return models.ServiceReport{}, fmt.Errorf("reading report: %w", err)
	}
	var report models.ServiceReport
	if err := json.Unmarshal(data, &report); err != nil {
		return models.ServiceReport{}, fmt.Errorf("decoding report %s: %w", id, err)
	}
	return report, nil
}

// List summarizes every stored report, newest first
func (s *FileReportStore) List(ctx context.Context) ([]models.ReportSummary, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("listing reports: %w", err)
	}
	out := []models.ReportSummary{}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		report, err := s.Get(ctx, strings.TrimSuffix(name, ".json"))
		if err != nil {
			slog.WarnContext(ctx, "skipping unreadable report", "file", name, "error", err)
			continue
		}
		out = append(out, models.ReportSummary{
			ID:        report.ID,
			RunID:     report.Run.RunID,
			PresetID:  report.Run.PresetID,
			Status:    report.Run.Status,
			Services:  len(report.Run.Completed),
			CreatedAt: report.CreatedAt,
			Location:  s.path(report.ID),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// Prune deletes reports created before the cutoff
func (s *FileReportStore) Prune(ctx context.Context, before time.Time) (int, error) {
	list, err := s.List(ctx)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, r := range list {
		if !r.CreatedAt.Before(before) {
			continue
		}
		if err := os.Remove(s.path(r.ID)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return removed, fmt.Errorf("removing report %s: %w", r.ID, err)
		}
		removed++
	}
	return removed, nil
}

// MirroredReportStore saves to a primary store and copies every report to
// mirrors. Mirror failures are logged and never fail the save.
type MirroredReportStore struct {
	ReportStore
	mirrors []ReportSaver
}

func NewMirroredReportStore(primary ReportStore, mirrors ...ReportSaver) *MirroredReportStore {
	return &MirroredReportStore{ReportStore: primary, mirrors: mirrors}
}

func (m *MirroredReportStore) Save(ctx context.Context, report models.ServiceReport) (string, error) {
	location, err := m.ReportStore.Save(ctx, report)
	if err != nil {
		return "", err
	}
	for _, mirror := range m.mirrors {
		if loc, err := mirror.Save(ctx, report); err != nil {
			slog.WarnContext(ctx, "mirroring report", "report_id", report.ID, "error", err)
		} else {
			slog.DebugContext(ctx, "report mirrored", "report_id", report.ID, "location", loc)
		}
	}
	return location, nil
}
