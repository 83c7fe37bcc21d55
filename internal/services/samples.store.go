package services

import (
	"autoservice/internal/models"
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileSampleStore keeps samples as JSON lines in a single append-only file
type FileSampleStore struct {
	mu   sync.Mutex
	path string
}

func NewFileSampleStore(path string) (*FileSampleStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating sample directory: %w", err)
	}
	return &FileSampleStore{path: path}, nil
}

func (s *FileSampleStore) Append(_ context.Context, samples []models.ServiceTimeSample) error {
	if len(samples) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening sample file: %w", err)
	}
	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, sample := range samples {
		if err := enc.Encode(sample); err != nil {
			_ = f.Close()
			return fmt.Errorf("encoding sample: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return fmt.Errorf("writing samples: %w", err)
	}
	return f.Close()
}

// Load returns every stored sample. Malformed lines are skipped.
func (s *FileSampleStore) Load(ctx context.Context) ([]models.ServiceTimeSample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readLocked(ctx)
}

func (s *FileSampleStore) readLocked(ctx context.Context) ([]models.ServiceTimeSample, error) {
	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening sample file: %w", err)
	}
	defer f.Close()

	var out []models.ServiceTimeSample
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var sample models.ServiceTimeSample
		if err := json.Unmarshal(scanner.Bytes(), &sample); err != nil {
			slog.WarnContext(ctx, "skipping malformed sample", "path", s.path, "line", line, "error", err)
			continue
		}
		out = append(out, sample)
	}
	if err := scanner.Err(); err != nil {
		return out, fmt.Errorf("reading sample file: %w", err)
	}
	return out, nil
}

// Prune rewrites the file without samples recorded before the cutoff
func (s *FileSampleStore) Prune(ctx context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.readLocked(ctx)
	if err != nil {
		return 0, err
	}
	kept := make([]models.ServiceTimeSample, 0, len(all))
	for _, sample := range all {
		if sample.RecordedAt.Before(before) {
			continue
		}
		kept = append(kept, sample)
	}
	removed := len(all) - len(kept)
	if removed == 0 {
		return 0, nil
	}

	tmp := s.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return 0, fmt.Errorf("creating sample file: %w", err)
	}
	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, sample := range kept {
		if err := enc.Encode(sample); err != nil {
			_ = f.Close()
			return 0, fmt.Errorf("encoding sample: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return 0, err
	}
	if err := f.Close(); err != nil {
		return 0, err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return 0, fmt.Errorf("replacing sample file: %w", err)
	}
	return removed, nil
}
