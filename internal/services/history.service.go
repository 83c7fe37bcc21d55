package services

import (
	"autoservice/internal/models"
	"sync"
	"time"
)

// RunHistory keeps the most recent finished runs in memory
type RunHistory struct {
	mu      sync.RWMutex
	runs    []models.ServiceRunState
	maxRuns int // keep only this many runs, oldest dropped first
}

// NewRunHistory creates a history holding at most maxRuns entries
func NewRunHistory(maxRuns int) *RunHistory {
	if maxRuns <= 0 {
		maxRuns = 20
	}
	return &RunHistory{
		runs:    []models.ServiceRunState{},
		maxRuns: maxRuns,
	}
}

// Add archives a finished run
func (h *RunHistory) Add(run models.ServiceRunState) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.runs = append(h.runs, run.Clone())
	if len(h.runs) > h.maxRuns {
		h.runs = h.runs[len(h.runs)-h.maxRuns:]
	}
}

// Recent returns runs that ended within the given window, newest first.
// A zero window returns every stored run.
func (h *RunHistory) Recent(window time.Duration) []models.ServiceRunState {
	h.mu.RLock()
	defer h.mu.RUnlock()

	cutoff := time.Time{}
	if window > 0 {
		cutoff = time.Now().Add(-window)
	}
	filtered := []models.ServiceRunState{}
	for i := len(h.runs) - 1; i >= 0; i-- {
		if h.runs[i].EndedAt.After(cutoff) {
			filtered = append(filtered, h.runs[i].Clone())
		}
	}
	return filtered
}

// Get returns an archived run by id
func (h *RunHistory) Get(runID string) (models.ServiceRunState, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, r := range h.runs {
		if r.RunID == runID {
			return r.Clone(), true
		}
	}
	return models.ServiceRunState{}, false
}
