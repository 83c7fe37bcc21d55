package services

import (
	"autoservice/internal/models"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRunHistory(t *testing.T) {
	t.Parallel()

	h := NewRunHistory(3)
	now := time.Now()
	for i := 0; i < 5; i++ {
		h.Add(models.ServiceRunState{
			RunID:   fmt.Sprintf("run-%d", i),
			Status:  models.RunCompleted,
			EndedAt: now.Add(time.Duration(i-4) * time.Hour),
		})
	}

	all := h.Recent(0)
	require.Len(t, all, 3)
	require.Equal(t, "run-4", all[0].RunID)
	require.Equal(t, "run-2", all[2].RunID)

	recent := h.Recent(90 * time.Minute)
	require.Len(t, recent, 2)

	_, ok := h.Get("run-0")
	require.False(t, ok, "oldest run was evicted")
	run, ok := h.Get("run-3")
	require.True(t, ok)
	require.Equal(t, models.RunCompleted, run.Status)
}
