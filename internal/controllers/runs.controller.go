package controllers

import (
	"autoservice/internal/models"
	"autoservice/internal/services"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type planEstimate struct {
	Total    time.Duration       `json:"total_ns"`
	Seconds  float64             `json:"total_seconds"`
	Preset   *models.Prediction  `json:"preset,omitempty"`
	Services []models.Prediction `json:"services"`
}

// estimatePlan predicts every item of plan. A whole-preset prediction backed
// by samples replaces the per-service sum.
func (a *API) estimatePlan(c *gin.Context, plan models.RunPlan) *planEstimate {
	if a.Estimator == nil || a.Machine == nil {
		return nil
	}
	ctx := c.Request.Context()
	fp, err := a.Machine.Fingerprint(ctx)
	if err != nil {
		slog.WarnContext(ctx, "fingerprint unavailable for estimate", "error", err)
		return nil
	}

	est := &planEstimate{Services: make([]models.Prediction, 0, len(plan.Items))}
	for _, item := range plan.Items {
		p := a.Estimator.Predict(ctx, item.ServiceID, fp)
		est.Services = append(est.Services, p)
		est.Total += p.Duration
	}
	if plan.PresetID != "" {
		p := a.Estimator.Predict(ctx, services.PresetTargetID(plan.PresetID), fp)
		if p.Method != models.PredictionDefault {
			est.Preset = &p
			est.Total = p.Duration
		}
	}
	est.Seconds = est.Total.Seconds()
	return est
}

func (a *API) resolve(c *gin.Context) (models.RunPlan, bool) {
	var req models.PlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return models.RunPlan{}, false
	}
	plan, err := a.Presets.Resolve(req)
	if err != nil {
		respondError(c, err)
		return models.RunPlan{}, false
	}
	return plan, true
}

// ResolvePlan expands a preset or service list into a plan without running it
func (a *API) ResolvePlan(c *gin.Context) {
	plan, ok := a.resolve(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"plan":     plan,
		"estimate": a.estimatePlan(c, plan),
	})
}

// StartRun resolves the request and starts executing it in the background
func (a *API) StartRun(c *gin.Context) {
	plan, ok := a.resolve(c)
	if !ok {
		return
	}
	state, err := a.Coordinator.Start(c.Request.Context(), plan)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, state)
}

// GetCurrentRun returns a snapshot of the run state
func (a *API) GetCurrentRun(c *gin.Context) {
	c.JSON(http.StatusOK, a.Coordinator.CurrentState())
}

// CancelRun asks the active run to stop
func (a *API) CancelRun(c *gin.Context) {
	cancelled := a.Coordinator.Cancel()
	c.JSON(http.StatusOK, gin.H{
		"cancelled": cancelled,
		"state":     a.Coordinator.CurrentState(),
	})
}

// ResetRun clears a finished run back to idle
func (a *API) ResetRun(c *gin.Context) {
	if err := a.Coordinator.Reset(); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, a.Coordinator.CurrentState())
}

// GetRunHistory returns finished runs, newest first
// Query params: duration=1h|24h (default: all kept runs)
func (a *API) GetRunHistory(c *gin.Context) {
	var window time.Duration
	if raw := c.Query("duration"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid duration format"})
			return
		}
		window = d
	}
	runs := a.History.Recent(window)
	c.JSON(http.StatusOK, gin.H{"runs": runs, "count": len(runs)})
}

// GetRun returns one finished run by id
func (a *API) GetRun(c *gin.Context) {
	run, ok := a.History.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	c.JSON(http.StatusOK, run)
}
