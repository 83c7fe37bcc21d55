package controllers

import (
	"autoservice/internal/models"
	"autoservice/internal/services"
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// ReportReader serves persisted reports
type ReportReader interface {
	Get(ctx context.Context, id string) (models.ServiceReport, error)
	List(ctx context.Context) ([]models.ReportSummary, error)
}

// PresetWriter persists the user's custom presets
type PresetWriter interface {
	SetCustomPresets(presets []models.ServicePreset) error
}

// API holds the collaborators shared by the HTTP handlers
type API struct {
	Registry    *services.Registry
	Presets     *services.PresetResolver
	Coordinator *services.Coordinator
	Estimator   *services.Estimator
	Machine     services.MachineInfo
	Reports     ReportReader
	History     *services.RunHistory
	Settings    PresetWriter
	Hub         *services.EventHub

	// AllowedOrigins restricts websocket upgrades; empty allows same-origin only
	AllowedOrigins []string
}

// statusFor maps service errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrAlreadyRunning):
		return http.StatusConflict
	case errors.Is(err, services.ErrInvalidPreset),
		errors.Is(err, services.ErrInvalidOption),
		errors.Is(err, services.ErrInvalidSample):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrRequirementMissing):
		return http.StatusUnprocessableEntity
	case errors.Is(err, services.ErrNotRunning):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}
