package controllers

import (
	"autoservice/internal/models"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetServices returns every service definition and the programs they need
func (a *API) GetServices(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"services": a.Registry.Definitions(),
		"programs": a.Registry.Programs(),
	})
}

// GetPresets returns the built-in presets followed by the custom ones
func (a *API) GetPresets(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"presets": a.Presets.Presets()})
}

type customPresetsRequest struct {
	Presets []models.ServicePreset `json:"presets" binding:"omitempty,dive"`
}

// PutCustomPresets replaces the custom presets after validating every one
func (a *API) PutCustomPresets(c *gin.Context) {
	var req customPresetsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	presets, err := a.Presets.NormalizePresets(req.Presets)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := a.Settings.SetCustomPresets(presets); err != nil {
		slog.ErrorContext(c.Request.Context(), "saving custom presets", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save presets"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"presets": a.Presets.Presets()})
}
