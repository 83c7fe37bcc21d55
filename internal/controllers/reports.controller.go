package controllers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetReports lists persisted reports, newest first
func (a *API) GetReports(c *gin.Context) {
	reports, err := a.Reports.List(c.Request.Context())
	if err != nil {
		slog.ErrorContext(c.Request.Context(), "listing reports", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list reports"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"reports": reports, "count": len(reports)})
}

// GetReport returns one persisted report
func (a *API) GetReport(c *gin.Context) {
	report, err := a.Reports.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}
