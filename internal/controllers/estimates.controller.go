package controllers

import (
	"autoservice/internal/services"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// GetEstimate predicts the duration of a service, or of a whole preset when
// the id carries the "preset:" prefix or ?preset=true is set
func (a *API) GetEstimate(c *gin.Context) {
	id := c.Param("id")
	target, err := a.estimateTarget(id, c.Query("preset") == "true")
	if err != nil {
		respondError(c, err)
		return
	}

	ctx := c.Request.Context()
	fp, err := a.Machine.Fingerprint(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "fingerprint unavailable: " + err.Error()})
		return
	}

	resp := gin.H{
		"prediction":  a.Estimator.Predict(ctx, target, fp),
		"fingerprint": fp,
	}
	if model, ok := a.Estimator.Model(target); ok {
		resp["model"] = model
	}
	c.JSON(http.StatusOK, resp)
}

func (a *API) estimateTarget(id string, preset bool) (string, error) {
	if presetID, ok := strings.CutPrefix(id, "preset:"); ok {
		id, preset = presetID, true
	}
	if preset {
		p, err := a.Presets.Preset(id)
		if err != nil {
			return "", err
		}
		return services.PresetTargetID(p.ID), nil
	}
	def, err := a.Registry.DefinitionFor(id)
	if err != nil {
		return "", err
	}
	return def.ID, nil
}
