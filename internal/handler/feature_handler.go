package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/psicometria/bat7-api/internal/models"
	"github.com/psicometria/bat7-api/pkg/response"
)

type featureSnapshotter interface {
	Snapshot() models.FeatureSet
	Refresh(ctx context.Context) (models.FeatureSet, bool)
}

// FeatureHandler reports which optional relations the database provides.
type FeatureHandler struct {
	features featureSnapshotter
}

// NewFeatureHandler constructs a FeatureHandler.
func NewFeatureHandler(features featureSnapshotter) *FeatureHandler {
	return &FeatureHandler{features: features}
}

// Get godoc
// @Summary Feature availability
// @Tags System
// @Produce json
// @Param refresh query bool false "Check the database again"
// @Success 200 {object} response.Envelope
// @Router /features [get]
func (h *FeatureHandler) Get(c *gin.Context) {
	if c.Query("refresh") == "true" {
		set, checked := h.features.Refresh(c.Request.Context())
		response.JSON(c, http.StatusOK, set, nil, map[string]interface{}{"refreshed": checked})
		return
	}
	response.JSON(c, http.StatusOK, h.features.Snapshot(), nil)
}
