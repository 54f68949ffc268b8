package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	appErrors "github.com/psicometria/bat7-api/pkg/errors"
	"github.com/psicometria/bat7-api/pkg/response"
)

// ResultHandler serves scored test results.
type ResultHandler struct {
	results resultLister
}

// NewResultHandler constructs a ResultHandler.
func NewResultHandler(results resultLister) *ResultHandler {
	return &ResultHandler{results: results}
}

// List godoc
// @Summary List results
// @Tags Results
// @Produce json
// @Param subject_id query string true "Subject ID"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /results [get]
func (h *ResultHandler) List(c *gin.Context) {
	subjectID := strings.TrimSpace(c.Query("subject_id"))
	if subjectID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "subject_id is required"))
		return
	}
	rows, err := h.results.ListBySubject(c.Request.Context(), subjectID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, nil)
}
