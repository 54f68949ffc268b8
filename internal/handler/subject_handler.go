package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/psicometria/bat7-api/internal/models"
	"github.com/psicometria/bat7-api/internal/service"
	appErrors "github.com/psicometria/bat7-api/pkg/errors"
	"github.com/psicometria/bat7-api/pkg/response"
)

type bulkExecutor interface {
	Execute(ctx context.Context, req service.BulkRequest) (*service.BulkResult, error)
}

type resultLister interface {
	ListBySubject(ctx context.Context, subjectID string) ([]models.Result, error)
}

// SubjectHandler adds bulk actions and result lookups to subject CRUD.
type SubjectHandler struct {
	*EntityHandler[models.Subject]
	bulk    bulkExecutor
	results resultLister
}

// NewSubjectHandler constructs a SubjectHandler.
func NewSubjectHandler(entities entityCRUD[models.Subject], listing pageLister[models.Subject], bulk bulkExecutor, results resultLister) *SubjectHandler {
	return &SubjectHandler{EntityHandler: NewEntityHandler[models.Subject](entities, listing), bulk: bulk, results: results}
}

// Bulk godoc
// @Summary Bulk subject action
// @Description Deletes or changes the status of the selected subjects. Succeeded items stay applied when others fail.
// @Tags Subjects
// @Accept json
// @Produce json
// @Param payload body service.BulkRequest true "Bulk request"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 500 {object} response.Envelope
// @Router /subjects/bulk [post]
func (h *SubjectHandler) Bulk(c *gin.Context) {
	var req service.BulkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid bulk payload"))
		return
	}
	result, err := h.bulk.Execute(c.Request.Context(), req)
	if err != nil {
		if result != nil && errors.Is(err, appErrors.ErrBulkPartial) {
			appErr := appErrors.FromError(err)
			_ = c.Error(err)
			c.JSON(appErr.Status, response.Envelope{Data: result, Error: appErr})
			return
		}
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Results lists the scored results of one subject.
// @Summary Subject results
// @Tags Subjects
// @Produce json
// @Param id path string true "Subject ID"
// @Success 200 {object} response.Envelope
// @Router /subjects/{id}/results [get]
func (h *SubjectHandler) Results(c *gin.Context) {
	rows, err := h.results.ListBySubject(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, nil)
}

// Register mounts CRUD, bulk and results routes.
func (h *SubjectHandler) Register(group gin.IRoutes) {
	group.POST("/bulk", h.Bulk)
	h.EntityHandler.Register(group)
	group.GET("/:id/results", h.Results)
}
