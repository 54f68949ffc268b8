package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/psicometria/bat7-api/internal/middleware"
	"github.com/psicometria/bat7-api/internal/models"
	"github.com/psicometria/bat7-api/internal/service"
	appErrors "github.com/psicometria/bat7-api/pkg/errors"
	"github.com/psicometria/bat7-api/pkg/response"
)

type entityCRUD[T any] interface {
	Get(ctx context.Context, id string) (*T, error)
	Create(ctx context.Context, fields map[string]interface{}) (*T, error)
	Update(ctx context.Context, id string, partial map[string]interface{}) (*T, error)
	Delete(ctx context.Context, id string) (*T, error)
}

type pageLister[T any] interface {
	Page(ctx context.Context, q models.ListQuery) (*service.Page[T], error)
}

// EntityHandler serves list, read, create, update and delete for one entity.
type EntityHandler[T any] struct {
	entities entityCRUD[T]
	listing  pageLister[T]
}

// NewEntityHandler wires an entity service and its listing.
func NewEntityHandler[T any](entities entityCRUD[T], listing pageLister[T]) *EntityHandler[T] {
	return &EntityHandler[T]{entities: entities, listing: listing}
}

// List godoc
// @Summary List entities
// @Description Filtered, sorted and paginated list. Filters use filter[field]=value.
// @Tags Entities
// @Produce json
// @Param search query string false "Free text search"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Param sort query string false "Sort field"
// @Param order query string false "asc or desc"
// @Success 200 {object} response.Envelope
// @Router /subjects [get]
// @Router /institutions [get]
// @Router /psychologists [get]
// @Router /users [get]
func (h *EntityHandler[T]) List(c *gin.Context) {
	page, err := h.listing.Page(c.Request.Context(), parseListQuery(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, page.CacheHit)
	middleware.SetMeta(c, "filters", page.Filters)
	response.JSON(c, http.StatusOK, page.Items, &page.Meta, middleware.ExtractMeta(c))
}

// Get returns one entity by id.
func (h *EntityHandler[T]) Get(c *gin.Context) {
	row, err := h.entities.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, row, nil)
}

// Create godoc
// @Summary Create entity
// @Tags Entities
// @Accept json
// @Produce json
// @Param payload body map[string]interface{} true "Fields"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /subjects [post]
func (h *EntityHandler[T]) Create(c *gin.Context) {
	fields, ok := bindFields(c)
	if !ok {
		return
	}
	row, err := h.entities.Create(c.Request.Context(), fields)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, row)
}

// Update applies a partial update.
func (h *EntityHandler[T]) Update(c *gin.Context) {
	fields, ok := bindFields(c)
	if !ok {
		return
	}
	row, err := h.entities.Update(c.Request.Context(), c.Param("id"), fields)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, row, nil)
}

// Delete removes an entity and returns the removed row.
func (h *EntityHandler[T]) Delete(c *gin.Context) {
	row, err := h.entities.Delete(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, row, nil)
}

// Register mounts the CRUD routes on group.
func (h *EntityHandler[T]) Register(group gin.IRoutes) {
	group.GET("", h.List)
	group.POST("", h.Create)
	group.GET("/:id", h.Get)
	group.PUT("/:id", h.Update)
	group.DELETE("/:id", h.Delete)
}

func bindFields(c *gin.Context) (map[string]interface{}, bool) {
	var fields map[string]interface{}
	if err := c.ShouldBindJSON(&fields); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return nil, false
	}
	if len(fields) == 0 {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "payload has no fields"))
		return nil, false
	}
	return fields, true
}
