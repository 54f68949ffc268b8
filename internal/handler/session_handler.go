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

type sessionController interface {
	Start(ctx context.Context, actorID string, req service.StartRequest) (*models.TestSession, error)
	Current(ctx context.Context, actorID string) (service.SessionView, error)
	Complete(ctx context.Context, actorID, testID string) (service.SessionView, error)
	Sync(ctx context.Context, actorID string) (service.SessionView, error)
	Finish(ctx context.Context, actorID string) (*models.TestSession, error)
	Cancel(ctx context.Context, actorID, reason string) (*models.TestSession, error)
	GetActiveSession(ctx context.Context, subjectID string) *models.TestSession
	GetSession(ctx context.Context, id string) (*models.TestSession, error)
}

// SessionHandler exposes the evaluation session lifecycle of the caller.
type SessionHandler struct {
	sessions sessionController
	listing  pageLister[models.TestSession]
}

// NewSessionHandler constructs a SessionHandler.
func NewSessionHandler(sessions sessionController, listing pageLister[models.TestSession]) *SessionHandler {
	return &SessionHandler{sessions: sessions, listing: listing}
}

// Current godoc
// @Summary Current session
// @Description Returns the caller's tracked session with progress
// @Tags Sessions
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /sessions/current [get]
func (h *SessionHandler) Current(c *gin.Context) {
	actorID, err := actorFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	view, err := h.sessions.Current(c.Request.Context(), actorID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

// Start godoc
// @Summary Start session
// @Tags Sessions
// @Accept json
// @Produce json
// @Param payload body service.StartRequest true "Subject and level"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /sessions/start [post]
func (h *SessionHandler) Start(c *gin.Context) {
	actorID, err := actorFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req service.StartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid session payload"))
		return
	}
	session, err := h.sessions.Start(c.Request.Context(), actorID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	if session.Synthetic {
		middleware.SetMeta(c, "synthetic", true)
	}
	response.JSON(c, http.StatusCreated, session, nil, middleware.ExtractMeta(c))
}

// Complete marks one test of the active session as done.
// @Summary Complete test
// @Tags Sessions
// @Produce json
// @Param testId path string true "Test ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /sessions/tests/{testId}/complete [post]
func (h *SessionHandler) Complete(c *gin.Context) {
	actorID, err := actorFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	view, err := h.sessions.Complete(c.Request.Context(), actorID, c.Param("testId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

// Sync merges tests already scored in results into the active session.
func (h *SessionHandler) Sync(c *gin.Context) {
	actorID, err := actorFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	view, err := h.sessions.Sync(c.Request.Context(), actorID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

// Finish godoc
// @Summary Finish session
// @Tags Sessions
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /sessions/finish [post]
func (h *SessionHandler) Finish(c *gin.Context) {
	actorID, err := actorFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	session, err := h.sessions.Finish(c.Request.Context(), actorID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session, nil)
}

// Cancel godoc
// @Summary Cancel session
// @Tags Sessions
// @Accept json
// @Produce json
// @Param payload body service.CancelRequest true "Reason"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /sessions/cancel [post]
func (h *SessionHandler) Cancel(c *gin.Context) {
	actorID, err := actorFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req service.CancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid cancel payload"))
		return
	}
	session, err := h.sessions.Cancel(c.Request.Context(), actorID, req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session, nil)
}

// Active returns the started session of a subject. Without one the
// envelope carries no data and meta.active is false.
// @Summary Active session of subject
// @Tags Sessions
// @Produce json
// @Param subjectId path string true "Subject ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/active/{subjectId} [get]
func (h *SessionHandler) Active(c *gin.Context) {
	session := h.sessions.GetActiveSession(c.Request.Context(), c.Param("subjectId"))
	middleware.SetMeta(c, "active", session != nil)
	if session == nil {
		response.JSON(c, http.StatusOK, nil, nil, middleware.ExtractMeta(c))
		return
	}
	response.JSON(c, http.StatusOK, session, nil, middleware.ExtractMeta(c))
}

// List pages over stored test sessions.
func (h *SessionHandler) List(c *gin.Context) {
	page, err := h.listing.Page(c.Request.Context(), parseListQuery(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, page.CacheHit)
	response.JSON(c, http.StatusOK, page.Items, &page.Meta, middleware.ExtractMeta(c))
}

// Get returns one stored session.
func (h *SessionHandler) Get(c *gin.Context) {
	session, err := h.sessions.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session, nil)
}

// Register mounts the session routes on group. The tracker routes act on the
// caller's own session; staff guards the routes that read other sessions.
func (h *SessionHandler) Register(group gin.IRoutes, staff gin.HandlerFunc) {
	group.GET("/current", h.Current)
	group.POST("/start", h.Start)
	group.POST("/tests/:testId/complete", h.Complete)
	group.POST("/sync", h.Sync)
	group.POST("/finish", h.Finish)
	group.POST("/cancel", h.Cancel)

	group.GET("", staff, h.List)
	group.GET("/active/:subjectId", staff, h.Active)
	group.GET("/:id", staff, h.Get)
}
