package handler

import (
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/psicometria/bat7-api/internal/middleware"
	"github.com/psicometria/bat7-api/internal/models"
)

// Routes groups every handler and the collaborators of the route middleware.
type Routes struct {
	Prefix string

	Auth          *AuthHandler
	Subjects      *SubjectHandler
	Institutions  *EntityHandler[models.Institution]
	Psychologists *EntityHandler[models.Psychologist]
	Users         *EntityHandler[models.User]
	Sessions      *SessionHandler
	Results       *ResultHandler
	Reports       *ReportHandler
	Features      *FeatureHandler
	Metrics       *MetricsHandler

	Tokens middleware.TokenValidator
	Audit  middleware.AuditWriter
	Gate   middleware.FeatureGate
	Logger *zap.Logger
}

// Register mounts the API on r.
func (rt Routes) Register(r gin.IRouter) {
	r.GET("/health", rt.Metrics.Health)
	r.GET("/ready", rt.Metrics.Ready)
	r.GET("/metrics", rt.Metrics.Prometheus)

	prefix := strings.TrimRight(rt.Prefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}
	api := r.Group(prefix)
	api.Use(middleware.WithResponseMeta())

	auth := api.Group("/auth")
	auth.POST("/login", rt.Auth.Login)
	auth.POST("/refresh", rt.Auth.Refresh)

	// Signed links authorise themselves.
	api.GET("/reports/download/:token", middleware.OptionalJWT(rt.Tokens), rt.Reports.Download)

	secured := api.Group("")
	secured.Use(middleware.JWT(rt.Tokens))

	me := secured.Group("/auth")
	me.GET("/me", rt.Auth.Me)
	me.POST("/logout", rt.Auth.Logout)
	me.POST("/change-password", rt.Auth.ChangePassword)

	staff := middleware.RequireRoles(models.RoleAdmin, models.RolePsychologist)
	admin := middleware.RequireRoles(models.RoleAdmin)
	takers := middleware.RequireRoles(models.RoleAdmin, models.RolePsychologist, models.RoleCandidate)

	rt.Subjects.Register(secured.Group("/subjects", staff, rt.audit("subjects")))
	rt.Institutions.Register(secured.Group("/institutions", admin, rt.audit("institutions")))
	rt.Psychologists.Register(secured.Group("/psychologists", admin, rt.audit("psychologists")))
	rt.Users.Register(secured.Group("/users", admin, rt.audit("users")))
	rt.Sessions.Register(secured.Group("/sessions", takers, rt.audit("test_sessions")), staff)

	secured.GET("/results", staff, rt.Results.List)
	secured.POST("/reports/subjects/:id", staff, rt.Reports.Generate)
	secured.GET("/features", rt.Features.Get)
	secured.GET("/metrics/summary", admin, rt.Metrics.Summary)
}

func (rt Routes) audit(resource string) gin.HandlerFunc {
	if rt.Audit == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return middleware.Audit(rt.Audit, rt.Gate, rt.Logger, resource)
}
