package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psicometria/bat7-api/internal/models"
	"github.com/psicometria/bat7-api/internal/service"
	appErrors "github.com/psicometria/bat7-api/pkg/errors"
)

type stubTokens map[string]*models.JWTClaims

func (s stubTokens) ValidateToken(token string) (*models.JWTClaims, error) {
	if claims, ok := s[token]; ok {
		return claims, nil
	}
	return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
}

type stubFeatures struct {
	set       models.FeatureSet
	refreshes int
}

func (s *stubFeatures) Snapshot() models.FeatureSet { return s.set }

func (s *stubFeatures) Refresh(context.Context) (models.FeatureSet, bool) {
	s.refreshes++
	return s.set, true
}

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

func newTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	subjects := &stubPages[models.Subject]{page: &service.Page[models.Subject]{Items: []models.Subject{{ID: "p1"}}}}
	rt := Routes{
		Prefix:        "/api/v1",
		Auth:          NewAuthHandler(nil),
		Subjects:      NewSubjectHandler(&stubEntities[models.Subject]{}, subjects, &stubBulk{}, &stubResults{}),
		Institutions:  NewEntityHandler[models.Institution](&stubEntities[models.Institution]{}, &stubPages[models.Institution]{}),
		Psychologists: NewEntityHandler[models.Psychologist](&stubEntities[models.Psychologist]{}, &stubPages[models.Psychologist]{}),
		Users:         NewEntityHandler[models.User](&stubEntities[models.User]{}, &stubPages[models.User]{}),
		Sessions:      NewSessionHandler(&stubSessions{}, &stubPages[models.TestSession]{}),
		Results:       NewResultHandler(&stubResults{}),
		Reports:       NewReportHandler(&stubReports{}, nil),
		Features:      NewFeatureHandler(&stubFeatures{set: models.FeatureSet{Relations: map[string]bool{models.FeatureResults: true}}}),
		Metrics:       NewMetricsHandler(service.NewMetricsService(), stubPinger{}),
		Tokens: stubTokens{
			"admin": {UserID: "u1", Role: models.RoleAdmin},
			"psy":   {UserID: "u2", Role: models.RolePsychologist},
			"cand":  {UserID: "u3", Role: models.RoleCandidate},
		},
	}
	r := gin.New()
	rt.Register(r)
	return r
}

func serve(r http.Handler, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRouterAccessControl(t *testing.T) {
	r := newTestRouter()

	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/health", "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, "/api/v1/subjects", "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, "/api/v1/subjects", "forged").Code)
	assert.Equal(t, http.StatusForbidden, serve(r, http.MethodGet, "/api/v1/subjects", "cand").Code)
	assert.Equal(t, http.StatusForbidden, serve(r, http.MethodGet, "/api/v1/users", "psy").Code)

	w := serve(r, http.MethodGet, "/api/v1/subjects", "psy")
	require.Equal(t, http.StatusOK, w.Code)
	env := decode(t, w)
	assert.Contains(t, env.Meta, "cache_hit")

	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/api/v1/sessions/active/p1", "psy").Code)
	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/api/v1/features", "cand").Code)
}

func TestRouterCandidateRunsOwnSession(t *testing.T) {
	r := newTestRouter()

	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/api/v1/sessions/current", "cand").Code)
	assert.Equal(t, http.StatusOK, serve(r, http.MethodPost, "/api/v1/sessions/tests/V/complete", "cand").Code)
	assert.Equal(t, http.StatusOK, serve(r, http.MethodPost, "/api/v1/sessions/sync", "cand").Code)
	assert.Equal(t, http.StatusOK, serve(r, http.MethodPost, "/api/v1/sessions/finish", "cand").Code)

	assert.Equal(t, http.StatusForbidden, serve(r, http.MethodGet, "/api/v1/sessions", "cand").Code)
	assert.Equal(t, http.StatusForbidden, serve(r, http.MethodGet, "/api/v1/sessions/active/p1", "cand").Code)
	assert.Equal(t, http.StatusForbidden, serve(r, http.MethodGet, "/api/v1/sessions/ts1", "cand").Code)
	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/api/v1/sessions", "psy").Code)
}

func TestFeatureHandlerRefresh(t *testing.T) {
	features := &stubFeatures{set: models.FeatureSet{Relations: map[string]bool{models.FeatureTestSessions: true}, CheckedAt: time.Now()}}
	h := NewFeatureHandler(features)

	c, w := newGinContext(http.MethodGet, "/features", nil)
	h.Get(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Zero(t, features.refreshes)
	assert.Contains(t, w.Body.String(), `"test_sessions":true`)

	c, w = newGinContext(http.MethodGet, "/features?refresh=true", nil)
	h.Get(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, features.refreshes)
	assert.Equal(t, true, decode(t, w).Meta["refreshed"])
}

func TestMetricsHandlerReady(t *testing.T) {
	h := NewMetricsHandler(service.NewMetricsService(), stubPinger{err: errors.New("connection refused")})
	c, w := newGinContext(http.MethodGet, "/ready", nil)
	h.Ready(c)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	h = NewMetricsHandler(service.NewMetricsService(), stubPinger{})
	c, w = newGinContext(http.MethodGet, "/ready", nil)
	h.Ready(c)
	assert.Equal(t, http.StatusOK, w.Code)

	c, w = newGinContext(http.MethodGet, "/metrics/summary", nil)
	h.Summary(c)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "cache_hit_ratio")
}
