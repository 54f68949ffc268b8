package handler

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/psicometria/bat7-api/internal/middleware"
	"github.com/psicometria/bat7-api/internal/models"
	appErrors "github.com/psicometria/bat7-api/pkg/errors"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

func actorFromContext(c *gin.Context) (string, error) {
	claims := claimsFromContext(c)
	if claims == nil || claims.UserID == "" {
		return "", appErrors.ErrUnauthorized
	}
	return claims.UserID, nil
}

// parseListQuery reads search, page, limit, sort, order, window and
// filter[field]=value pairs.
func parseListQuery(c *gin.Context) models.ListQuery {
	q := models.ListQuery{
		Search:  strings.TrimSpace(c.Query("search")),
		Sort:    c.Query("sort"),
		Order:   strings.ToLower(c.Query("order")),
		Filters: map[string]string{},
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		q.Page = page
	}
	if size, err := strconv.Atoi(c.Query("limit")); err == nil {
		q.PageSize = size
	}
	if window, err := strconv.Atoi(c.Query("window")); err == nil {
		q.Window = window
	}
	for key, values := range c.Request.URL.Query() {
		if !strings.HasPrefix(key, "filter[") || !strings.HasSuffix(key, "]") || len(values) == 0 {
			continue
		}
		field := strings.TrimSuffix(strings.TrimPrefix(key, "filter["), "]")
		if field != "" {
			q.Filters[field] = values[len(values)-1]
		}
	}
	return q
}
