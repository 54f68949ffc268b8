package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	appErrors "github.com/psicometria/bat7-api/pkg/errors"
)

func TestCacheRepositoryWithoutRedis(t *testing.T) {
	repo := NewCacheRepository(nil, nil)
	ctx := context.Background()

	var rows []string
	assert.ErrorIs(t, repo.Get(ctx, "listing:subjects:snapshot", &rows), appErrors.ErrCacheMiss)
	assert.NoError(t, repo.Set(ctx, "listing:subjects:snapshot", []string{"a"}, time.Minute))
	assert.NoError(t, repo.DeleteByPattern(ctx, "listing:subjects:*"))
	assert.Empty(t, rows)
}
