package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psicometria/bat7-api/internal/models"
	appErrors "github.com/psicometria/bat7-api/pkg/errors"
)

func newSubjectBulk(store *mockSubjectStore, cfg BulkConfig) *BulkService[models.Subject] {
	listings := newSubjectListing(store, nil)
	entities := NewEntityService[models.Subject](store, nil, nil, EntityHooks{
		Prepare:  PrepareSubject,
		OnChange: listings.Invalidate,
	})
	return NewBulkService(entities, listings, NewMetricsService(), nil, nil, cfg)
}

func TestBulkStatusChange(t *testing.T) {
	store := newMockSubjectStore(subjectFixtures()...)
	svc := newSubjectBulk(store, BulkConfig{Concurrency: 2})

	result, err := svc.Execute(context.Background(), BulkRequest{
		Action: BulkActionStatus,
		IDs:    []string{"s2", "s3", "ghost"},
		Status: string(models.SubjectStatusActive),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Requested)
	assert.Equal(t, 2, result.Succeeded)
	assert.Zero(t, result.Failed)

	for _, id := range []string{"s2", "s3"} {
		row, err := store.FindByID(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, models.SubjectStatusActive, row.Estado)
		assert.True(t, row.Activo)
	}
}

func TestBulkDeletePartialFailure(t *testing.T) {
	store := newMockSubjectStore(subjectFixtures()...)
	store.failIDs["s2"] = true
	svc := newSubjectBulk(store, BulkConfig{Concurrency: 3})

	result, err := svc.Execute(context.Background(), BulkRequest{Action: BulkActionDelete, SelectAll: true})
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrBulkPartial)
	require.NotNil(t, result)
	assert.Equal(t, 3, result.Requested)
	assert.Equal(t, 2, result.Succeeded)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, []string{"s2"}, result.FailedIDs)

	_, err = store.FindByID(context.Background(), "s1")
	assert.Error(t, err)
	_, err = store.FindByID(context.Background(), "s2")
	assert.NoError(t, err)
}

func TestBulkSelectAllHonoursFiltersAndCap(t *testing.T) {
	store := newMockSubjectStore(subjectFixtures()...)
	svc := newSubjectBulk(store, BulkConfig{MaxItems: 1})

	selection, err := svc.Select(context.Background(), BulkRequest{SelectAll: true, Filters: map[string]string{"institucion_id": "i1"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"s2"}, selection.SelectedIDs())
	assert.Equal(t, 2, selection.Total())
}

func TestBulkRequestValidation(t *testing.T) {
	svc := newSubjectBulk(newMockSubjectStore(subjectFixtures()...), BulkConfig{})
	ctx := context.Background()

	cases := []BulkRequest{
		{Action: "archive", IDs: []string{"s1"}},
		{Action: BulkActionDelete},
		{Action: BulkActionStatus, IDs: []string{"s1"}, Status: "borrado"},
		{Action: BulkActionDelete, IDs: []string{"ghost"}},
	}
	for _, req := range cases {
		_, err := svc.Execute(ctx, req)
		assert.ErrorIs(t, err, appErrors.ErrValidation, "action %q", req.Action)
	}
}
