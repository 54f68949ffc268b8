package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResultRepositoryListBySubject(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewResultRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM resultados WHERE subject_id = $1 ORDER BY created_at DESC")).
		WithArgs("sub").
		WillReturnRows(sqlmock.NewRows([]string{"id", "subject_id", "aptitud_code", "puntaje_directo", "percentil", "errores", "concentracion", "tiempo_segundos", "session_id", "created_at"}).
			AddRow("r1", "sub", "V", 22, 75, 2, nil, 540, nil, time.Now()))

	results, err := repo.ListBySubject(context.Background(), "sub")
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.NotNil(t, results[0].Percentil)
	assert.Equal(t, 75, *results[0].Percentil)
	assert.Nil(t, results[0].Concentracion)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResultRepositoryCompletedCodes(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewResultRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT DISTINCT aptitud_code FROM resultados WHERE subject_id = $1")).
		WithArgs("sub").
		WillReturnRows(sqlmock.NewRows([]string{"aptitud_code"}).AddRow("A").AddRow("V"))

	codes, err := repo.CompletedCodes(context.Background(), "sub")
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "V"}, codes)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFeatureRepositoryRelationExists(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewFeatureRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT to_regclass($1)::text")).
		WithArgs("test_sessions").
		WillReturnRows(sqlmock.NewRows([]string{"to_regclass"}).AddRow("test_sessions"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT to_regclass($1)::text")).
		WithArgs("resultados").
		WillReturnRows(sqlmock.NewRows([]string{"to_regclass"}).AddRow(nil))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT to_regclass($1)::text")).
		WithArgs("audit_logs").
		WillReturnError(errors.New("connection reset"))

	ok, err := repo.RelationExists(context.Background(), "test_sessions")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.RelationExists(context.Background(), "resultados")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = repo.RelationExists(context.Background(), "audit_logs")
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
