package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/psicometria/bat7-api/internal/models"
)

// ResultRepository reads scored aptitude results.
type ResultRepository struct {
	db *sqlx.DB
}

// NewResultRepository constructs a ResultRepository.
func NewResultRepository(db *sqlx.DB) *ResultRepository {
	return &ResultRepository{db: db}
}

// ListBySubject returns the results of a subject, newest first.
func (r *ResultRepository) ListBySubject(ctx context.Context, subjectID string) ([]models.Result, error) {
	const query = `SELECT id, subject_id, aptitud_code, puntaje_directo, percentil, errores, concentracion, tiempo_segundos, session_id, created_at
        FROM resultados WHERE subject_id = $1 ORDER BY created_at DESC`
	results := []models.Result{}
	if err := r.db.SelectContext(ctx, &results, query, subjectID); err != nil {
		return nil, fmt.Errorf("list results by subject: %w", err)
	}
	return results, nil
}

// CompletedCodes returns the distinct aptitude codes a subject has results for.
func (r *ResultRepository) CompletedCodes(ctx context.Context, subjectID string) ([]string, error) {
	const query = `SELECT DISTINCT aptitud_code FROM resultados WHERE subject_id = $1 ORDER BY aptitud_code`
	codes := []string{}
	if err := r.db.SelectContext(ctx, &codes, query, subjectID); err != nil {
		return nil, fmt.Errorf("list completed aptitudes: %w", err)
	}
	return codes, nil
}
