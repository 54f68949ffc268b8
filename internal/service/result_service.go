package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/psicometria/bat7-api/internal/models"
	"github.com/psicometria/bat7-api/pkg/database"
	appErrors "github.com/psicometria/bat7-api/pkg/errors"
)

type resultStore interface {
	ListBySubject(ctx context.Context, subjectID string) ([]models.Result, error)
}

// ResultService reads scored results and folds them into score reports.
type ResultService struct {
	results  resultStore
	subjects subjectLoader
	features featureChecker
	logger   *zap.Logger
}

// NewResultService constructs a ResultService.
func NewResultService(results resultStore, subjects subjectLoader, features featureChecker, logger *zap.Logger) *ResultService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResultService{results: results, subjects: subjects, features: features, logger: logger}
}

// ListBySubject returns the results of subjectID, newest first. A database
// without the results relation yields an empty list.
func (s *ResultService) ListBySubject(ctx context.Context, subjectID string) ([]models.Result, error) {
	if !s.features.Available(models.FeatureResults) {
		return []models.Result{}, nil
	}
	rows, err := s.results.ListBySubject(ctx, subjectID)
	if err != nil {
		if database.IsUndefinedTable(err) {
			s.features.MarkUnavailable(models.FeatureResults)
			return []models.Result{}, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load results")
	}
	return rows, nil
}

// ScoreReport builds the aptitude table of a subject. When a test was taken
// more than once the newest result wins.
func (s *ResultService) ScoreReport(ctx context.Context, subjectID string) (*models.ScoreReport, error) {
	subject, err := s.subjects.Get(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	rows, err := s.ListBySubject(ctx, subjectID)
	if err != nil {
		return nil, err
	}

	latest := make(map[string]models.Result, len(rows))
	for _, r := range rows {
		if prev, ok := latest[r.AptitudCode]; ok && !r.CreatedAt.After(prev.CreatedAt) {
			continue
		}
		latest[r.AptitudCode] = r
	}

	report := &models.ScoreReport{Subject: *subject, Total: models.TotalTests, Scores: make([]models.AptitudeScore, 0, len(models.Aptitudes))}
	for _, apt := range models.Aptitudes {
		score := models.AptitudeScore{Code: apt.Code, Name: apt.Name}
		if r, ok := latest[apt.Code]; ok {
			direct, errs := r.PuntajeDirecto, r.Errores
			score.PuntajeDirecto = &direct
			score.Errores = &errs
			score.Percentil = r.Percentil
			score.Concentracion = r.Concentracion
			report.Completed++
		}
		report.Scores = append(report.Scores, score)
	}
	return report, nil
}
