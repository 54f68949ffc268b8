package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/psicometria/bat7-api/internal/models"
	appErrors "github.com/psicometria/bat7-api/pkg/errors"
	"github.com/psicometria/bat7-api/pkg/export"
	"github.com/psicometria/bat7-api/pkg/storage"
)

type scoreReporter interface {
	ScoreReport(ctx context.Context, subjectID string) (*models.ScoreReport, error)
}

type documentRenderer interface {
	Render(doc export.Document) ([]byte, error)
}

// ReportConfig tunes report generation.
type ReportConfig struct {
	APIPrefix string
}

// ReportDownload is an open stored report.
type ReportDownload struct {
	Body      io.ReadCloser
	Filename  string
	Format    models.ReportFormat
	ExpiresAt time.Time
}

// ReportService renders score reports, stores them and issues signed links.
type ReportService struct {
	results scoreReporter
	store   storage.Store
	signer  *storage.SignedURLSigner
	csv     documentRenderer
	pdf     documentRenderer
	logger  *zap.Logger
	cfg     ReportConfig
	now     func() time.Time
}

// NewReportService constructs a ReportService. Nil renderers default to the
// CSV and PDF exporters.
func NewReportService(results scoreReporter, store storage.Store, signer *storage.SignedURLSigner, cfg ReportConfig, logger *zap.Logger, csv, pdf documentRenderer) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ReportService{results: results, store: store, signer: signer, csv: csv, pdf: pdf, logger: logger, cfg: cfg, now: time.Now}
}

// Generate renders the score report of subjectID in format and stores it.
func (s *ReportService) Generate(ctx context.Context, subjectID string, format models.ReportFormat) (*models.ReportFile, error) {
	var renderer documentRenderer
	switch format {
	case models.ReportFormatCSV:
		renderer = s.csv
	case models.ReportFormatPDF:
		renderer = s.pdf
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}

	report, err := s.results.ScoreReport(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	payload, err := renderer.Render(s.document(report))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render report")
	}

	id := uuid.NewString()
	key := s.buildKey(report.Subject, id, format)
	if err := s.store.Save(ctx, key, payload, format.ContentType()); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store report")
	}
	token, expiresAt, err := s.signer.Generate(id, key)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign report link")
	}

	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}
	s.logger.Info("score report generated",
		zap.String("subject_id", subjectID),
		zap.String("format", string(format)),
		zap.Int("bytes", len(payload)))
	return &models.ReportFile{
		ID:          id,
		Format:      format,
		Key:         key,
		DownloadURL: fmt.Sprintf("%s/reports/download/%s", prefix, token),
		ExpiresAt:   expiresAt,
	}, nil
}

// Download verifies token and opens the stored report.
func (s *ReportService) Download(ctx context.Context, token string) (*ReportDownload, error) {
	parsed, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrForbidden.Code, appErrors.ErrForbidden.Status, "invalid or expired download link")
	}
	body, err := s.store.Open(ctx, parsed.Key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "report not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open report")
	}
	format := models.ReportFormatCSV
	if strings.HasSuffix(parsed.Key, ".pdf") {
		format = models.ReportFormatPDF
	}
	name := parsed.Key
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	return &ReportDownload{Body: body, Filename: name, Format: format, ExpiresAt: parsed.ExpiresAt}, nil
}

func (s *ReportService) buildKey(subject models.Subject, id string, format models.ReportFormat) string {
	name := sanitizeFilename(strings.ToLower(subject.Apellido + "_" + subject.Nombre))
	return fmt.Sprintf("reports/%s/%s_%s.%s", s.now().UTC().Format("2006/01/02"), name, id[:8], format)
}

func (s *ReportService) document(report *models.ScoreReport) export.Document {
	subject := report.Subject
	details := []export.Detail{
		{Label: "Evaluado", Value: subject.FullName()},
		{Label: "Documento", Value: subject.Documento},
		{Label: "Tipo", Value: string(subject.Tipo)},
	}
	if subject.InstitucionNombre != nil {
		details = append(details, export.Detail{Label: "Institución", Value: *subject.InstitucionNombre})
	}
	if age := subject.Age(s.now()); age >= 0 {
		details = append(details, export.Detail{Label: "Edad", Value: strconv.Itoa(age)})
	}
	details = append(details,
		export.Detail{Label: "Pruebas completadas", Value: fmt.Sprintf("%d/%d", report.Completed, report.Total)},
		export.Detail{Label: "Generado", Value: s.now().UTC().Format("2006-01-02 15:04 MST")},
	)

	rows := make([]map[string]string, 0, len(report.Scores))
	for _, score := range report.Scores {
		rows = append(rows, map[string]string{
			"code":          score.Code,
			"name":          score.Name,
			"pd":            intCell(score.PuntajeDirecto),
			"pc":            intCell(score.Percentil),
			"errores":       intCell(score.Errores),
			"concentracion": floatCell(score.Concentracion),
		})
	}
	return export.Document{
		Title:   "Informe BAT-7",
		Details: details,
		Table: export.Dataset{
			Columns: []export.Column{
				{Key: "code", Label: "Código", Width: 0.6},
				{Key: "name", Label: "Aptitud", Width: 2},
				{Key: "pd", Label: "PD"},
				{Key: "pc", Label: "PC"},
				{Key: "errores", Label: "Errores"},
				{Key: "concentracion", Label: "Concentración", Width: 1.4},
			},
			Rows: rows,
		},
	}
}

func intCell(v *int) string {
	if v == nil {
		return "-"
	}
	return strconv.Itoa(*v)
}

func floatCell(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', 1, 64)
}

func sanitizeFilename(raw string) string {
	if strings.Trim(raw, "_ ") == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}
