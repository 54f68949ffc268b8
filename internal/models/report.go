package models

import "time"

// ReportFormat is the output format of a score report.
type ReportFormat string

const (
	ReportFormatCSV ReportFormat = "csv"
	ReportFormatPDF ReportFormat = "pdf"
)

// ContentType returns the MIME type of the format.
func (f ReportFormat) ContentType() string {
	if f == ReportFormatPDF {
		return "application/pdf"
	}
	return "text/csv"
}

// AptitudeScore is one row of a score report.
type AptitudeScore struct {
	Code           string   `json:"code"`
	Name           string   `json:"name"`
	PuntajeDirecto *int     `json:"puntaje_directo,omitempty"`
	Percentil      *int     `json:"percentil,omitempty"`
	Errores        *int     `json:"errores,omitempty"`
	Concentracion  *float64 `json:"concentracion,omitempty"`
}

// ScoreReport summarises the results of a subject.
type ScoreReport struct {
	Subject   Subject         `json:"subject"`
	Scores    []AptitudeScore `json:"scores"`
	Completed int             `json:"completed"`
	Total     int             `json:"total"`
}

// ReportFile describes a stored report and its signed download link.
type ReportFile struct {
	ID          string       `json:"id"`
	Format      ReportFormat `json:"format"`
	Key         string       `json:"-"`
	DownloadURL string       `json:"download_url"`
	ExpiresAt   time.Time    `json:"expires_at"`
}
