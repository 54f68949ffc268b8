package handler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/psicometria/bat7-api/internal/models"
	"github.com/psicometria/bat7-api/internal/service"
	"github.com/psicometria/bat7-api/pkg/response"
)

type reportGenerator interface {
	Generate(ctx context.Context, subjectID string, format models.ReportFormat) (*models.ReportFile, error)
	Download(ctx context.Context, token string) (*service.ReportDownload, error)
}

// ReportHandler exposes score report generation and signed downloads.
type ReportHandler struct {
	reports reportGenerator
	logger  *zap.Logger
}

// NewReportHandler constructs a ReportHandler.
func NewReportHandler(reports reportGenerator, logger *zap.Logger) *ReportHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportHandler{reports: reports, logger: logger}
}

// Generate godoc
// @Summary Generate score report
// @Description Renders the aptitude table of a subject and returns a signed download link
// @Tags Reports
// @Produce json
// @Param id path string true "Subject ID"
// @Param format query string false "csv or pdf" default(pdf)
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /reports/subjects/{id} [post]
func (h *ReportHandler) Generate(c *gin.Context) {
	format := models.ReportFormat(strings.ToLower(c.DefaultQuery("format", string(models.ReportFormatPDF))))
	file, err := h.reports.Generate(c.Request.Context(), c.Param("id"), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, file)
}

// Download godoc
// @Summary Download report
// @Tags Reports
// @Produce octet-stream
// @Param token path string true "Signed token"
// @Success 200 {file} file
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /reports/download/{token} [get]
func (h *ReportHandler) Download(c *gin.Context) {
	download, err := h.reports.Download(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer download.Body.Close()

	c.Header("Content-Type", download.Format.ContentType())
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", download.Filename))
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, download.Body); err != nil {
		h.logger.Warn("report stream interrupted", zap.String("file", download.Filename), zap.Error(err))
	}
}
