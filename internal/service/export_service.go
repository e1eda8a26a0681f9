package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/leadership-program/nomination-api/internal/dto"
	"github.com/leadership-program/nomination-api/internal/models"
	appErrors "github.com/leadership-program/nomination-api/pkg/errors"
	"github.com/leadership-program/nomination-api/pkg/export"
)

// Export formats.
const (
	ExportFormatCSV = "csv"
	ExportFormatPDF = "pdf"
)

const exportPageSize = 200

type rosterLister interface {
	List(ctx context.Context, filter models.NominationFilter) ([]models.Nomination, int, error)
}

type datasetRenderer interface {
	ContentType() string
	Extension() string
	Render(data export.Dataset) ([]byte, error)
}

// ExportService renders the training roster as CSV or PDF.
type ExportService struct {
	nominations rosterLister
	renderers   map[string]datasetRenderer
	threshold   float64
	logger      *zap.Logger
	now         func() time.Time
}

// NewExportService constructs an ExportService with the CSV and PDF exporters.
func NewExportService(nominations rosterLister, threshold float64, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if threshold <= 0 {
		threshold = 21
	}
	return &ExportService{
		nominations: nominations,
		renderers: map[string]datasetRenderer{
			ExportFormatCSV: export.NewCSVExporter(),
			ExportFormatPDF: export.NewPDFExporter(),
		},
		threshold: threshold,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Roster renders every registered nomination matching query.
func (s *ExportService) Roster(ctx context.Context, query dto.TrainingParticipantQuery) (*dto.Artifact, error) {
	format := strings.ToLower(strings.TrimSpace(query.Format))
	if format == "" {
		format = ExportFormatCSV
	}
	renderer, ok := s.renderers[format]
	if !ok {
		return nil, appErrors.WithDetails(appErrors.ErrValidation, "unsupported export format", map[string]interface{}{"format": format})
	}

	filter, err := trainingFilter(query)
	if err != nil {
		return nil, err
	}
	rows, err := s.collect(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load training participants")
	}

	payload, err := renderer.Render(s.dataset(rows))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}
	s.logger.Info("training roster exported", zap.String("format", format), zap.Int("rows", len(rows)))
	return &dto.Artifact{
		Filename:    fmt.Sprintf("training_participants_%s.%s", s.now().Format("20060102_150405"), renderer.Extension()),
		ContentType: renderer.ContentType(),
		Data:        payload,
	}, nil
}

func (s *ExportService) collect(ctx context.Context, filter models.NominationFilter) ([]models.Nomination, error) {
	filter.PageSize = exportPageSize
	var all []models.Nomination
	for page := 1; ; page++ {
		filter.Page = page
		items, total, err := s.nominations.List(ctx, filter)
		if err != nil {
			return nil, err
		}
		all = append(all, items...)
		if len(items) == 0 || len(all) >= total {
			return all, nil
		}
	}
}

func (s *ExportService) dataset(items []models.Nomination) export.Dataset {
	rows := make([]map[string]string, 0, len(items))
	for i := range items {
		tp := dto.NewTrainingParticipant(&items[i], s.threshold)
		diploma := "no"
		if tp.DiplomaSent {
			diploma = "yes"
		}
		rows = append(rows, map[string]string{
			"name":       tp.FullName,
			"email":      tp.Email,
			"phone":      tp.Phone,
			"church":     tp.ChurchName,
			"program":    tp.EventTitle,
			"status":     tp.Status,
			"hours":      fmt.Sprintf("%g", tp.AttendanceHours),
			"diploma":    diploma,
			"registered": formatTimestamp(tp.RegisteredAt),
		})
	}
	return export.Dataset{
		Title: "Training participants",
		Columns: []export.Column{
			{Key: "name", Label: "Name", Width: 45},
			{Key: "email", Label: "Email", Width: 55},
			{Key: "phone", Label: "Phone"},
			{Key: "church", Label: "Church"},
			{Key: "program", Label: "Program"},
			{Key: "status", Label: "Status"},
			{Key: "hours", Label: "Hours", Width: 16},
			{Key: "diploma", Label: "Diploma", Width: 18},
			{Key: "registered", Label: "Registered"},
		},
		Rows: rows,
	}
}

func formatTimestamp(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}
