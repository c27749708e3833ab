package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/reviewloop/reviewloop-api/internal/models"
	appErrors "github.com/reviewloop/reviewloop-api/pkg/errors"
	"github.com/reviewloop/reviewloop-api/pkg/export"
)

type exportReviewRepository interface {
	ListAllByForm(ctx context.Context, formID string) ([]models.Review, error)
}

type exportFormRepository interface {
	FindByID(ctx context.Context, id string) (*models.ReviewForm, error)
}

// ExportService flattens the reviews of a form into a tabular dataset
// and renders it as CSV or PDF.
type ExportService struct {
	reviews exportReviewRepository
	forms   exportFormRepository
	csv     *export.CSVExporter
	pdf     *export.PDFExporter
	logger  *zap.Logger
}

// NewExportService constructs the service.
func NewExportService(reviews exportReviewRepository, forms exportFormRepository, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		reviews: reviews,
		forms:   forms,
		csv:     export.NewCSVExporter(),
		pdf:     export.NewPDFExporter(),
		logger:  logger,
	}
}

// ExportReviews renders all reviews of a form in the given format
// ("csv" or "pdf") and returns the payload with its content type.
func (s *ExportService) ExportReviews(ctx context.Context, formID, format string) ([]byte, string, error) {
	form, err := s.forms.FindByID(ctx, formID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", appErrors.Clone(appErrors.ErrFormNotFound, "")
		}
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load form")
	}

	reviews, err := s.reviews.ListAllByForm(ctx, formID)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load reviews")
	}

	dataset := buildReviewDataset(form, reviews)

	var payload []byte
	var contentType string
	switch strings.ToLower(format) {
	case "csv":
		payload, err = s.csv.Render(dataset)
		contentType = "text/csv"
	case "pdf":
		payload, err = s.pdf.Render(dataset)
		contentType = "application/pdf"
	default:
		return nil, "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	s.logger.Info("reviews exported",
		zap.String("form_id", formID),
		zap.String("format", format),
		zap.Int("reviews", len(reviews)),
	)
	return payload, contentType, nil
}

// buildReviewDataset lays reviews out one per row, one column per form
// field in position order, preceded by submission metadata.
func buildReviewDataset(form *models.ReviewForm, reviews []models.Review) export.Dataset {
	headers := []string{"Submitted At", "Student", "Session"}
	for _, field := range form.Fields {
		headers = append(headers, field.Label)
	}

	rows := make([][]string, 0, len(reviews))
	for _, review := range reviews {
		byField := make(map[string]json.RawMessage, len(review.Answers))
		for _, answer := range review.Answers {
			byField[answer.FieldID] = answer.Value
		}

		row := []string{
			review.SubmittedAt.UTC().Format("2006-01-02 15:04:05"),
			valueOrDash(review.StudentID),
			valueOrDash(review.SessionID),
		}
		for _, field := range form.Fields {
			row = append(row, renderAnswer(byField[field.ID]))
		}
		rows = append(rows, row)
	}

	return export.Dataset{
		Title:   fmt.Sprintf("Reviews: %s", form.Title),
		Headers: headers,
		Rows:    rows,
	}
}

// renderAnswer turns a stored answer value into a display string.
func renderAnswer(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return string(raw)
	}
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				parts = append(parts, s)
			} else {
				parts = append(parts, fmt.Sprintf("%v", item))
			}
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprintf("%v", v)
	}
}

func valueOrDash(v *string) string {
	if v == nil || *v == "" {
		return "-"
	}
	return *v
}
