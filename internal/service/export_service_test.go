package service

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/reviewloop/reviewloop-api/internal/models"
	appErrors "github.com/reviewloop/reviewloop-api/pkg/errors"
)

type mockExportReviews struct {
	reviews []models.Review
	err     error
}

func (m *mockExportReviews) ListAllByForm(_ context.Context, _ string) ([]models.Review, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.reviews, nil
}

func exportTestForm() *models.ReviewForm {
	return &models.ReviewForm{
		ID: "form-1", Title: "Course feedback", Moment: models.MomentAfter, Active: true,
		Fields: []models.FormField{
			{ID: "f1", Label: "Overall rating", Type: models.FieldTypeRating, Position: 1},
			{ID: "f2", Label: "Topics", Type: models.FieldTypeMultiChoice, Position: 2},
			{ID: "f3", Label: "Comments", Type: models.FieldTypeFreeText, Position: 3},
		},
	}
}

func TestBuildReviewDatasetFlattensAnswers(t *testing.T) {
	form := exportTestForm()
	student := "stud-1"
	reviews := []models.Review{{
		ID: "rev-1", FormID: "form-1", Token: "tok",
		StudentID:   &student,
		SubmittedAt: time.Date(2024, time.February, 1, 10, 0, 0, 0, time.UTC),
		Answers: []models.ReviewAnswer{
			{FieldID: "f1", Value: json.RawMessage(`4`)},
			{FieldID: "f2", Value: json.RawMessage(`["theory","exam"]`)},
			{FieldID: "f3", Value: json.RawMessage(`"great course"`)},
		},
	}}

	dataset := buildReviewDataset(form, reviews)
	assert.Equal(t, []string{"Submitted At", "Student", "Session", "Overall rating", "Topics", "Comments"}, dataset.Headers)
	require.Len(t, dataset.Rows, 1)
	assert.Equal(t, []string{"2024-02-01 10:00:00", "stud-1", "-", "4", "theory, exam", "great course"}, dataset.Rows[0])
}

func TestBuildReviewDatasetMissingAnswerIsEmpty(t *testing.T) {
	form := exportTestForm()
	reviews := []models.Review{{
		ID: "rev-1", FormID: "form-1",
		SubmittedAt: time.Date(2024, time.February, 1, 10, 0, 0, 0, time.UTC),
		Answers:     []models.ReviewAnswer{{FieldID: "f1", Value: json.RawMessage(`5`)}},
	}}

	dataset := buildReviewDataset(form, reviews)
	require.Len(t, dataset.Rows, 1)
	assert.Equal(t, "", dataset.Rows[0][4])
	assert.Equal(t, "", dataset.Rows[0][5])
}

func TestExportReviewsCSV(t *testing.T) {
	forms := newMockFormStore()
	forms.forms["form-1"] = exportTestForm()
	reviews := &mockExportReviews{reviews: []models.Review{{
		ID: "rev-1", FormID: "form-1",
		SubmittedAt: time.Date(2024, time.February, 1, 10, 0, 0, 0, time.UTC),
		Answers:     []models.ReviewAnswer{{FieldID: "f1", Value: json.RawMessage(`3`)}},
	}}}
	svc := NewExportService(reviews, forms, zap.NewNop())

	payload, contentType, err := svc.ExportReviews(context.Background(), "form-1", "csv")
	require.NoError(t, err)
	assert.Equal(t, "text/csv", contentType)
	body := string(payload)
	assert.True(t, strings.Contains(body, "Overall rating"))
	assert.True(t, strings.Contains(body, "2024-02-01 10:00:00"))
}

func TestExportReviewsUnknownFormat(t *testing.T) {
	forms := newMockFormStore()
	forms.forms["form-1"] = exportTestForm()
	svc := NewExportService(&mockExportReviews{}, forms, zap.NewNop())

	_, _, err := svc.ExportReviews(context.Background(), "form-1", "xlsx")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestExportReviewsUnknownForm(t *testing.T) {
	svc := NewExportService(&mockExportReviews{}, newMockFormStore(), zap.NewNop())

	_, _, err := svc.ExportReviews(context.Background(), "missing", "csv")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrFormNotFound.Code, appErrors.FromError(err).Code)
}
