package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/reviewloop/reviewloop-api/internal/models"
	appErrors "github.com/reviewloop/reviewloop-api/pkg/errors"
)

type reviewRepository interface {
	Create(ctx context.Context, review *models.Review) error
	FindByToken(ctx context.Context, token string) (*models.Review, error)
	ListByForm(ctx context.Context, filter models.ReviewFilter) ([]models.Review, int, error)
}

type publicFormReader interface {
	GetPublic(ctx context.Context, id string) (*models.ReviewForm, error)
	Get(ctx context.Context, id string) (*models.ReviewForm, error)
}

// AnswerInput is one submitted field value. The value stays raw JSON
// until the field type decides how to decode it.
type AnswerInput struct {
	FieldID string          `json:"field_id" validate:"required"`
	Value   json.RawMessage `json:"value"`
}

// SubmitReviewRequest describes a submission payload.
type SubmitReviewRequest struct {
	StudentID *string       `json:"student_id"`
	SessionID *string       `json:"session_id"`
	Answers   []AnswerInput `json:"answers"`
}

// ReviewService validates submissions against a form schema and owns
// the resulting immutable review records.
type ReviewService struct {
	repo    reviewRepository
	forms   publicFormReader
	metrics *MetricsService
	logger  *zap.Logger
}

// NewReviewService constructs the service.
func NewReviewService(repo reviewRepository, forms publicFormReader, metrics *MetricsService, logger *zap.Logger) *ReviewService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReviewService{repo: repo, forms: forms, metrics: metrics, logger: logger}
}

// Submit validates the answers against the form and persists a review
// on success. Validation stops at the first failing rule and reports
// the offending field.
func (s *ReviewService) Submit(ctx context.Context, formID string, req SubmitReviewRequest) (*models.Review, error) {
	form, err := s.forms.Get(ctx, formID)
	if err != nil {
		return nil, err
	}

	answers, err := ValidateSubmission(form, req.Answers)
	if err != nil {
		s.metrics.ObserveSubmission(false, appErrors.FromError(err).Code)
		return nil, err
	}

	review := &models.Review{
		FormID:    form.ID,
		Token:     uuid.NewString(),
		StudentID: req.StudentID,
		SessionID: req.SessionID,
		Answers:   answers,
	}
	if err := s.repo.Create(ctx, review); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store review")
	}

	s.metrics.ObserveSubmission(true, "")
	s.logger.Info("review accepted",
		zap.String("form_id", form.ID),
		zap.String("review_id", review.ID),
		zap.Int("answers", len(review.Answers)),
	)
	return review, nil
}

// GetByToken returns the submitter's own review by its public token.
func (s *ReviewService) GetByToken(ctx context.Context, token string) (*models.Review, error) {
	review, err := s.repo.FindByToken(ctx, token)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "review not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load review")
	}
	return review, nil
}

// ListByForm returns submissions for the staff surface.
func (s *ReviewService) ListByForm(ctx context.Context, filter models.ReviewFilter) ([]models.Review, *models.Pagination, error) {
	reviews, total, err := s.repo.ListByForm(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list reviews")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return reviews, pagination, nil
}

// ValidateSubmission checks a candidate answer set against the form
// schema and returns the validated answers in field order. Rules apply
// in a fixed sequence: the form must be active, every required field
// must be answered, every answer must target a known field, and each
// value must satisfy its field type.
func ValidateSubmission(form *models.ReviewForm, inputs []AnswerInput) ([]models.ReviewAnswer, error) {
	if !form.Active {
		return nil, appErrors.Clone(appErrors.ErrFormInactive, "")
	}

	// Duplicate entries for one field collapse to the last occurrence.
	byField := make(map[string]json.RawMessage, len(inputs))
	for _, input := range inputs {
		byField[input.FieldID] = input.Value
	}

	for _, field := range form.Fields {
		if !field.Required {
			continue
		}
		if _, ok := byField[field.ID]; !ok {
			return nil, appErrors.Clone(appErrors.ErrMissingRequiredField,
				fmt.Sprintf("required field %q has no answer", field.ID))
		}
	}

	answers := make([]models.ReviewAnswer, 0, len(byField))
	seen := make(map[string]struct{}, len(byField))
	for _, input := range inputs {
		if _, done := seen[input.FieldID]; done {
			continue
		}
		seen[input.FieldID] = struct{}{}

		field, ok := form.FieldByID(input.FieldID)
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrUnknownField,
				fmt.Sprintf("field %q does not exist on this form", input.FieldID))
		}

		value := byField[input.FieldID]
		if err := validateFieldValue(field, value); err != nil {
			return nil, err
		}
		answers = append(answers, models.ReviewAnswer{FieldID: field.ID, Value: value})
	}
	return answers, nil
}

// validateFieldValue applies the type-specific check. The switch is
// exhaustive over the closed FieldType set; an unknown type stored in
// the database is a schema corruption and is rejected outright.
func validateFieldValue(field *models.FormField, raw json.RawMessage) error {
	switch field.Type {
	case models.FieldTypeRating:
		var rating float64
		if err := json.Unmarshal(raw, &rating); err != nil {
			return fieldError(appErrors.ErrInvalidRating, field.ID, "value must be a number")
		}
		if rating != math.Trunc(rating) || rating < 1 || rating > 5 {
			return fieldError(appErrors.ErrInvalidRating, field.ID, "value must be an integer between 1 and 5")
		}
		return nil

	case models.FieldTypeSingleChoice:
		var choice string
		if err := json.Unmarshal(raw, &choice); err != nil {
			return fieldError(appErrors.ErrInvalidOption, field.ID, "value must be a string")
		}
		if len(field.Options) > 0 && !containsOption(field.Options, choice) {
			return fieldError(appErrors.ErrInvalidOption, field.ID, fmt.Sprintf("%q is not an allowed option", choice))
		}
		return nil

	case models.FieldTypeMultiChoice:
		var choices []string
		if err := json.Unmarshal(raw, &choices); err != nil {
			return fieldError(appErrors.ErrInvalidOption, field.ID, "value must be an array of strings")
		}
		if len(field.Options) > 0 {
			for _, choice := range choices {
				if !containsOption(field.Options, choice) {
					return fieldError(appErrors.ErrInvalidOption, field.ID, fmt.Sprintf("%q is not an allowed option", choice))
				}
			}
		}
		return nil

	case models.FieldTypeFreeText:
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return fieldError(appErrors.ErrInvalidFreeText, field.ID, "value must be a string")
		}
		if field.Required && text == "" {
			return fieldError(appErrors.ErrInvalidFreeText, field.ID, "required text answer is empty")
		}
		return nil
	}
	return fieldError(appErrors.ErrValidation, field.ID, fmt.Sprintf("unsupported field type %q", field.Type))
}

func fieldError(base *appErrors.Error, fieldID, detail string) error {
	return appErrors.Clone(base, fmt.Sprintf("field %q: %s", fieldID, detail))
}

func containsOption(options []string, value string) bool {
	for _, option := range options {
		if option == value {
			return true
		}
	}
	return false
}
