package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/reviewloop/reviewloop-api/internal/models"
	appErrors "github.com/reviewloop/reviewloop-api/pkg/errors"
)

type mockReviewRepo struct {
	created     *models.Review
	createErr   error
	byToken     *models.Review
	byTokenErr  error
	listReviews []models.Review
	listTotal   int
	listErr     error
}

func (m *mockReviewRepo) Create(_ context.Context, review *models.Review) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.created = review
	return nil
}

func (m *mockReviewRepo) FindByToken(_ context.Context, _ string) (*models.Review, error) {
	if m.byTokenErr != nil {
		return nil, m.byTokenErr
	}
	return m.byToken, nil
}

func (m *mockReviewRepo) ListByForm(_ context.Context, _ models.ReviewFilter) ([]models.Review, int, error) {
	if m.listErr != nil {
		return nil, 0, m.listErr
	}
	return m.listReviews, m.listTotal, nil
}

type stubFormReader struct {
	form *models.ReviewForm
	err  error
}

func (s *stubFormReader) Get(_ context.Context, _ string) (*models.ReviewForm, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.form, nil
}

func (s *stubFormReader) GetPublic(_ context.Context, _ string) (*models.ReviewForm, error) {
	return s.Get(nil, "")
}

func ratingField(id string, required bool) models.FormField {
	return models.FormField{ID: id, Label: "Rating", Type: models.FieldTypeRating, Required: required, Position: 1}
}

func testForm(fields ...models.FormField) *models.ReviewForm {
	return &models.ReviewForm{ID: "form-1", Title: "Course feedback", Moment: models.MomentAfter, Active: true, Fields: fields}
}

func rawValue(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	payload, err := json.Marshal(v)
	require.NoError(t, err)
	return payload
}

func TestValidateSubmissionInactiveForm(t *testing.T) {
	form := testForm(ratingField("f1", true))
	form.Active = false

	_, err := ValidateSubmission(form, []AnswerInput{{FieldID: "f1", Value: rawValue(t, 3)}})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrFormInactive.Code, appErrors.FromError(err).Code)
}

func TestValidateSubmissionMissingRequiredField(t *testing.T) {
	form := testForm(
		ratingField("f1", true),
		models.FormField{ID: "f2", Label: "Comment", Type: models.FieldTypeFreeText, Position: 2},
	)

	_, err := ValidateSubmission(form, []AnswerInput{{FieldID: "f2", Value: rawValue(t, "fine")}})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrMissingRequiredField.Code, appErrors.FromError(err).Code)
}

func TestValidateSubmissionUnknownField(t *testing.T) {
	form := testForm(ratingField("f1", false))

	_, err := ValidateSubmission(form, []AnswerInput{{FieldID: "ghost", Value: rawValue(t, 3)}})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnknownField.Code, appErrors.FromError(err).Code)
}

func TestValidateSubmissionRatingBounds(t *testing.T) {
	form := testForm(ratingField("f1", true))

	for rating := 1; rating <= 5; rating++ {
		answers, err := ValidateSubmission(form, []AnswerInput{{FieldID: "f1", Value: rawValue(t, rating)}})
		require.NoError(t, err, "rating %d should be accepted", rating)
		require.Len(t, answers, 1)
	}

	for _, invalid := range []interface{}{0, 6, -1, 3.5, "3", true} {
		_, err := ValidateSubmission(form, []AnswerInput{{FieldID: "f1", Value: rawValue(t, invalid)}})
		require.Error(t, err, "value %v should be rejected", invalid)
		assert.Equal(t, appErrors.ErrInvalidRating.Code, appErrors.FromError(err).Code)
	}
}

func TestValidateSubmissionSingleChoiceMembership(t *testing.T) {
	form := testForm(models.FormField{
		ID: "f1", Label: "Pace", Type: models.FieldTypeSingleChoice,
		Required: true, Options: []string{"slow", "right", "fast"}, Position: 1,
	})

	_, err := ValidateSubmission(form, []AnswerInput{{FieldID: "f1", Value: rawValue(t, "right")}})
	require.NoError(t, err)

	_, err = ValidateSubmission(form, []AnswerInput{{FieldID: "f1", Value: rawValue(t, "sideways")}})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidOption.Code, appErrors.FromError(err).Code)
}

func TestValidateSubmissionChoiceWithoutOptionsIsPermissive(t *testing.T) {
	form := testForm(models.FormField{
		ID: "f1", Label: "Anything", Type: models.FieldTypeSingleChoice, Required: true, Position: 1,
	})

	_, err := ValidateSubmission(form, []AnswerInput{{FieldID: "f1", Value: rawValue(t, "whatever")}})
	require.NoError(t, err)
}

func TestValidateSubmissionMultiChoice(t *testing.T) {
	form := testForm(models.FormField{
		ID: "f1", Label: "Topics", Type: models.FieldTypeMultiChoice,
		Options: []string{"theory", "practice", "exam"}, Position: 1,
	})

	_, err := ValidateSubmission(form, []AnswerInput{{FieldID: "f1", Value: rawValue(t, []string{"theory", "exam"})}})
	require.NoError(t, err)

	_, err = ValidateSubmission(form, []AnswerInput{{FieldID: "f1", Value: rawValue(t, []string{"theory", "homework"})}})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidOption.Code, appErrors.FromError(err).Code)

	_, err = ValidateSubmission(form, []AnswerInput{{FieldID: "f1", Value: rawValue(t, "theory")}})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidOption.Code, appErrors.FromError(err).Code)
}

func TestValidateSubmissionRequiredFreeTextEmpty(t *testing.T) {
	form := testForm(models.FormField{
		ID: "f1", Label: "Comment", Type: models.FieldTypeFreeText, Required: true, Position: 1,
	})

	_, err := ValidateSubmission(form, []AnswerInput{{FieldID: "f1", Value: rawValue(t, "")}})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidFreeText.Code, appErrors.FromError(err).Code)

	_, err = ValidateSubmission(form, []AnswerInput{{FieldID: "f1", Value: rawValue(t, "helpful course")}})
	require.NoError(t, err)
}

func TestValidateSubmissionOptionalFreeTextEmpty(t *testing.T) {
	form := testForm(models.FormField{
		ID: "f1", Label: "Comment", Type: models.FieldTypeFreeText, Position: 1,
	})

	answers, err := ValidateSubmission(form, []AnswerInput{{FieldID: "f1", Value: rawValue(t, "")}})
	require.NoError(t, err)
	require.Len(t, answers, 1)
}

func TestValidateSubmissionDuplicateAnswersLastWins(t *testing.T) {
	form := testForm(ratingField("f1", true))

	answers, err := ValidateSubmission(form, []AnswerInput{
		{FieldID: "f1", Value: rawValue(t, 2)},
		{FieldID: "f1", Value: rawValue(t, 5)},
	})
	require.NoError(t, err)
	require.Len(t, answers, 1)
	assert.JSONEq(t, "5", string(answers[0].Value))
}

func TestSubmitPersistsReviewWithToken(t *testing.T) {
	repo := &mockReviewRepo{}
	forms := &stubFormReader{form: testForm(ratingField("f1", true))}
	svc := NewReviewService(repo, forms, nil, zap.NewNop())

	review, err := svc.Submit(context.Background(), "form-1", SubmitReviewRequest{
		Answers: []AnswerInput{{FieldID: "f1", Value: rawValue(t, 4)}},
	})
	require.NoError(t, err)
	require.NotNil(t, repo.created)
	assert.Equal(t, "form-1", review.FormID)
	assert.NotEmpty(t, review.Token)
	assert.Len(t, review.Answers, 1)
}

func TestSubmitRejectionDoesNotPersist(t *testing.T) {
	repo := &mockReviewRepo{}
	forms := &stubFormReader{form: testForm(ratingField("f1", true))}
	svc := NewReviewService(repo, forms, nil, zap.NewNop())

	_, err := svc.Submit(context.Background(), "form-1", SubmitReviewRequest{
		Answers: []AnswerInput{{FieldID: "f1", Value: rawValue(t, 9)}},
	})
	require.Error(t, err)
	assert.Nil(t, repo.created)
}

func TestGetByTokenNotFound(t *testing.T) {
	repo := &mockReviewRepo{byTokenErr: sql.ErrNoRows}
	svc := NewReviewService(repo, &stubFormReader{}, nil, zap.NewNop())

	_, err := svc.GetByToken(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
