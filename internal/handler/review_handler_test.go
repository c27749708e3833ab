package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/reviewloop/reviewloop-api/internal/models"
	"github.com/reviewloop/reviewloop-api/internal/service"
	"github.com/reviewloop/reviewloop-api/pkg/response"
)

type reviewRepoMock struct {
	created *models.Review
}

func (m *reviewRepoMock) Create(_ context.Context, review *models.Review) error {
	m.created = review
	return nil
}

func (m *reviewRepoMock) FindByToken(_ context.Context, _ string) (*models.Review, error) {
	return m.created, nil
}

func (m *reviewRepoMock) ListByForm(_ context.Context, _ models.ReviewFilter) ([]models.Review, int, error) {
	return nil, 0, nil
}

type formReaderMock struct {
	form *models.ReviewForm
}

func (m *formReaderMock) Get(_ context.Context, _ string) (*models.ReviewForm, error) {
	return m.form, nil
}

func (m *formReaderMock) GetPublic(_ context.Context, _ string) (*models.ReviewForm, error) {
	return m.form, nil
}

func submitTestForm() *models.ReviewForm {
	return &models.ReviewForm{
		ID: "form-1", Title: "Feedback", Moment: models.MomentAfter, Active: true,
		Fields: []models.FormField{
			{ID: "f1", Label: "Overall rating", Type: models.FieldTypeRating, Required: true, Position: 1},
		},
	}
}

func newReviewTestRouter(repo *reviewRepoMock, forms *formReaderMock) *gin.Engine {
	gin.SetMode(gin.TestMode)
	svc := service.NewReviewService(repo, forms, nil, zap.NewNop())
	h := NewReviewHandler(svc)

	r := gin.New()
	r.POST("/public/forms/:id/reviews", h.Submit)
	r.GET("/public/reviews/:token", h.GetByToken)
	return r
}

func TestReviewHandlerSubmitAccepted(t *testing.T) {
	repo := &reviewRepoMock{}
	router := newReviewTestRouter(repo, &formReaderMock{form: submitTestForm()})

	body := `{"answers":[{"field_id":"f1","value":4}]}`
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/public/forms/form-1/reviews", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	require.NotNil(t, repo.created)

	var envelope response.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	data, ok := envelope.Data.(map[string]interface{})
	require.True(t, ok)
	assert.NotEmpty(t, data["token"])
}

func TestReviewHandlerSubmitInvalidRating(t *testing.T) {
	repo := &reviewRepoMock{}
	router := newReviewTestRouter(repo, &formReaderMock{form: submitTestForm()})

	body := `{"answers":[{"field_id":"f1","value":9}]}`
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/public/forms/form-1/reviews", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Nil(t, repo.created)
}

func TestReviewHandlerSubmitMalformedBody(t *testing.T) {
	router := newReviewTestRouter(&reviewRepoMock{}, &formReaderMock{form: submitTestForm()})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/public/forms/form-1/reviews", bytes.NewBufferString(`{"answers":`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReviewHandlerGetByToken(t *testing.T) {
	repo := &reviewRepoMock{created: &models.Review{ID: "rev-1", FormID: "form-1", Token: "tok-1"}}
	router := newReviewTestRouter(repo, &formReaderMock{form: submitTestForm()})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/public/reviews/tok-1", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
}
