package repository

import (
	"context"
	"encoding/json"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/reviewloop/reviewloop-api/internal/models"
)

func newReviewRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestReviewRepositoryCreateWritesAnswersInOneTransaction(t *testing.T) {
	db, mock, cleanup := newReviewRepoMock(t)
	defer cleanup()

	repo := NewReviewRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO reviews")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO review_answers")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO review_answers")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	review := &models.Review{
		FormID: "form-1",
		Token:  "tok-123",
		Answers: []models.ReviewAnswer{
			{FieldID: "f1", Value: json.RawMessage(`4`)},
			{FieldID: "f2", Value: json.RawMessage(`"good"`)},
		},
	}
	require.NoError(t, repo.Create(context.Background(), review))
	require.NotEmpty(t, review.ID)
	require.Equal(t, review.ID, review.Answers[0].ReviewID)
	require.False(t, review.SubmittedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReviewRepositoryCreateRollsBackOnAnswerError(t *testing.T) {
	db, mock, cleanup := newReviewRepoMock(t)
	defer cleanup()

	repo := NewReviewRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO reviews")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO review_answers")).
		WillReturnError(context.DeadlineExceeded)
	mock.ExpectRollback()

	review := &models.Review{
		FormID:  "form-1",
		Token:   "tok-123",
		Answers: []models.ReviewAnswer{{FieldID: "f1", Value: json.RawMessage(`4`)}},
	}
	require.Error(t, repo.Create(context.Background(), review))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReviewRepositoryFindByTokenLoadsAnswers(t *testing.T) {
	db, mock, cleanup := newReviewRepoMock(t)
	defer cleanup()

	repo := NewReviewRepository(db)
	now := time.Now()

	reviewRows := sqlmock.NewRows([]string{"id", "form_id", "token", "student_id", "session_id", "submitted_at"}).
		AddRow("rev-1", "form-1", "tok-123", nil, nil, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM reviews WHERE token = $1")).
		WithArgs("tok-123").
		WillReturnRows(reviewRows)

	answerRows := sqlmock.NewRows([]string{"id", "review_id", "field_id", "value"}).
		AddRow("ans-1", "rev-1", "f1", []byte(`4`)).
		AddRow("ans-2", "rev-1", "f2", []byte(`"good"`))
	mock.ExpectQuery(regexp.QuoteMeta("FROM review_answers a")).
		WithArgs("rev-1").
		WillReturnRows(answerRows)

	review, err := repo.FindByToken(context.Background(), "tok-123")
	require.NoError(t, err)
	require.Equal(t, "rev-1", review.ID)
	require.Len(t, review.Answers, 2)
	require.JSONEq(t, `4`, string(review.Answers[0].Value))
	require.NoError(t, mock.ExpectationsWereMet())
}
