package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/reviewloop/reviewloop-api/internal/models"
)

func newFormRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestFormRepositoryCreateInsertsFieldsTransactionally(t *testing.T) {
	db, mock, cleanup := newFormRepoMock(t)
	defer cleanup()

	repo := NewFormRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO review_forms")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO form_fields")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO form_fields")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	form := &models.ReviewForm{
		Title:  "End of course feedback",
		Moment: models.MomentAfter,
		Active: true,
		Fields: []models.FormField{
			{Label: "Overall rating", Type: models.FieldTypeRating, Required: true, Position: 1},
			{Label: "Pace", Type: models.FieldTypeSingleChoice, Options: pq.StringArray{"slow", "right", "fast"}, Position: 2},
		},
	}
	require.NoError(t, repo.Create(context.Background(), form))
	require.NotEmpty(t, form.ID)
	require.NotEmpty(t, form.Fields[0].ID)
	require.Equal(t, form.ID, form.Fields[1].FormID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFormRepositoryCreateRollsBackOnFieldError(t *testing.T) {
	db, mock, cleanup := newFormRepoMock(t)
	defer cleanup()

	repo := NewFormRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO review_forms")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO form_fields")).
		WillReturnError(context.DeadlineExceeded)
	mock.ExpectRollback()

	form := &models.ReviewForm{
		Title:  "Broken",
		Moment: models.MomentAfter,
		Fields: []models.FormField{{Label: "Overall rating", Type: models.FieldTypeRating, Position: 1}},
	}
	require.Error(t, repo.Create(context.Background(), form))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFormRepositoryFindByIDOrdersFields(t *testing.T) {
	db, mock, cleanup := newFormRepoMock(t)
	defer cleanup()

	repo := NewFormRepository(db)
	now := time.Now()

	formRows := sqlmock.NewRows([]string{"id", "title", "moment", "subject_id", "active", "created_at", "updated_at"}).
		AddRow("form-1", "Feedback", "AFTER", nil, true, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM review_forms WHERE id = $1")).
		WithArgs("form-1").
		WillReturnRows(formRows)

	fieldRows := sqlmock.NewRows([]string{"id", "form_id", "label", "type", "required", "options", "position"}).
		AddRow("f1", "form-1", "Overall rating", "RATING", true, "{}", 1).
		AddRow("f2", "form-1", "Pace", "SINGLE_CHOICE", false, `{slow,right,fast}`, 2)
	mock.ExpectQuery(regexp.QuoteMeta("FROM form_fields WHERE form_id = $1 ORDER BY position ASC")).
		WithArgs("form-1").
		WillReturnRows(fieldRows)

	form, err := repo.FindByID(context.Background(), "form-1")
	require.NoError(t, err)
	require.Len(t, form.Fields, 2)
	require.Equal(t, models.FieldTypeSingleChoice, form.Fields[1].Type)
	require.Equal(t, pq.StringArray{"slow", "right", "fast"}, form.Fields[1].Options)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFormRepositoryUpdateMissingForm(t *testing.T) {
	db, mock, cleanup := newFormRepoMock(t)
	defer cleanup()

	repo := NewFormRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE review_forms SET")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	form := &models.ReviewForm{ID: "missing", Title: "Feedback", Moment: models.MomentAfter}
	err := repo.Update(context.Background(), form)
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFormRepositorySetActiveMissingForm(t *testing.T) {
	db, mock, cleanup := newFormRepoMock(t)
	defer cleanup()

	repo := NewFormRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE review_forms SET active = $2")).
		WithArgs("missing", false, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SetActive(context.Background(), "missing", false)
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
