package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/reviewloop/reviewloop-api/internal/models"
)

func newSubjectRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func subjectRows(id string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "code", "name", "first_lesson_date", "last_lesson_date",
		"during_form_id", "after_form_id", "during_form_sent_at", "after_form_sent_at",
		"created_at", "updated_at",
	}).AddRow(id, "GO101", "Go Fundamentals", now, now, nil, "form-after", nil, nil, now, now)
}

func TestSubjectRepositoryFindByID(t *testing.T) {
	db, mock, cleanup := newSubjectRepoMock(t)
	defer cleanup()

	repo := NewSubjectRepository(db)
	mock.ExpectQuery("SELECT id, code, name").
		WithArgs("sub-1").
		WillReturnRows(subjectRows("sub-1"))

	subject, err := repo.FindByID(context.Background(), "sub-1")
	require.NoError(t, err)
	require.Equal(t, "sub-1", subject.ID)
	require.NotNil(t, subject.AfterFormID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubjectRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newSubjectRepoMock(t)
	defer cleanup()

	repo := NewSubjectRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO subjects")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	subject := &models.Subject{Code: "GO101", Name: "Go Fundamentals"}
	require.NoError(t, repo.Create(context.Background(), subject))
	require.NotEmpty(t, subject.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubjectRepositoryListPendingDispatchDuring(t *testing.T) {
	db, mock, cleanup := newSubjectRepoMock(t)
	defer cleanup()

	repo := NewSubjectRepository(db)
	mock.ExpectQuery("during_form_id IS NOT NULL AND during_form_sent_at IS NULL").
		WillReturnRows(subjectRows("sub-1"))

	subjects, err := repo.ListPendingDispatch(context.Background(), models.MomentDuring)
	require.NoError(t, err)
	require.Len(t, subjects, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubjectRepositoryListPendingDispatchAfter(t *testing.T) {
	db, mock, cleanup := newSubjectRepoMock(t)
	defer cleanup()

	repo := NewSubjectRepository(db)
	mock.ExpectQuery("after_form_id IS NOT NULL AND after_form_sent_at IS NULL").
		WillReturnRows(subjectRows("sub-1"))

	subjects, err := repo.ListPendingDispatch(context.Background(), models.MomentAfter)
	require.NoError(t, err)
	require.Len(t, subjects, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubjectRepositoryListRecipients(t *testing.T) {
	db, mock, cleanup := newSubjectRepoMock(t)
	defer cleanup()

	repo := NewSubjectRepository(db)
	rows := sqlmock.NewRows([]string{"email", "first_name"}).
		AddRow("a@example.com", "Ada").
		AddRow("b@example.com", "Ben")
	mock.ExpectQuery(regexp.QuoteMeta("FROM enrollments e")).
		WithArgs("sub-1").
		WillReturnRows(rows)

	recipients, err := repo.ListRecipients(context.Background(), "sub-1")
	require.NoError(t, err)
	require.Len(t, recipients, 2)
	require.Equal(t, "a@example.com", recipients[0].Email)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubjectRepositoryMarkFormSentFirstWriteWins(t *testing.T) {
	db, mock, cleanup := newSubjectRepoMock(t)
	defer cleanup()

	repo := NewSubjectRepository(db)
	at := time.Now().UTC()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE subjects SET after_form_sent_at = $2, updated_at = $2 WHERE id = $1 AND after_form_sent_at IS NULL")).
		WithArgs("sub-1", at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	marked, err := repo.MarkFormSent(context.Background(), "sub-1", models.MomentAfter, at)
	require.NoError(t, err)
	require.True(t, marked)

	// The second writer finds the stamp already set and loses the race.
	mock.ExpectExec(regexp.QuoteMeta("UPDATE subjects SET after_form_sent_at = $2, updated_at = $2 WHERE id = $1 AND after_form_sent_at IS NULL")).
		WithArgs("sub-1", at).
		WillReturnResult(sqlmock.NewResult(0, 0))

	marked, err = repo.MarkFormSent(context.Background(), "sub-1", models.MomentAfter, at)
	require.NoError(t, err)
	require.False(t, marked)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubjectRepositoryMarkFormSentDuringColumn(t *testing.T) {
	db, mock, cleanup := newSubjectRepoMock(t)
	defer cleanup()

	repo := NewSubjectRepository(db)
	at := time.Now().UTC()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE subjects SET during_form_sent_at = $2, updated_at = $2 WHERE id = $1 AND during_form_sent_at IS NULL")).
		WithArgs("sub-1", at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	marked, err := repo.MarkFormSent(context.Background(), "sub-1", models.MomentDuring, at)
	require.NoError(t, err)
	require.True(t, marked)
	require.NoError(t, mock.ExpectationsWereMet())
}
